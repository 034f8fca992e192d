package model

// Folder type constants as reported by the mail client.
const (
	FolderTypeInbox = "inbox"
	FolderTypeFeed  = "feed"
	FolderTypeTrash = "trash"
	FolderTypeOther = "other"
)

// FolderKey is the identity of a mail folder: the owning account plus the
// folder's path within it. It is a comparable value type so it can key maps
// directly.
type FolderKey struct {
	AccountID string `json:"accountId"`
	Path      string `json:"path"`
}

// Folder describes a mail folder as observed from the mail client or as
// saved in the watched-folder configuration.
type Folder struct {
	// AccountID identifies the account the folder belongs to.
	AccountID string `json:"accountId"`

	// Path is the folder's path within its account (e.g. "/INBOX").
	Path string `json:"path"`

	// Name is the display name of the folder.
	Name string `json:"name"`

	// Type is one of the FolderType* constants.
	Type string `json:"type"`

	// Favorite reports whether the user marked the folder as a favorite.
	Favorite bool `json:"favorite,omitempty"`
}

// Key returns the folder's identity.
func (f Folder) Key() FolderKey {
	return FolderKey{AccountID: f.AccountID, Path: f.Path}
}

// WatchEligible reports whether a folder may be offered for watching:
// inbox folders, any folder of a feed account except its trash, and
// favorite folders.
func (f Folder) WatchEligible(accountType string) bool {
	if accountType == AccountTypeFeed {
		return f.Type != FolderTypeTrash
	}
	return f.Type == FolderTypeInbox || f.Favorite
}

// FolderSummary is the per-watched-folder entry of an extended payload.
type FolderSummary struct {
	AccountID          string `json:"accountId"`
	Favorite           bool   `json:"favorite"`
	Name               string `json:"name"`
	Path               string `json:"path"`
	TotalMessageCount  int    `json:"totalMessageCount"`
	Type               string `json:"type"`
	UnreadMessageCount int    `json:"unreadMessageCount"`
	SeenMessageCount   int    `json:"seenMessageCount"`
}
