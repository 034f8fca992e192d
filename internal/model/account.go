package model

// Account type constants.
const (
	AccountTypeIMAP  = "imap"
	AccountTypeFeed  = "rss"
	AccountTypeLocal = "none"
)

// Identity is one sending identity attached to an account.
type Identity struct {
	Email        string `json:"email"`
	Label        string `json:"label"`
	Name         string `json:"name"`
	Organization string `json:"organization"`
}

// Account describes a mail account and its identities, as listed in
// extended-mode payloads.
type Account struct {
	ID         string     `json:"id"`
	Identities []Identity `json:"identities"`
	Name       string     `json:"name"`
	Type       string     `json:"type"`
}
