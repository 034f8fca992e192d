package mailclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/mailwatch/mailwatch/internal/model"
)

// FolderNotReadyError indicates that the mail client could not resolve a
// configured folder. This is an expected transient condition right after
// startup and is papered over by the engine's bounded retry.
type FolderNotReadyError struct {
	Folder model.FolderKey
	Err    error
}

func (e *FolderNotReadyError) Error() string {
	return fmt.Sprintf(
		"folder not ready (%s%s): %v", e.Folder.AccountID, e.Folder.Path, e.Err,
	)
}

func (e *FolderNotReadyError) Unwrap() error {
	return e.Err
}

// IsFolderNotReady reports whether err (or any error in its chain) is a
// FolderNotReadyError.
func IsFolderNotReady(err error) bool {
	var fnr *FolderNotReadyError
	return errors.As(err, &fnr)
}

// FolderInfo holds point-in-time counts for a folder.
type FolderInfo struct {
	TotalMessages  int
	UnreadMessages int
}

// Pager iterates a paged folder listing. Next returns the next page of
// messages, or nil when the listing is drained; callers must drain or
// Close the pager to release its connection.
type Pager interface {
	Next(ctx context.Context) ([]model.Message, error)
	Close() error
}

// Client is the query surface of the mail client the engine consumes.
// Every call is a fresh point-in-time read; nothing is cached.
type Client interface {
	// Accounts enumerates the configured accounts and their identities.
	Accounts(ctx context.Context) ([]model.Account, error)

	// Folders lists the folders of one account, with type and favorite
	// flag populated.
	Folders(ctx context.Context, accountID string) ([]model.Folder, error)

	// HasUnread reports whether the folder contains at least one unread
	// message.
	HasUnread(ctx context.Context, folder model.Folder) (bool, error)

	// FolderInfo returns the folder's current message counts.
	FolderInfo(ctx context.Context, folder model.Folder) (*FolderInfo, error)

	// ListMessages returns a pager over every message currently in the
	// folder. The sequence is restartable: each call starts a fresh
	// listing.
	ListMessages(ctx context.Context, folder model.Folder) (Pager, error)
}
