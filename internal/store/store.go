package store

import (
	"context"
	"time"

	"github.com/mailwatch/mailwatch/internal/model"
)

// NotificationRecord is one delivered notification, kept for inspection.
type NotificationRecord struct {
	// ID is the unique identifier for this record.
	ID string `json:"id"`

	// Event is the notification's event tag.
	Event model.Event `json:"event"`

	// AccountID and FolderPath identify the folder the event concerned,
	// when it concerned one.
	AccountID  string `json:"account_id"`
	FolderPath string `json:"folder_path"`

	// Subject is the subject of the message the event concerned, if any.
	Subject string `json:"subject"`

	// CreatedAt is when the notification was delivered.
	CreatedAt time.Time `json:"created_at"`
}

// Store is the durable configuration storage consumed by the engine: the
// watched-folder set, runtime settings, and a log of delivered
// notifications.
type Store interface {
	// === Watched folders ===

	GetWatchedFolders(ctx context.Context) ([]model.Folder, error)
	SetWatchedFolders(ctx context.Context, folders []model.Folder) error

	// === Settings ===

	GetMode(ctx context.Context) (model.Mode, error)
	SetMode(ctx context.Context, mode model.Mode) error
	GetConnectionType(ctx context.Context) (model.ConnectionType, error)
	SetConnectionType(ctx context.Context, ct model.ConnectionType) error
	FirstRunDone(ctx context.Context) (bool, error)
	MarkFirstRunDone(ctx context.Context) error

	// === Notification log ===

	LogNotification(ctx context.Context, rec NotificationRecord) error
	RecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error)
}
