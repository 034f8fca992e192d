package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/mailwatch/mailwatch/internal/model"
)

// Settings keys.
const (
	settingMode           = "notification_mode"
	settingConnectionType = "connection_type"
	settingFirstRunDone   = "first_run_done"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// GetWatchedFolders retrieves the configured watched-folder set.
func (s *SQLiteStore) GetWatchedFolders(ctx context.Context) ([]model.Folder, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT account_id, path, name, type, favorite FROM watched_folders ORDER BY account_id, path",
	)
	if err != nil {
		return nil, fmt.Errorf("querying watched folders: %w", err)
	}
	defer rows.Close()

	var folders []model.Folder
	for rows.Next() {
		var (
			f        model.Folder
			favorite int
		)
		if err := rows.Scan(&f.AccountID, &f.Path, &f.Name, &f.Type, &favorite); err != nil {
			return nil, fmt.Errorf("scanning watched folder row: %w", err)
		}
		f.Favorite = favorite != 0
		folders = append(folders, f)
	}

	return folders, rows.Err()
}

// SetWatchedFolders replaces the watched-folder set atomically.
func (s *SQLiteStore) SetWatchedFolders(ctx context.Context, folders []model.Folder) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM watched_folders"); err != nil {
		return fmt.Errorf("clearing watched folders: %w", err)
	}

	const query = `
		INSERT INTO watched_folders (account_id, path, name, type, favorite, added_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	for _, f := range folders {
		_, err := tx.ExecContext(ctx, query,
			f.AccountID, f.Path, f.Name, f.Type,
			boolToInt(f.Favorite), time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("inserting watched folder %s%s: %w", f.AccountID, f.Path, err)
		}
	}

	return tx.Commit()
}

// GetMode returns the configured notification mode, defaulting to simple.
func (s *SQLiteStore) GetMode(ctx context.Context) (model.Mode, error) {
	val, err := s.getSetting(ctx, settingMode)
	if err != nil {
		return "", err
	}
	if val == "" {
		return model.ModeSimple, nil
	}
	return model.Mode(val), nil
}

// SetMode stores the notification mode.
func (s *SQLiteStore) SetMode(ctx context.Context, mode model.Mode) error {
	return s.setSetting(ctx, settingMode, string(mode))
}

// GetConnectionType returns the configured connection type, defaulting to
// connectionless.
func (s *SQLiteStore) GetConnectionType(ctx context.Context) (model.ConnectionType, error) {
	val, err := s.getSetting(ctx, settingConnectionType)
	if err != nil {
		return "", err
	}
	if val == "" {
		return model.Connectionless, nil
	}
	return model.ConnectionType(val), nil
}

// SetConnectionType stores the connection type.
func (s *SQLiteStore) SetConnectionType(ctx context.Context, ct model.ConnectionType) error {
	return s.setSetting(ctx, settingConnectionType, string(ct))
}

// FirstRunDone reports whether initial setup has completed.
func (s *SQLiteStore) FirstRunDone(ctx context.Context) (bool, error) {
	val, err := s.getSetting(ctx, settingFirstRunDone)
	if err != nil {
		return false, err
	}
	return val == "1", nil
}

// MarkFirstRunDone records that initial setup has completed.
func (s *SQLiteStore) MarkFirstRunDone(ctx context.Context) error {
	return s.setSetting(ctx, settingFirstRunDone, "1")
}

// LogNotification appends a delivered notification to the log.
func (s *SQLiteStore) LogNotification(ctx context.Context, rec NotificationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_log (id, event, account_id, folder_path, subject, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Event), rec.AccountID, rec.FolderPath,
		rec.Subject, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("logging notification: %w", err)
	}

	return nil
}

// RecentNotifications retrieves the most recently delivered notifications,
// newest first.
func (s *SQLiteStore) RecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, event, account_id, folder_path, subject, created_at
		FROM notification_log ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying notification log: %w", err)
	}
	defer rows.Close()

	var records []NotificationRecord
	for rows.Next() {
		var (
			rec       NotificationRecord
			event     string
			createdAt time.Time
		)
		err := rows.Scan(
			&rec.ID, &event, &rec.AccountID, &rec.FolderPath,
			&rec.Subject, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning notification row: %w", err)
		}
		rec.Event = model.Event(event)
		rec.CreatedAt = createdAt
		records = append(records, rec)
	}

	return records, rows.Err()
}

// getSetting returns the value for key, or "" if the key is absent.
func (s *SQLiteStore) getSetting(ctx context.Context, key string) (string, error) {
	var val string
	err := s.db.GetContext(ctx, &val, "SELECT value FROM settings WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading setting %q: %w", key, err)
	}
	return val, nil
}

// setSetting inserts or replaces the value for key.
func (s *SQLiteStore) setSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", key, value,
	)
	if err != nil {
		return fmt.Errorf("writing setting %q: %w", key, err)
	}
	return nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
