package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mailwatch/mailwatch/internal/mailclient"
	"github.com/mailwatch/mailwatch/internal/model"
	"github.com/mailwatch/mailwatch/internal/store"
)

// Notifier delivers one payload to the external consumer.
type Notifier interface {
	Deliver(ctx context.Context, payload model.Payload) error
}

// Options tunes engine behavior.
type Options struct {
	// RetryAttempts bounds the startup-scan retry loop. Zero means the
	// default of 10 attempts.
	RetryAttempts int

	// RetryDelay is the fixed pause between startup-scan attempts. Zero
	// means the default of one second.
	RetryDelay time.Duration

	Logger *log.Logger
}

// Engine owns the notification state machine: which folders are watched,
// which messages have already been notified, and what payload each mail
// event turns into. Its handlers must be invoked serially.
type Engine struct {
	store    store.Store
	client   mailclient.Client
	notifier Notifier
	seen     *SeenStore
	logger   *log.Logger

	retryAttempts int
	retryDelay    time.Duration
}

// New creates an engine. The seen set starts empty; call Start to populate
// it from the current folder contents.
func New(st store.Store, client mailclient.Client, notifier Notifier, opts Options) *Engine {
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 10
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Engine{
		store:         st,
		client:        client,
		notifier:      notifier,
		seen:          NewSeenStore(),
		logger:        opts.Logger,
		retryAttempts: opts.RetryAttempts,
		retryDelay:    opts.RetryDelay,
	}
}

// Seen exposes the engine's seen set for inspection.
func (e *Engine) Seen() *SeenStore {
	return e.seen
}

// snapshot reads the watched-folder set and mode fresh from the store.
// Handlers take one snapshot per event so a concurrent settings change
// cannot split a single event across two configurations.
type snapshot struct {
	folders []model.Folder
	byKey   map[model.FolderKey]model.Folder
	mode    model.Mode
}

func (s *snapshot) isWatched(folder model.Folder) bool {
	if folder.AccountID == "" && folder.Path == "" {
		return false
	}
	_, ok := s.byKey[folder.Key()]
	return ok
}

func (e *Engine) snapshot(ctx context.Context) (*snapshot, error) {
	folders, err := e.store.GetWatchedFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading watched folders: %w", err)
	}
	mode, err := e.store.GetMode(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading notification mode: %w", err)
	}

	byKey := make(map[model.FolderKey]model.Folder, len(folders))
	for _, f := range folders {
		byKey[f.Key()] = f
	}
	return &snapshot{folders: folders, byKey: byKey, mode: mode}, nil
}

// Start performs the startup scan and emits the start notification. Folder
// listings can fail right after the mail client comes up, so both the scan
// and the payload query run under the bounded retry. With no watched
// folders configured it does nothing.
func (e *Engine) Start(ctx context.Context) error {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	if len(snap.folders) == 0 {
		e.logger.Printf("engine: no watched folders configured, nothing to do")
		return nil
	}

	err = Retry(ctx, e.retryAttempts, e.retryDelay, func(ctx context.Context) error {
		return e.scanFolders(ctx, snap.folders)
	})
	if err != nil {
		return fmt.Errorf("startup scan: %w", err)
	}

	var payload model.Payload
	switch snap.mode {
	case model.ModeSimple:
		var unread bool
		err = Retry(ctx, e.retryAttempts, e.retryDelay, func(ctx context.Context) error {
			var uerr error
			unread, uerr = e.anyUnread(ctx, snap.folders)
			return uerr
		})
		if err != nil {
			return fmt.Errorf("startup unread check: %w", err)
		}
		payload = model.SimplePayload(unread)
	default:
		var perr error
		err = Retry(ctx, e.retryAttempts, e.retryDelay, func(ctx context.Context) error {
			payload, perr = e.buildExtended(ctx, snap, model.EventStart, nil)
			return perr
		})
		if err != nil {
			return fmt.Errorf("startup payload: %w", err)
		}
	}

	return e.dispatch(ctx, model.EventStart, payload, nil)
}

// scanFolders resets each folder's seen set to the ids of its current
// unread, non-junk messages. Messages already read are deliberately left
// out: deleting them later must not notify.
func (e *Engine) scanFolders(ctx context.Context, folders []model.Folder) error {
	for _, folder := range folders {
		pager, err := e.client.ListMessages(ctx, folder)
		if err != nil {
			return err
		}

		var ids []string
		for {
			msgs, err := pager.Next(ctx)
			if err != nil {
				pager.Close()
				return err
			}
			if msgs == nil {
				break
			}
			for _, m := range msgs {
				if m.Junk || m.Read {
					continue
				}
				ids = append(ids, m.ID)
			}
		}

		e.seen.Reset(folder.Key(), ids)
	}
	return nil
}

// HandleNewMail processes a batch of messages that arrived in folder.
// Junk messages are dropped. In simple mode one notification covers the
// whole batch and the seen set is untouched; in extended mode every
// not-yet-seen message notifies individually and is then marked seen, so
// redelivered duplicates stay silent.
func (e *Engine) HandleNewMail(ctx context.Context, folder model.Folder, msgs []model.Message) error {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	if !snap.isWatched(folder) {
		return nil
	}

	if snap.mode == model.ModeSimple {
		for _, m := range msgs {
			if m.Junk {
				continue
			}
			return e.dispatch(ctx, model.EventNew, model.SimplePayload(true), &m)
		}
		return nil
	}

	key := folder.Key()
	for i := range msgs {
		m := msgs[i]
		if m.Junk || e.seen.IsSeen(key, m.ID) {
			continue
		}
		payload, err := e.buildExtended(ctx, snap, model.EventNew, &m)
		if err != nil {
			return err
		}
		if err := e.dispatch(ctx, model.EventNew, payload, &m); err != nil {
			return err
		}
		e.seen.MarkSeen(key, m.ID)
	}
	return nil
}

// HandleMessageUpdated processes a flag change on one message. Only a
// transition to read notifies; it never removes the message from the seen
// set, so the set stays monotone until deletion. Updates to junk messages
// or messages in unwatched folders are ignored, though in extended mode an
// update still records the message as seen so later duplicate new-mail
// events stay silent.
func (e *Engine) HandleMessageUpdated(ctx context.Context, msg model.Message, change model.FlagChange) error {
	if msg.Junk {
		return nil
	}
	snap, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	if !snap.isWatched(msg.Folder) {
		return nil
	}

	if change.Read == nil || !*change.Read {
		if snap.mode == model.ModeExtended {
			e.seen.MarkSeen(msg.Folder.Key(), msg.ID)
		}
		return nil
	}

	var payload model.Payload
	if snap.mode == model.ModeSimple {
		unread, err := e.anyUnread(ctx, snap.folders)
		if err != nil {
			return err
		}
		payload = model.SimplePayload(unread)
	} else {
		payload, err = e.buildExtended(ctx, snap, model.EventRead, &msg)
		if err != nil {
			return err
		}
	}
	return e.dispatch(ctx, model.EventRead, payload, &msg)
}

// HandleMessagesDeleted processes a batch of deleted messages. Every
// non-junk message in a watched folder leaves the seen set; only the ones
// deleted while still unread notify. Simple mode sends at most one
// notification for the batch.
func (e *Engine) HandleMessagesDeleted(ctx context.Context, msgs []model.Message) error {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return err
	}

	notified := false
	for i := range msgs {
		m := msgs[i]
		if m.Junk || !snap.isWatched(m.Folder) {
			continue
		}
		e.seen.Unmark(m.Folder.Key(), m.ID)
		if m.Read {
			continue
		}

		if snap.mode == model.ModeSimple {
			if notified {
				continue
			}
			unread, err := e.anyUnread(ctx, snap.folders)
			if err != nil {
				return err
			}
			if err := e.dispatch(ctx, model.EventDeleted, model.SimplePayload(unread), &m); err != nil {
				return err
			}
			notified = true
			continue
		}

		payload, err := e.buildExtended(ctx, snap, model.EventDeleted, &m)
		if err != nil {
			return err
		}
		if err := e.dispatch(ctx, model.EventDeleted, payload, &m); err != nil {
			return err
		}
	}
	return nil
}

// ReloadConfig re-reads the watched-folder set after a settings change,
// drops seen entries of folders no longer watched, and rescans the rest so
// folders watched for the first time start from their current contents.
func (e *Engine) ReloadConfig(ctx context.Context) error {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return err
	}

	e.seen.RetainOnly(snap.byKey)
	if len(snap.folders) == 0 {
		return nil
	}
	return e.scanFolders(ctx, snap.folders)
}

// anyUnread reports whether any watched folder has unread mail, stopping
// at the first folder that does.
func (e *Engine) anyUnread(ctx context.Context, folders []model.Folder) (bool, error) {
	for _, folder := range folders {
		unread, err := e.client.HasUnread(ctx, folder)
		if err != nil {
			return false, err
		}
		if unread {
			return true, nil
		}
	}
	return false, nil
}

// dispatch delivers the payload and records the notification. A failed
// log write is reported but does not fail the delivery.
func (e *Engine) dispatch(ctx context.Context, event model.Event, payload model.Payload, msg *model.Message) error {
	if err := e.notifier.Deliver(ctx, payload); err != nil {
		return err
	}

	rec := store.NotificationRecord{Event: event}
	if msg != nil {
		rec.AccountID = msg.Folder.AccountID
		rec.FolderPath = msg.Folder.Path
		rec.Subject = msg.Subject
	}
	if err := e.store.LogNotification(ctx, rec); err != nil {
		e.logger.Printf("engine: recording %s notification: %v", event, err)
	}
	return nil
}
