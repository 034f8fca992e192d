// Package watch polls the mail client and turns folder content changes
// into engine events.
package watch

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mailwatch/mailwatch/internal/engine"
	"github.com/mailwatch/mailwatch/internal/mailclient"
	"github.com/mailwatch/mailwatch/internal/model"
	"github.com/mailwatch/mailwatch/internal/store"
)

// Watcher drives the engine: on an interval it lists every watched
// folder, diffs the listing against the previous one, and feeds the
// differences to the engine as new-mail, flag-change, and deletion
// events. All engine calls happen on the Run goroutine, which keeps
// event handling serial.
type Watcher struct {
	client   mailclient.Client
	engine   *engine.Engine
	store    store.Store
	logger   *log.Logger
	interval time.Duration

	mu        sync.Mutex
	running   bool
	triggerCh chan struct{}
	stopCh    chan struct{}

	// baseline is the last observed listing per watched folder, keyed by
	// message id. Only the Run goroutine touches it.
	baseline map[model.FolderKey]map[string]model.Message
}

// New creates a watcher polling at the given interval.
func New(client mailclient.Client, eng *engine.Engine, st store.Store, interval time.Duration, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Watcher{
		client:    client,
		engine:    eng,
		store:     st,
		logger:    logger,
		interval:  interval,
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		baseline:  make(map[model.FolderKey]map[string]model.Message),
	}
}

// Run starts the engine, seeds the baseline from the current folder
// contents, and then polls until the context is canceled or Stop is
// called. It returns the engine's startup error, if any; poll failures
// are logged and retried on the next tick.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	if err := w.engine.Start(ctx); err != nil {
		return err
	}
	w.seedBaseline(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-w.triggerCh:
			if err := w.engine.ReloadConfig(ctx); err != nil {
				w.logger.Printf("watch: reloading configuration: %v", err)
			}
			w.baseline = make(map[model.FolderKey]map[string]model.Message)
			w.seedBaseline(ctx)
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// TriggerRescan asks the Run loop to reload the watched-folder
// configuration and rebuild its baseline. Non-blocking; a pending
// trigger is not queued twice.
func (w *Watcher) TriggerRescan() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Stop ends the Run loop.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

// seedBaseline records the current listing of every watched folder
// without emitting events.
func (w *Watcher) seedBaseline(ctx context.Context) {
	folders, err := w.store.GetWatchedFolders(ctx)
	if err != nil {
		w.logger.Printf("watch: loading watched folders: %v", err)
		return
	}
	for _, folder := range folders {
		listing, err := w.listFolder(ctx, folder)
		if err != nil {
			w.logger.Printf("watch: seeding %s%s: %v", folder.AccountID, folder.Path, err)
			continue
		}
		w.baseline[folder.Key()] = listing
	}
}

// poll diffs every watched folder against the baseline and forwards the
// differences to the engine. A folder whose listing fails keeps its old
// baseline and is retried next tick.
func (w *Watcher) poll(ctx context.Context) {
	folders, err := w.store.GetWatchedFolders(ctx)
	if err != nil {
		w.logger.Printf("watch: loading watched folders: %v", err)
		return
	}

	for _, folder := range folders {
		key := folder.Key()
		current, err := w.listFolder(ctx, folder)
		if err != nil {
			w.logger.Printf("watch: listing %s%s: %v", folder.AccountID, folder.Path, err)
			continue
		}

		prev, ok := w.baseline[key]
		if !ok {
			// Folder watched for the first time without a config trigger;
			// adopt its contents silently.
			w.baseline[key] = current
			continue
		}

		w.diffFolder(ctx, folder, prev, current)
		w.baseline[key] = current
	}
}

func (w *Watcher) diffFolder(ctx context.Context, folder model.Folder, prev, current map[string]model.Message) {
	var arrived []model.Message
	for id, msg := range current {
		before, ok := prev[id]
		if !ok {
			arrived = append(arrived, msg)
			continue
		}
		if change, changed := flagChange(before, msg); changed {
			if err := w.engine.HandleMessageUpdated(ctx, msg, change); err != nil {
				w.logger.Printf("watch: message update in %s%s: %v", folder.AccountID, folder.Path, err)
			}
		}
	}
	if len(arrived) > 0 {
		if err := w.engine.HandleNewMail(ctx, folder, arrived); err != nil {
			w.logger.Printf("watch: new mail in %s%s: %v", folder.AccountID, folder.Path, err)
		}
	}

	var removed []model.Message
	for id, msg := range prev {
		if _, ok := current[id]; !ok {
			removed = append(removed, msg)
		}
	}
	if len(removed) > 0 {
		if err := w.engine.HandleMessagesDeleted(ctx, removed); err != nil {
			w.logger.Printf("watch: deletions in %s%s: %v", folder.AccountID, folder.Path, err)
		}
	}
}

// flagChange compares two observations of the same message and reports
// which notification-relevant flags changed.
func flagChange(before, after model.Message) (model.FlagChange, bool) {
	if !before.Read && after.Read {
		read := true
		return model.FlagChange{Read: &read}, true
	}
	if before.Flagged != after.Flagged {
		return model.FlagChange{}, true
	}
	return model.FlagChange{}, false
}

// listFolder drains a full listing of the folder into an id-keyed map.
func (w *Watcher) listFolder(ctx context.Context, folder model.Folder) (map[string]model.Message, error) {
	pager, err := w.client.ListMessages(ctx, folder)
	if err != nil {
		return nil, err
	}

	listing := make(map[string]model.Message)
	for {
		msgs, err := pager.Next(ctx)
		if err != nil {
			pager.Close()
			return nil, err
		}
		if msgs == nil {
			break
		}
		for _, m := range msgs {
			listing[m.ID] = m
		}
	}
	return listing, nil
}
