package engine

import "github.com/mailwatch/mailwatch/internal/model"

// SeenStore is the per-folder set of message ids already accounted for:
// notified as new (or otherwise interacted with) and not yet deleted.
//
// It is mutated only from event handlers and the startup scan, which the
// watcher invokes serially, so no locking is needed. A host that delivers
// events concurrently must add per-folder mutual exclusion around it.
type SeenStore struct {
	sets map[model.FolderKey]map[string]struct{}
}

// NewSeenStore creates an empty seen store.
func NewSeenStore() *SeenStore {
	return &SeenStore{sets: make(map[model.FolderKey]map[string]struct{})}
}

// MarkSeen adds the id to the folder's set, creating the set if absent.
// Idempotent.
func (s *SeenStore) MarkSeen(folder model.FolderKey, id string) {
	set, ok := s.sets[folder]
	if !ok {
		set = make(map[string]struct{})
		s.sets[folder] = set
	}
	set[id] = struct{}{}
}

// Unmark removes the id from the folder's set. No-op if absent.
func (s *SeenStore) Unmark(folder model.FolderKey, id string) {
	if set, ok := s.sets[folder]; ok {
		delete(set, id)
	}
}

// IsSeen reports whether the id is in the folder's set.
func (s *SeenStore) IsSeen(folder model.FolderKey, id string) bool {
	_, ok := s.sets[folder][id]
	return ok
}

// Count returns the size of the folder's set. Used only for reporting in
// extended-mode payloads.
func (s *SeenStore) Count(folder model.FolderKey) int {
	return len(s.sets[folder])
}

// Reset replaces the folder's set with exactly the given ids.
func (s *SeenStore) Reset(folder model.FolderKey, ids []string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	s.sets[folder] = set
}

// RetainOnly drops the sets of every folder not in keep. Called when the
// watched-folder configuration changes, so entries for removed folders do
// not linger.
func (s *SeenStore) RetainOnly(keep map[model.FolderKey]model.Folder) {
	for key := range s.sets {
		if _, ok := keep[key]; !ok {
			delete(s.sets, key)
		}
	}
}
