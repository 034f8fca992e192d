package model

// Event is the semantic tag of a notification.
type Event string

// Event tags, named as they appear on the wire.
const (
	EventStart   Event = "start"
	EventNew     Event = "new"
	EventRead    Event = "read"
	EventDeleted Event = "deleted"
)
