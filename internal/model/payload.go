package model

// Payload is one JSON-serializable notification value delivered to the
// external consumer. Simple mode sends a bare boolean; extended mode sends
// a structured snapshot.
type Payload interface {
	payload()
}

// SimplePayload is the simple-mode payload: "has unread mail", or the
// literal true for a new-mail notification. It marshals as a bare JSON
// boolean.
type SimplePayload bool

func (SimplePayload) payload() {}

// ExtendedPayload is the extended-mode payload: the full account listing,
// per-watched-folder summaries, the event tag, and the message detail
// (nil for a start event).
type ExtendedPayload struct {
	Accounts []Account       `json:"accounts"`
	Folders  []FolderSummary `json:"folders"`
	Event    Event           `json:"event"`
	Message  *Message        `json:"message"`
}

func (*ExtendedPayload) payload() {}
