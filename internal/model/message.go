package model

import "time"

// Message is a mail message as observed from the mail client. The engine
// never mutates messages; it only reads them off events and queries.
//
// The JSON field names follow the wire shape of extended-mode payloads.
type Message struct {
	// ID is the client-scoped message identifier used for seen-set
	// bookkeeping. It is not part of the payload.
	ID string `json:"-"`

	// MessageID is the globally unique header message id, when known.
	MessageID string `json:"messageId"`

	// Author is the From header, display form ("Name <addr>").
	Author string `json:"author"`

	// CcList holds the Cc addresses.
	CcList []string `json:"ccList"`

	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
	Size    int64     `json:"size"`

	// HeadersOnly reports whether only the headers of the message have
	// been downloaded.
	HeadersOnly bool `json:"headersOnly"`

	// Junk reports whether the mail client classified the message as spam.
	// Junk messages never enter the seen set and never notify.
	Junk      bool `json:"junk"`
	JunkScore int  `json:"junkScore"`

	Read    bool     `json:"read"`
	Flagged bool     `json:"flagged"`
	Tags    []string `json:"tags"`

	// Folder is the containing folder.
	Folder Folder `json:"folder"`
}

// FlagChange describes which message flags an update event changed.
// A nil field means the flag was not part of the change.
type FlagChange struct {
	Read *bool
}
