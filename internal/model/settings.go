package model

// Mode selects the notification payload shape.
type Mode string

const (
	// ModeSimple reduces every payload to a boolean "has unread mail".
	ModeSimple Mode = "simple"

	// ModeExtended sends full account/folder/message detail.
	ModeExtended Mode = "extended"
)

// ConnectionType selects how the notifier talks to the external consumer.
type ConnectionType string

const (
	// Connectionless opens a fresh connection per notification.
	Connectionless ConnectionType = "connectionless"

	// ConnectionBased keeps one connection open across notifications.
	ConnectionBased ConnectionType = "connectionbased"
)
