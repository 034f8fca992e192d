package notify

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/mailwatch/mailwatch/internal/model"
)

// WriterNotifier frames payloads onto a fixed writer, typically stdout
// when the process runs as a native-messaging host.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier creates a notifier that writes frames to w.
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

func (n *WriterNotifier) Deliver(_ context.Context, payload model.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := WriteFrame(n.w, payload); err != nil {
		return &DeliveryError{Err: err}
	}
	return nil
}

// SocketNotifier frames payloads onto a network connection. Connectionless
// delivery dials a fresh connection per payload; connection-based delivery
// keeps one connection open and redials it on the next delivery after a
// failure.
type SocketNotifier struct {
	network    string
	address    string
	persistent bool

	mu   sync.Mutex
	conn net.Conn
}

// NewSocketNotifier creates a socket notifier for the given endpoint.
func NewSocketNotifier(network, address string, ct model.ConnectionType) *SocketNotifier {
	return &SocketNotifier{
		network:    network,
		address:    address,
		persistent: ct == model.ConnectionBased,
	}
}

func (n *SocketNotifier) Deliver(ctx context.Context, payload model.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.persistent {
		conn, err := n.dial(ctx)
		if err != nil {
			return &DeliveryError{Err: err}
		}
		defer conn.Close()
		if err := WriteFrame(conn, payload); err != nil {
			return &DeliveryError{Err: err}
		}
		return nil
	}

	if n.conn == nil {
		conn, err := n.dial(ctx)
		if err != nil {
			return &DeliveryError{Err: err}
		}
		n.conn = conn
	}

	if err := WriteFrame(n.conn, payload); err != nil {
		n.conn.Close()
		n.conn = nil
		return &DeliveryError{Err: err}
	}
	return nil
}

// Close releases the persistent connection, if any.
func (n *SocketNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	return err
}

func (n *SocketNotifier) dial(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, n.network, n.address)
}
