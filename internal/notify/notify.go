// Package notify delivers notification payloads to the external consumer
// over length-prefixed JSON frames.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/mailwatch/mailwatch/internal/model"
)

// Notifier delivers one payload to the external consumer.
type Notifier interface {
	Deliver(ctx context.Context, payload model.Payload) error
}

// DeliveryError indicates the consumer could not be reached or the write
// failed. It is surfaced to the caller rather than retried; the in-flight
// notification is not redelivered.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivering notification: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsDeliveryError reports whether err (or any error in its chain) is a
// DeliveryError.
func IsDeliveryError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}
