// Package gateway abstracts the external messaging API used to
// deliver, edit and delete channel messages. Implementations classify
// every failure as retryable or permanent; the retryable ones are
// absorbed by the publisher's reschedule loop, the permanent ones
// terminate the post.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

type Result struct {
	MessageID string
}

// DeliveryError is the single error type returned by gateway calls.
// Retryable covers transport-level trouble (timeouts, network errors,
// flood control, remote 5xx); everything else is permanent.
type DeliveryError struct {
	Action    string
	Retryable bool
	Err       error
}

func (e *DeliveryError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("gateway %s: %s failure: %v", e.Action, kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a retryable delivery failure.
// A nil or non-gateway error is not retryable.
func IsRetryable(err error) bool {
	var derr *DeliveryError
	if errors.As(err, &derr) {
		return derr.Retryable
	}
	return false
}

type Gateway interface {
	Send(ctx context.Context, identifier, text, mediaURL string) (Result, error)
	Edit(ctx context.Context, identifier, messageID, text, mediaURL string) (Result, error)
	Delete(ctx context.Context, identifier, messageID string) error
	GetViews(ctx context.Context, identifier, messageID string) (int, error)
}
