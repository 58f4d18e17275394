package model

import "errors"

// Domain error taxonomy shared by the lifecycle, intake and publisher
// services. Handlers map these onto HTTP statuses; no state change has
// happened when one of them is returned.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("operation not valid for current status")
	ErrConflict          = errors.New("already exists")
)

// ValidationError rejects an operation before any mutation, e.g. a
// scheduled time in the past or an empty rejection comment.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}
