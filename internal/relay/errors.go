package relay

import (
	"errors"
	"fmt"
)

// ErrMalformedPayload marks a delivery that is not valid JSON or lacks a
// field the dispatcher needs.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// Processing stages, used in errors, logs and metrics.
const (
	StageResolve  = "resolve"
	StageFetch    = "fetch"
	StageStore    = "store"
	StageClassify = "classify"
	StageUpsert   = "upsert"
	StageNotify   = "notify"
)

// StageError is a collaborator failure. Every stage failure aborts the
// invocation; there is no retry and no partial success.
type StageError struct {
	Stage string
	Event int // index of the event in the delivery
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("event %d: %s: %v", e.Event, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func malformed(index int, format string, args ...any) error {
	return fmt.Errorf("%w: event %d: %s", ErrMalformedPayload, index, fmt.Sprintf(format, args...))
}
