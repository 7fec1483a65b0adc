package outbox

import (
	"errors"
	"fmt"
)

// Kind tells the processor whether a failed message is worth retrying.
type Kind int

const (
	KindTransient Kind = iota
	KindPermanent
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error tags a handler failure with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Transient(err error) error {
	return tag(KindTransient, err)
}

func Permanent(err error) error {
	return tag(KindPermanent, err)
}

func Malformed(err error) error {
	return tag(KindMalformed, err)
}

func tag(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of the outermost tagged error in the chain.
// Untagged errors are transient.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindTransient
}

var (
	ErrUnknownEventType  = errors.New("outbox event type is not registered")
	ErrEventTypeRequired = errors.New("outbox event type is required")
	ErrInvalidPayload    = errors.New("outbox payload must be valid JSON")
	ErrConcurrentUpdate  = errors.New("outbox message was updated concurrently")
	ErrHandlerPanic      = errors.New("outbox handler panic")
)
