package domain

import "errors"

var (
	ErrActivityNotFound   = errors.New("activity not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrNoSeatsLeft        = errors.New("no seats left")
	ErrAlreadyEnrolled    = errors.New("already enrolled")
	ErrTransient          = errors.New("transient storage failure")
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

// TransientError marks a storage failure that left no partial effect and may be retried.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Is(target error) bool { return target == ErrTransient }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// KindOf classifies err for transports and retry decisions.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrActivityNotFound), errors.Is(err, ErrEnrollmentNotFound):
		return KindNotFound
	case errors.Is(err, ErrNoSeatsLeft), errors.Is(err, ErrAlreadyEnrolled):
		return KindConflict
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindInternal
	}
}
