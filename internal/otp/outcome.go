package otp

import (
	"errors"
	"fmt"
)

// Status is the result category of a Check.
type Status int

const (
	StatusValid Status = iota
	StatusNotFound
	StatusExpired
	StatusTooManyAttempts
	StatusMismatch
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusNotFound:
		return "not_found"
	case StatusExpired:
		return "expired"
	case StatusTooManyAttempts:
		return "too_many_attempts"
	case StatusMismatch:
		return "mismatch"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

var (
	ErrCodeNotFound    = errors.New("no verification code found")
	ErrCodeExpired     = errors.New("verification code expired")
	ErrTooManyAttempts = errors.New("too many failed attempts")
	ErrCodeMismatch    = errors.New("invalid code")
)

// MismatchError reports a wrong code and how many checks remain before the
// entry is evicted.
type MismatchError struct {
	Remaining int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("Invalid code. %d attempts remaining.", e.Remaining)
}

func (e *MismatchError) Unwrap() error {
	return ErrCodeMismatch
}

// Outcome is the result of Check. Remaining is only meaningful for
// StatusMismatch.
type Outcome struct {
	Status    Status
	Remaining int
}

// Valid reports whether the candidate code was accepted.
func (o Outcome) Valid() bool {
	return o.Status == StatusValid
}

// Err converts a failed outcome into an error; it is nil for StatusValid.
func (o Outcome) Err() error {
	switch o.Status {
	case StatusValid:
		return nil
	case StatusNotFound:
		return ErrCodeNotFound
	case StatusExpired:
		return ErrCodeExpired
	case StatusTooManyAttempts:
		return ErrTooManyAttempts
	case StatusMismatch:
		return &MismatchError{Remaining: o.Remaining}
	default:
		return fmt.Errorf("unexpected code status %s", o.Status)
	}
}
