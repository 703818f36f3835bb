package entity

import (
	"errors"
	"fmt"
)

// The worker classifies every job failure as permanent or transient.
// Permanent failures are short-circuited to the dead-letter queue instead of
// consuming the redelivery budget; transient failures leave the message on
// the queue so the redrive policy decides.
var (
	ErrPermanent = errors.New("permanent failure")
	ErrTransient = errors.New("transient failure")
)

func Permanent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermanent, fmt.Sprintf(format, args...))
}

func PermanentWrap(err error, msg string) error {
	return fmt.Errorf("%w: %s: %w", ErrPermanent, msg, err)
}

func Transient(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransient, fmt.Sprintf(format, args...))
}

func TransientWrap(err error, msg string) error {
	return fmt.Errorf("%w: %s: %w", ErrTransient, msg, err)
}

func IsPermanent(err error) bool { return errors.Is(err, ErrPermanent) }
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }
