package models

import "github.com/cockroachdb/errors"

// Error categories. Concrete errors are marked with one of these so callers
// can branch with errors.Is regardless of how deeply they were wrapped.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrProvider     = errors.New("provider error")
	ErrInvariant    = errors.New("invariant violation")
)

func NotFound(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

func InvalidInput(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidInput)
}

// ProviderError wraps a failure of a network-bound collaborator.
func ProviderError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrProvider)
}

func Invariant(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvariant)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
