// Package dkiterrors defines the sentinel errors for the abstract error
// kinds of spec.md §7. Callers compare with errors.Is; wrapping preserves
// the underlying cause via %w the way the teacher's fmt.Errorf chains do.
package dkiterrors

import "errors"

var (
	ErrIOError            = errors.New("dkit: i/o error")
	ErrCorruptHeader      = errors.New("dkit: corrupt header")
	ErrCorruptEntry       = errors.New("dkit: corrupt entry")
	ErrUnsupportedVersion = errors.New("dkit: unsupported version")
	ErrTypeMismatch       = errors.New("dkit: structure type mismatch")
	ErrChecksumMismatch   = errors.New("dkit: checksum mismatch")
	ErrOverflow           = errors.New("dkit: overflow")
	ErrOutOfMemory        = errors.New("dkit: out of memory")
	ErrNotConfigured      = errors.New("dkit: store not configured")
	ErrInvalidArgument    = errors.New("dkit: invalid argument")
	ErrValidationFailed   = errors.New("dkit: validation failed")
)
