package packfile

import "errors"

var (
	// ErrBadSignature is returned when the 4-byte "PACK" magic is absent.
	ErrBadSignature = errors.New("malformed pack signature")
	// ErrUnsupportedVersion is returned for a pack version other than 2 or 3.
	ErrUnsupportedVersion = errors.New("unsupported pack version")
	// ErrMalformedPack covers any other structural failure while scanning.
	ErrMalformedPack = errors.New("malformed pack")
	// ErrSeekNotSupported is returned by Seek when the underlying source is
	// not seekable and the requested offset isn't the current position.
	ErrSeekNotSupported = errors.New("pack source does not support seeking")
	// ErrBaseNotFound is returned when a delta's base object could not be
	// resolved within the pack being scanned.
	ErrBaseNotFound = errors.New("delta base not found in pack")
)
