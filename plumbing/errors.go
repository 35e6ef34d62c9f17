package plumbing

import "errors"

// Sentinel errors returned by the plumbing layer. Callers should use
// errors.Is against these rather than comparing strings.
var (
	// ErrObjectNotFound is returned when an object id cannot be located in
	// any open pack or loose object store.
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidType is returned when an object's type byte does not match
	// one of the known Git object types.
	ErrInvalidType = errors.New("invalid object type")

	// ErrReferenceNotFound is returned by exact lookups against a
	// RefDatabase when the named reference does not exist.
	ErrReferenceNotFound = errors.New("reference not found")

	// ErrInvalidReferenceName is returned when a reference name fails
	// Git's naming rules (see IsValidReferenceName).
	ErrInvalidReferenceName = errors.New("invalid reference name")

	// ErrMaxSymRefDepth is returned by symbolic resolution once the
	// implementation-defined depth bound has been exceeded.
	ErrMaxSymRefDepth = errors.New("max. symbolic link depth exceeded")
)
