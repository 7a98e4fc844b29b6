package cluster

import "errors"

var (
	// ErrUnresolvedReference is returned when the reference-GC pass (or
	// the debug integrity check) finds a back-reference that does not
	// resolve to any retained packet: a fatal integrity violation of the
	// input.
	ErrUnresolvedReference = errors.New("cluster: back-reference could not be resolved")
	// ErrWriterNotSet is returned by Render when no output writer has been
	// bound via SetOutput.
	ErrWriterNotSet = errors.New("cluster: output writer not set")
)
