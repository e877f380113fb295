package reconcile

import "errors"

var (
	// ErrLinkDisabled is returned when a full run is requested for a disabled link.
	ErrLinkDisabled = errors.New("link is disabled")
	// ErrGroupUnreachable is returned when either group of a link cannot be fetched.
	ErrGroupUnreachable = errors.New("source or target group unreachable")
)
