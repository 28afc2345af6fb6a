package proxy

import "errors"

var (
	// ErrInvalidTarget indicates the requested URL could not be parsed
	// or is not absolute http/https.
	ErrInvalidTarget = errors.New("invalid target url")
	// ErrUnsafeTarget indicates the target resolves to an address the
	// safety policy refuses to reach.
	ErrUnsafeTarget = errors.New("target address not allowed")
	// ErrUpstream wraps transport-level failures talking to the origin.
	ErrUpstream = errors.New("upstream request failed")
)
