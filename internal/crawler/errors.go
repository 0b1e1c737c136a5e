package crawler

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDisallowed means robots.txt forbids the search endpoint for our agent.
	ErrDisallowed = errors.New("disallowed by robots.txt")

	// ErrDecode marks a response body that could not be turned into a payload.
	ErrDecode = errors.New("decode failure")

	// ErrShortBody is a body too short to hold the guard prefix.
	ErrShortBody = fmt.Errorf("%w: body shorter than guard prefix", ErrDecode)
)

// FailureKind names the class of a fetch error for logs and metrics.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDisallowed):
		return "robots"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transport"
	}
}
