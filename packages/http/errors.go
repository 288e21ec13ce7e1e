package http

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrTransport matches every error returned by Client.Do.
var ErrTransport = errors.New("transport error")

// TransportError describes a request that produced no response.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// Timeout reports whether the request ran out of time.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

func transportErr(op, url string, err error) error {
	return &TransportError{Op: op, URL: url, Err: err}
}
