package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind separates failures that may succeed on a later run from ones
// that will not.
type ErrorKind string

const (
	KindTransient ErrorKind = "transient" // timeout, connection reset, 5xx
	KindPermanent ErrorKind = "permanent" // 404, malformed content, bad URL
)

// PageError records one URL's failure. Page failures never abort a run; they
// are surfaced in the run result next to the successful pages.
type PageError struct {
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code,omitempty"`
	Kind       ErrorKind `json:"kind"`
	Err        error     `json:"-"`
	Message    string    `json:"message"`
}

func (e *PageError) Error() string {
	return fmt.Sprintf("crawl %s: %s", e.URL, e.Message)
}

func (e *PageError) Unwrap() error { return e.Err }

func newPageError(u string, status int, err error) *PageError {
	pe := &PageError{
		URL:        u,
		StatusCode: status,
		Err:        err,
		Message:    err.Error(),
	}
	pe.Kind = classify(status, err)
	return pe
}

func classify(status int, err error) ErrorKind {
	if status >= 500 || status == 408 || status == 429 {
		return KindTransient
	}
	if status >= 400 {
		return KindPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindTransient
	}
	return KindPermanent
}
