package feed

import (
	"errors"
	"fmt"
)

// ErrMalformedXML reports a feed document that could not be decoded at all.
var ErrMalformedXML = errors.New("malformed feed xml")

// FetchErrorKind classifies fetch failures.
type FetchErrorKind string

const (
	// KindTransport covers connection, DNS, timeout and body read failures.
	KindTransport FetchErrorKind = "transport"
	// KindHTTPStatus covers responses with a non-2xx status.
	KindHTTPStatus FetchErrorKind = "http_status"
)

// FetchError is returned by Fetcher.Fetch.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
