package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var ErrTooManyRedirects = errors.New("too many redirects")

type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindConnection ErrorKind = "connection"
	KindStatus     ErrorKind = "status"
	KindRedirect   ErrorKind = "redirect"
	KindOther      ErrorKind = "other"
)

// NetworkError is returned by Client for every failed fetch.
type NetworkError struct {
	Kind       ErrorKind
	StatusCode int
	URL        string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("%s: GET %s: http status %d", e.Label(), e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s: GET %s: %v", e.Label(), e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Label is a low-cardinality name for metrics and logs.
func (e *NetworkError) Label() string {
	if e.Kind != KindStatus {
		return string(e.Kind)
	}
	switch e.StatusCode {
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "http_status"
	}
}

// Throttled reports whether the merchant pushed back on our request rate.
func (e *NetworkError) Throttled() bool {
	return e.Kind == KindStatus &&
		(e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable)
}

// ErrorLabel returns the NetworkError label of err, or "other".
func ErrorLabel(err error) string {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.Label()
	}
	return string(KindOther)
}

func classifyError(rawURL string, err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if err != nil {
		kind := KindOther
		var netErr net.Error
		var opErr *net.OpError
		var dnsErr *net.DNSError
		switch {
		case errors.Is(err, ErrTooManyRedirects):
			kind = KindRedirect
		case errors.Is(err, context.DeadlineExceeded):
			kind = KindTimeout
		case errors.As(err, &netErr) && netErr.Timeout():
			kind = KindTimeout
		case errors.As(err, &opErr), errors.As(err, &dnsErr):
			kind = KindConnection
		}
		return &NetworkError{Kind: kind, URL: rawURL, Err: err}
	}

	if statusCode < 200 || statusCode > 299 {
		return &NetworkError{
			Kind:       KindStatus,
			StatusCode: statusCode,
			URL:        rawURL,
			Err:        fmt.Errorf("http status %d", statusCode),
		}
	}

	return nil
}
