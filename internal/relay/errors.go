package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a failed relay call.
type Kind string

const (
	KindNotConfigured Kind = "not_configured"
	KindAuth          Kind = "auth"
	KindUnreachable   Kind = "unreachable"
	KindTimeout       Kind = "timeout"
	KindRemote        Kind = "remote"
	KindOther         Kind = "other"
)

// Error is returned by every Client call that does not succeed.
type Error struct {
	Kind Kind

	// StatusCode is the connector's response code for KindAuth and KindRemote.
	StatusCode int

	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotConfigured:
		return "Connector not configured"
	case KindAuth:
		return "Authentication failed. Check your token."
	case KindUnreachable:
		return "Could not connect to connector. Is it running?"
	case KindTimeout:
		return "Connection timeout. Connector may be slow or offline."
	case KindRemote:
		return fmt.Sprintf("Connector returned error: %d", e.StatusCode)
	default:
		if e.Err != nil {
			return fmt.Sprintf("Error: %s", e.Err)
		}
		return "Error: relay failed"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus is the status the export service answers with for this failure.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotConfigured:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindUnreachable:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindRemote:
		if e.StatusCode >= 400 && e.StatusCode < 600 {
			return e.StatusCode
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsKind reports whether err is a relay error of kind k.
func IsKind(err error, k Kind) bool {
	var relayErr *Error
	return errors.As(err, &relayErr) && relayErr.Kind == k
}

// classify maps a transport failure from http.Client.Do to an Error.
func classify(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return &Error{Kind: KindUnreachable, Err: err}
	}

	return &Error{Kind: KindOther, Err: err}
}
