package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoToken is returned before any network I/O when a call has no bearer token.
var ErrNoToken = errors.New("upstream: no session token")

// ErrorKind classifies API failures.
type ErrorKind int

const (
	// KindUpstream means the API answered with a non-success status or an unreadable body.
	KindUpstream ErrorKind = iota + 1
	// KindNetwork means no HTTP answer was obtained.
	KindNetwork
)

func (k ErrorKind) String() string {
	switch k {
	case KindUpstream:
		return "upstream"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// APIError is a failed call to the remote API.
type APIError struct {
	Kind    ErrorKind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	switch e.Kind {
	case KindUpstream:
		return fmt.Sprintf("%s: upstream status %d: %s", e.Op, e.Status, e.Message)
	default:
		return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err is an upstream 401 or 403, i.e. a dead token.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != KindUpstream {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}
