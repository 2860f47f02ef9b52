package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrPairCollision reports that the authority rejected the pairing request
// because the device id is already bound elsewhere.
var ErrPairCollision = errors.New("device id collision")

// HTTPError is a non-success response from the authority.
type HTTPError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
}

// Is matches ErrPairCollision for a 400 returned by the pair endpoint.
func (e *HTTPError) Is(target error) bool {
	return target == ErrPairCollision && e.Op == opPair && e.StatusCode == http.StatusBadRequest
}
