package upstream

import (
	"fmt"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of a failed upstream response is kept.
const maxErrorBody = 4 << 10

// StatusError is returned by Open when the upstream answered with a non-2xx status.
type StatusError struct {
	Code   int
	Header http.Header
	Body   []byte
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(string(e.Body))
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.Code, msg)
}

// StatusCode returns the upstream HTTP status.
func (e *StatusError) StatusCode() int { return e.Code }

// Headers returns the upstream response headers.
func (e *StatusError) Headers() http.Header { return e.Header }
