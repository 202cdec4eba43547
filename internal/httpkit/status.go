package httpkit

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of a failed response is kept in a
// StatusError.
const maxErrorBody = 4096

// StatusError is a non-2xx reply from a model provider's HTTP API.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s API error %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s API error %d: %s", e.Service, e.StatusCode, body)
}

// RateLimited reports a 429 reply.
func (e *StatusError) RateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

// Unauthorized reports a rejected or missing API key.
func (e *StatusError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// CheckResponse returns nil for a 2xx response. Otherwise it consumes
// and closes the body and returns a *StatusError naming service.
func CheckResponse(service string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{
		Service:    service,
		StatusCode: resp.StatusCode,
		Body:       ReadErrorBody(resp.Body, maxErrorBody),
	}
}

// StatusCode extracts the HTTP status from err, or 0 when err did not
// come from CheckResponse.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
