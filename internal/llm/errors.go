package llm

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// maxErrorBody bounds how much of a failed reply is kept on the error
const maxErrorBody = 2048

// StatusError is a non-success reply from a provider API
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s API error (status %d)", e.Provider, e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Temporary reports whether the same call may succeed later
func (e *StatusError) Temporary() bool {
	switch e.Code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// readStatusError drains a failed reply into a StatusError
func readStatusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Provider: provider,
		Code:     resp.StatusCode,
		Body:     strings.TrimSpace(string(body)),
	}
}

// fromGoogleAPI converts a googleapi error so Gemini failures retry like
// the HTTP providers. Other errors pass through.
func fromGoogleAPI(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &StatusError{Provider: "gemini", Code: gerr.Code, Body: gerr.Message}
	}
	return err
}
