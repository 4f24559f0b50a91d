package mazerunner

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Error kinds. Match them with errors.Is.
var (
	// ErrValidation matches every 4xx response and every locally rejected request.
	ErrValidation = errors.New("mazerunner: validation failed")
	// ErrAuthentication matches 401 and 403 responses.
	ErrAuthentication = errors.New("mazerunner: authentication rejected")
	// ErrNotFound matches 404 responses.
	ErrNotFound = errors.New("mazerunner: resource not found")
	// ErrServer matches 5xx responses.
	ErrServer = errors.New("mazerunner: server error")

	ErrNotEditable          = errors.New("resource type is not editable")
	ErrNotCreatable         = errors.New("resource type does not support create")
	ErrNotDeletable         = errors.New("resource type does not support delete")
	ErrNotSupported         = errors.New("mazerunner: operation not supported for this resource type")
	ErrEntityDeleted        = errors.New("mazerunner: entity was deleted")
	ErrNoSuchField          = errors.New("mazerunner: no such field")
	ErrInvalidInstallMethod = errors.New("mazerunner: invalid install method")
	ErrClientClosed         = errors.New("mazerunner: client is closed")
)

// APIError is returned when MazeRunner answers with a non-success status, or with
// a body that cannot be decoded.
type APIError struct {
	StatusCode int
	Message    string
	// Fields holds per-field messages when the server returned a validation map,
	// e.g. {"ip_address": ["Enter a valid IPv4 address."]}.
	Fields map[string][]string
	// BadResponse is set when the status was a success but the body was not JSON.
	BadResponse bool
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("mazerunner api error (%d): %s", e.StatusCode, e.Message)
}

// Is maps the status code onto the error kinds.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.BadResponse || (e.StatusCode >= 400 && e.StatusCode < 500)
	case ErrAuthentication:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrServer:
		return e.StatusCode >= 500
	}
	return false
}

// NonFieldErrors returns the server's "non_field_errors" messages, if any.
func (e *APIError) NonFieldErrors() []string {
	return e.Fields["non_field_errors"]
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}

	// Django REST framework answers with either {"detail": "..."} or a map of
	// field name to a list of messages.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return apiErr
	}
	if detail, ok := raw["detail"]; ok {
		var msg string
		if json.Unmarshal(detail, &msg) == nil && msg != "" {
			apiErr.Message = msg
		}
		return apiErr
	}
	fields := make(map[string][]string)
	for key, value := range raw {
		var msgs []string
		if json.Unmarshal(value, &msgs) == nil {
			fields[key] = msgs
			continue
		}
		var msg string
		if json.Unmarshal(value, &msg) == nil {
			fields[key] = []string{msg}
		}
	}
	if len(fields) > 0 {
		apiErr.Fields = fields
	}
	return apiErr
}

// ConnectionError is returned when MazeRunner could not be reached at all.
type ConnectionError struct {
	Method string
	URL    string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mazerunner: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ValidationError is a request rejected locally, before anything was sent.
type ValidationError struct {
	Resource string
	Err      error
}

func (e *ValidationError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("mazerunner: invalid request: %v", e.Err)
	}
	return fmt.Sprintf("mazerunner: invalid %s request: %v", e.Resource, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// FieldNames lists the offending fields when the cause is a field error map.
func (e *ValidationError) FieldNames() []string {
	var errs validation.Errors
	if !errors.As(e.Err, &errs) {
		return nil
	}
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsNotFound reports whether err is a 404 from MazeRunner.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
