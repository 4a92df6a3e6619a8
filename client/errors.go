package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidCredentials is returned when the token endpoint rejects the workgroup id or key.
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrUnsupportedFileType is returned by AddFile for extensions the platform cannot ingest.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrReadOnlyQuery is returned when a datasource query would modify data.
	ErrReadOnlyQuery = errors.New("datasource queries must be read-only")
	// ErrNoDatasource is returned when a project has no datasource of the requested kind.
	ErrNoDatasource = errors.New("datasource not found")
	// ErrInvalidColumn reports an inconsistent column definition.
	ErrInvalidColumn = errors.New("invalid column")
	// ErrInvalidMapping reports an inconsistent set of columns.
	ErrInvalidMapping = errors.New("invalid column mapping")
)

// APIError represents an error response from the platform API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("mining: %d %s: %s (request_id=%s)", e.StatusCode, e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("mining: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func hasStatus(err error, status int) bool {
	var e *APIError
	if errors.As(err, &e) {
		return e.StatusCode == status
	}
	return false
}

// IsNotFound returns true if the error is a 404 not found.
func IsNotFound(err error) bool { return hasStatus(err, http.StatusNotFound) }

// IsUnauthorized returns true if the error is a 401, i.e. the retry with a fresh token also failed.
func IsUnauthorized(err error) bool { return hasStatus(err, http.StatusUnauthorized) }

// IsForbidden returns true if the error is a 403 forbidden.
func IsForbidden(err error) bool { return hasStatus(err, http.StatusForbidden) }

// parseAPIError attempts to decode a JSON error body; falls back to raw text.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = "unknown"
		apiErr.Message = string(body)
	}
	return apiErr
}
