package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors returned (wrapped) by the decoders.
var (
	ErrMalformedEdge = errors.New("invalid edge")
	ErrMissingField  = errors.New("missing required field")
	ErrNilPayload    = errors.New("nil payload")
)

// DecodeError is returned for every failed decode. No partial graph accompanies it.
type DecodeError struct {
	ProjectID string
	Err       error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("graph: decode project %s: %v", e.ProjectID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error { return e.Err }

// EdgeError names an edge whose endpoint does not resolve to a vertex of the graph.
type EdgeError struct {
	Edge     string // edge id, or the endpoint pair for edge instances
	Endpoint string // "source" or "destination"
	Ref      string // the reference that failed to resolve
}

// Error implements the error interface.
func (e *EdgeError) Error() string {
	return fmt.Sprintf("%v %q: %s %q not found", ErrMalformedEdge, e.Edge, e.Endpoint, e.Ref)
}

// Unwrap makes errors.Is(err, ErrMalformedEdge) hold.
func (e *EdgeError) Unwrap() error { return ErrMalformedEdge }

func decodeErr(projectID string, err error) *DecodeError {
	return &DecodeError{ProjectID: projectID, Err: err}
}

func missing(path, field string) error {
	return fmt.Errorf("%s: %w %q", path, ErrMissingField, field)
}
