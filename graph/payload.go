package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ID is an identifier as it appears on the wire. The platform sends string ids,
// some older endpoints send numbers; both decode to the same text. Integral
// numbers are written without a fraction or exponent, so 1, 1.0 and 1e0 are one id.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(numberText(n))
	return nil
}

// maxExactInt is the largest magnitude a float64 holds without rounding.
const maxExactInt = 1 << 53

func numberText(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := n.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) <= maxExactInt {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return n.String()
}

// GraphPayload is the wire form of a project model graph.
type GraphPayload struct {
	Vertices []VertexPayload `json:"vertices"`
	Edges    []EdgePayload   `json:"edges"`
}

// VertexPayload is one entry of GraphPayload.Vertices.
type VertexPayload struct {
	ID       ID     `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// EdgePayload is one entry of GraphPayload.Edges. Source and Destination are vertex ids.
type EdgePayload struct {
	ID          ID `json:"id"`
	Source      ID `json:"source"`
	Destination ID `json:"destination"`
}

// GraphInstancePayload is the wire form of the graph of a single case.
type GraphInstancePayload struct {
	VertexInstances []VertexInstancePayload `json:"vertexInstances"`
	EdgeInstances   []EdgeInstancePayload   `json:"edgeInstances"`
	ReworkTotal     int                     `json:"reworkTotal"`
	ConcurrencyRate *float64                `json:"concurrencyRate"`
}

// VertexInstancePayload is one entry of GraphInstancePayload.VertexInstances.
// The platform omits ConcurrentVertices entirely when there are no peers.
type VertexInstancePayload struct {
	ID                 ID          `json:"id"`
	Name               string      `json:"name"`
	EventInstance      *int        `json:"eventInstance"`
	Category           string      `json:"category,omitempty"`
	ConcurrentVertices []VertexRef `json:"concurrentVertices,omitempty"`
}

// VertexRef refers to a vertex instance by name and event instance.
type VertexRef struct {
	Name          string `json:"name"`
	EventInstance *int   `json:"eventInstance"`
}

// EndpointPayload describes one end of an edge instance.
type EndpointPayload struct {
	ID            ID     `json:"id"`
	Name          string `json:"name"`
	EventInstance *int   `json:"eventInstance"`
}

// EdgeInstancePayload is one entry of GraphInstancePayload.EdgeInstances.
type EdgeInstancePayload struct {
	Source          EndpointPayload `json:"source"`
	Destination     EndpointPayload `json:"destination"`
	ConcurrentEdges []EdgeRef       `json:"concurrentEdges,omitempty"`
}

// EdgeRef refers to an edge instance by both of its endpoints.
type EdgeRef struct {
	Source      EndpointPayload `json:"source"`
	Destination EndpointPayload `json:"destination"`
}
