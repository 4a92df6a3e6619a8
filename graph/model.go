// Package graph decodes process graphs returned by the mining platform into
// linked in-memory structures.
//
// A Graph is the discovered process model of a project. A GraphInstance is the
// graph of one case, where vertices may repeat (rework) and carry concurrency
// relations to other vertices and edges of the same instance. Values are
// immutable once decoded and safe to share between goroutines.
package graph

import (
	"encoding/json"
	"strconv"
	"strings"
)

// RateNotComputed is the ConcurrencyRate of an instance the platform did not score.
const RateNotComputed = -1.0

// Vertex is a process step.
type Vertex struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category Category `json:"category"`
}

// IsGateway reports whether the vertex is an AND/XOR split or join.
func (v *Vertex) IsGateway() bool { return v.Category.IsGateway() }

// GraphvizID returns a node identifier usable in DOT output.
func (v *Vertex) GraphvizID() string {
	return strings.ReplaceAll(v.Name, " ", "") + v.ID
}

// Edge is a directed transition between two vertices of the same Graph.
type Edge struct {
	ID          string
	Source      *Vertex
	Destination *Vertex
}

// MarshalJSON encodes the edge in its wire form, with endpoints as vertex ids.
func (e *Edge) MarshalJSON() ([]byte, error) {
	return json.Marshal(EdgePayload{
		ID:          ID(e.ID),
		Source:      ID(e.Source.ID),
		Destination: ID(e.Destination.ID),
	})
}

// Graph is the discovered process model of a project.
type Graph struct {
	ProjectID string    `json:"projectId"`
	Vertices  []*Vertex `json:"vertices"`
	Edges     []*Edge   `json:"edges"`
}

// VertexInstance is a vertex as visited within one case.
type VertexInstance struct {
	Vertex
	EventInstance int

	// ConcurrentVertices are peers of the same GraphInstance that overlap in time.
	ConcurrentVertices []*VertexInstance
}

// GraphvizID returns a node identifier usable in DOT output.
func (v *VertexInstance) GraphvizID() string {
	return v.Vertex.GraphvizID() + strconv.Itoa(v.EventInstance)
}

func (v *VertexInstance) key() vertexKey {
	return vertexKey{name: v.Name, event: v.EventInstance}
}

func (v *VertexInstance) endpoint() EndpointPayload {
	event := v.EventInstance
	return EndpointPayload{ID: ID(v.ID), Name: v.Name, EventInstance: &event}
}

// MarshalJSON encodes the vertex in its wire form; concurrent peers are written
// as references so that mutual concurrency does not recurse.
func (v *VertexInstance) MarshalJSON() ([]byte, error) {
	event := v.EventInstance
	out := VertexInstancePayload{
		ID:            ID(v.ID),
		Name:          v.Name,
		EventInstance: &event,
		Category:      string(v.Category),
	}
	for _, peer := range v.ConcurrentVertices {
		pe := peer.EventInstance
		out.ConcurrentVertices = append(out.ConcurrentVertices, VertexRef{Name: peer.Name, EventInstance: &pe})
	}
	return json.Marshal(out)
}

// EdgeInstance is a transition taken within one case.
type EdgeInstance struct {
	Source      *VertexInstance
	Destination *VertexInstance

	// ConcurrentEdges never contains the edge itself.
	ConcurrentEdges []*EdgeInstance
}

// String identifies the edge by its endpoints, e.g. "v1#1->v2#1".
func (e *EdgeInstance) String() string {
	return e.Source.ID + "#" + strconv.Itoa(e.Source.EventInstance) +
		"->" + e.Destination.ID + "#" + strconv.Itoa(e.Destination.EventInstance)
}

func (e *EdgeInstance) key() edgeKey {
	return edgeKey{
		src: endpointKey{id: e.Source.ID, name: e.Source.Name, event: e.Source.EventInstance},
		dst: endpointKey{id: e.Destination.ID, name: e.Destination.Name, event: e.Destination.EventInstance},
	}
}

// MarshalJSON encodes the edge in its wire form.
func (e *EdgeInstance) MarshalJSON() ([]byte, error) {
	out := EdgeInstancePayload{
		Source:      e.Source.endpoint(),
		Destination: e.Destination.endpoint(),
	}
	for _, peer := range e.ConcurrentEdges {
		out.ConcurrentEdges = append(out.ConcurrentEdges, EdgeRef{
			Source:      peer.Source.endpoint(),
			Destination: peer.Destination.endpoint(),
		})
	}
	return json.Marshal(out)
}

// GraphInstance is the graph of a single case.
type GraphInstance struct {
	ProjectID       string            `json:"projectId"`
	ProcessKey      string            `json:"processKey,omitempty"` // case id, set when fetched by key
	Vertices        []*VertexInstance `json:"vertexInstances"`
	Edges           []*EdgeInstance   `json:"edgeInstances"`
	ReworkTotal     int               `json:"reworkTotal"`
	ConcurrencyRate float64           `json:"concurrencyRate"`
}

// RateComputed reports whether the platform scored the instance's concurrency.
func (g *GraphInstance) RateComputed() bool {
	return g.ConcurrencyRate != RateNotComputed
}
