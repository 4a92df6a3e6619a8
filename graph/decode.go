package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

type vertexKey struct {
	name  string
	event int
}

type instanceID struct {
	id    string
	event int
}

type endpointKey struct {
	id    string
	name  string
	event int
}

type edgeKey struct {
	src endpointKey
	dst endpointKey
}

// DecodeGraph parses a model graph payload and builds the Graph.
func DecodeGraph(projectID string, data []byte) (*Graph, error) {
	var p GraphPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, decodeErr(projectID, fmt.Errorf("parse graph: %w", err))
	}
	return BuildGraph(projectID, &p)
}

// BuildGraph links a parsed model graph payload. Every edge must reference
// vertices of the payload; otherwise the whole build fails with ErrMalformedEdge.
func BuildGraph(projectID string, p *GraphPayload) (*Graph, error) {
	if p == nil {
		return nil, decodeErr(projectID, ErrNilPayload)
	}

	g := &Graph{
		ProjectID: projectID,
		Vertices:  make([]*Vertex, 0, len(p.Vertices)),
		Edges:     make([]*Edge, 0, len(p.Edges)),
	}
	byID := make(map[string]*Vertex, len(p.Vertices))

	for i, pv := range p.Vertices {
		if pv.ID == "" {
			return nil, decodeErr(projectID, missing("vertices["+strconv.Itoa(i)+"]", "id"))
		}
		v := &Vertex{
			ID:       string(pv.ID),
			Name:     pv.Name,
			Category: ResolveCategory(pv.Category, pv.Name),
		}
		g.Vertices = append(g.Vertices, v)
		if _, dup := byID[v.ID]; !dup {
			byID[v.ID] = v
		}
	}

	for _, pe := range p.Edges {
		src, ok := byID[string(pe.Source)]
		if !ok {
			return nil, decodeErr(projectID, &EdgeError{Edge: string(pe.ID), Endpoint: "source", Ref: string(pe.Source)})
		}
		dst, ok := byID[string(pe.Destination)]
		if !ok {
			return nil, decodeErr(projectID, &EdgeError{Edge: string(pe.ID), Endpoint: "destination", Ref: string(pe.Destination)})
		}
		g.Edges = append(g.Edges, &Edge{ID: string(pe.ID), Source: src, Destination: dst})
	}

	return g, nil
}

// DecodeGraphInstance parses a graph instance payload and builds the GraphInstance.
func DecodeGraphInstance(projectID string, data []byte) (*GraphInstance, error) {
	var p GraphInstancePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, decodeErr(projectID, fmt.Errorf("parse graph instance: %w", err))
	}
	return BuildGraphInstance(projectID, &p)
}

// BuildGraphInstance links a parsed graph instance payload.
//
// Concurrency relations arrive as forward references, so construction runs in
// passes: all vertices first, then their concurrency sets, then all edges, then
// theirs. Edge endpoints are matched on (id, event instance) and a miss is fatal.
// Concurrency references that match nothing are dropped.
func BuildGraphInstance(projectID string, p *GraphInstancePayload) (*GraphInstance, error) {
	if p == nil {
		return nil, decodeErr(projectID, ErrNilPayload)
	}

	vertices, vertexRefs, err := buildVertexInstances(p.VertexInstances)
	if err != nil {
		return nil, decodeErr(projectID, err)
	}
	resolveVertexConcurrency(vertices, vertexRefs)

	edges, edgeRefs, err := buildEdgeInstances(p.EdgeInstances, vertices)
	if err != nil {
		return nil, decodeErr(projectID, err)
	}
	resolveEdgeConcurrency(edges, edgeRefs)

	rate := RateNotComputed
	if p.ConcurrencyRate != nil {
		rate = *p.ConcurrencyRate
	}

	return &GraphInstance{
		ProjectID:       projectID,
		Vertices:        vertices,
		Edges:           edges,
		ReworkTotal:     p.ReworkTotal,
		ConcurrencyRate: rate,
	}, nil
}

func buildVertexInstances(in []VertexInstancePayload) ([]*VertexInstance, [][]vertexKey, error) {
	vertices := make([]*VertexInstance, 0, len(in))
	refs := make([][]vertexKey, 0, len(in))

	for i, pv := range in {
		path := "vertexInstances[" + strconv.Itoa(i) + "]"
		if pv.ID == "" {
			return nil, nil, missing(path, "id")
		}
		if pv.EventInstance == nil {
			return nil, nil, missing(path, "eventInstance")
		}

		keys := make([]vertexKey, 0, len(pv.ConcurrentVertices))
		for _, ref := range pv.ConcurrentVertices {
			if ref.EventInstance == nil {
				continue
			}
			keys = append(keys, vertexKey{name: ref.Name, event: *ref.EventInstance})
		}

		vertices = append(vertices, &VertexInstance{
			Vertex: Vertex{
				ID:       string(pv.ID),
				Name:     pv.Name,
				Category: ResolveCategory(pv.Category, pv.Name),
			},
			EventInstance: *pv.EventInstance,
		})
		refs = append(refs, keys)
	}

	return vertices, refs, nil
}

func resolveVertexConcurrency(vertices []*VertexInstance, refs [][]vertexKey) {
	index := make(map[vertexKey][]int, len(vertices))
	for i, v := range vertices {
		k := v.key()
		index[k] = append(index[k], i)
	}

	for i, v := range vertices {
		v.ConcurrentVertices = pick(vertices, matches(index, refs[i], i))
	}
}

func buildEdgeInstances(in []EdgeInstancePayload, vertices []*VertexInstance) ([]*EdgeInstance, [][]edgeKey, error) {
	byID := make(map[instanceID]*VertexInstance, len(vertices))
	for _, v := range vertices {
		k := instanceID{id: v.ID, event: v.EventInstance}
		if _, dup := byID[k]; !dup {
			byID[k] = v
		}
	}

	edges := make([]*EdgeInstance, 0, len(in))
	refs := make([][]edgeKey, 0, len(in))

	for i, pe := range in {
		name := edgeName(i, pe)
		src, err := lookupEndpoint(byID, pe.Source, name, "source")
		if err != nil {
			return nil, nil, err
		}
		dst, err := lookupEndpoint(byID, pe.Destination, name, "destination")
		if err != nil {
			return nil, nil, err
		}

		keys := make([]edgeKey, 0, len(pe.ConcurrentEdges))
		for _, ref := range pe.ConcurrentEdges {
			if k, ok := refKey(ref); ok {
				keys = append(keys, k)
			}
		}

		edges = append(edges, &EdgeInstance{Source: src, Destination: dst})
		refs = append(refs, keys)
	}

	return edges, refs, nil
}

func resolveEdgeConcurrency(edges []*EdgeInstance, refs [][]edgeKey) {
	index := make(map[edgeKey][]int, len(edges))
	for i, e := range edges {
		k := e.key()
		index[k] = append(index[k], i)
	}

	for i, e := range edges {
		e.ConcurrentEdges = pick(edges, matches(index, refs[i], i))
	}
}

func lookupEndpoint(byID map[instanceID]*VertexInstance, ep EndpointPayload, edge, side string) (*VertexInstance, error) {
	if ep.EventInstance == nil {
		return nil, &EdgeError{Edge: edge, Endpoint: side, Ref: string(ep.ID)}
	}
	v, ok := byID[instanceID{id: string(ep.ID), event: *ep.EventInstance}]
	if !ok {
		return nil, &EdgeError{Edge: edge, Endpoint: side, Ref: string(ep.ID) + "#" + strconv.Itoa(*ep.EventInstance)}
	}
	return v, nil
}

func refKey(ref EdgeRef) (edgeKey, bool) {
	if ref.Source.EventInstance == nil || ref.Destination.EventInstance == nil {
		return edgeKey{}, false
	}
	return edgeKey{
		src: endpointKey{id: string(ref.Source.ID), name: ref.Source.Name, event: *ref.Source.EventInstance},
		dst: endpointKey{id: string(ref.Destination.ID), name: ref.Destination.Name, event: *ref.Destination.EventInstance},
	}, true
}

func edgeName(i int, pe EdgeInstancePayload) string {
	side := func(ep EndpointPayload) string {
		if ep.EventInstance == nil {
			return string(ep.ID)
		}
		return string(ep.ID) + "#" + strconv.Itoa(*ep.EventInstance)
	}
	return "edgeInstances[" + strconv.Itoa(i) + "] " + side(pe.Source) + "->" + side(pe.Destination)
}

// matches returns the sorted, de-duplicated positions referenced by keys, minus self.
func matches[K comparable](index map[K][]int, keys []K, self int) []int {
	if len(keys) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(keys))
	out := make([]int, 0, len(keys))
	for _, k := range keys {
		for _, j := range index[k] {
			if j == self {
				continue
			}
			if _, ok := seen[j]; ok {
				continue
			}
			seen[j] = struct{}{}
			out = append(out, j)
		}
	}
	sort.Ints(out)
	return out
}

func pick[T any](all []T, positions []int) []T {
	out := make([]T, 0, len(positions))
	for _, j := range positions {
		out = append(out, all[j])
	}
	return out
}
