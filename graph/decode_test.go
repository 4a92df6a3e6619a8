package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simpleGraph = `{
	"vertices": [
		{"id": "1", "name": "START"},
		{"id": "2", "name": "A"},
		{"id": "3", "name": "END"}
	],
	"edges": [
		{"id": "e1", "source": "1", "destination": "2"},
		{"id": "e2", "source": "2", "destination": "3"}
	]
}`

func TestDecodeGraph_Scenario(t *testing.T) {
	g, err := DecodeGraph("p1", []byte(simpleGraph))
	require.NoError(t, err)

	assert.Equal(t, "p1", g.ProjectID)
	require.Len(t, g.Vertices, 3)
	require.Len(t, g.Edges, 2)

	assert.Equal(t, CategoryStart, g.Vertices[0].Category)
	assert.Equal(t, CategoryTask, g.Vertices[1].Category)
	assert.Equal(t, CategoryEnd, g.Vertices[2].Category)

	assert.Same(t, g.Vertices[0], g.Edges[0].Source)
	assert.Same(t, g.Vertices[1], g.Edges[0].Destination)
	assert.Same(t, g.Vertices[1], g.Edges[1].Source)
	assert.Same(t, g.Vertices[2], g.Edges[1].Destination)
	assert.Equal(t, "e2", g.Edges[1].ID)
}

func TestDecodeGraph_EndpointsBelongToGraph(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"vertices":[`)
	const n = 50
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"id":"v%d","name":"step %d"}`, i, i)
	}
	b.WriteString(`],"edges":[`)
	for i := 0; i < n-1; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"id":"e%d","source":"v%d","destination":"v%d"}`, i, i, (i*7+3)%n)
	}
	b.WriteString(`]}`)

	g, err := DecodeGraph("p", []byte(b.String()))
	require.NoError(t, err)
	require.Len(t, g.Vertices, n)

	owned := make(map[*Vertex]bool, n)
	for i, v := range g.Vertices {
		assert.Equal(t, fmt.Sprintf("v%d", i), v.ID, "payload order must be kept")
		owned[v] = true
	}
	for _, e := range g.Edges {
		assert.True(t, owned[e.Source], "edge %s source not owned", e.ID)
		assert.True(t, owned[e.Destination], "edge %s destination not owned", e.ID)
	}
}

func TestDecodeGraph_MalformedEdge(t *testing.T) {
	payload := `{
		"vertices": [{"id":"1","name":"START"},{"id":"2","name":"A"},{"id":"3","name":"END"}],
		"edges": [{"id":"e1","source":"1","destination":"9"}]
	}`

	g, err := DecodeGraph("p1", []byte(payload))
	require.Error(t, err)
	assert.Nil(t, g)
	assert.True(t, errors.Is(err, ErrMalformedEdge))

	var edgeErr *EdgeError
	require.True(t, errors.As(err, &edgeErr))
	assert.Equal(t, "e1", edgeErr.Edge)
	assert.Equal(t, "destination", edgeErr.Endpoint)
	assert.Equal(t, "9", edgeErr.Ref)

	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, "p1", decErr.ProjectID)
	assert.Contains(t, err.Error(), `"e1"`)
}

func TestDecodeGraph_MissingSource(t *testing.T) {
	payload := `{"vertices":[{"id":"1","name":"A"}],"edges":[{"id":"e7","source":"0","destination":"1"}]}`
	_, err := DecodeGraph("p", []byte(payload))
	var edgeErr *EdgeError
	require.True(t, errors.As(err, &edgeErr))
	assert.Equal(t, "source", edgeErr.Endpoint)
}

func TestDecodeGraph_ExplicitCategoryAndNumericIDs(t *testing.T) {
	payload := `{
		"vertices": [
			{"id": 10, "name": "split", "category": "AND_SPLIT"},
			{"id": 11, "name": "join", "category": "gateway_and_join"}
		],
		"edges": [{"id": 1, "source": 10, "destination": 11}]
	}`
	g, err := DecodeGraph("p", []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, "10", g.Vertices[0].ID)
	assert.Equal(t, CategoryAndSplit, g.Vertices[0].Category)
	assert.Equal(t, CategoryAndJoin, g.Vertices[1].Category)
	assert.True(t, g.Vertices[0].IsGateway())
	assert.Equal(t, "1", g.Edges[0].ID)
}

func TestDecodeGraph_IntegralNumericIDsMatch(t *testing.T) {
	payload := `{
		"vertices": [
			{"id": 1.0, "name": "START"},
			{"id": 2, "name": "END"}
		],
		"edges": [
			{"id": "e1", "source": 1, "destination": 2e0},
			{"id": "e2", "source": 2.00, "destination": 1}
		]
	}`
	g, err := DecodeGraph("p", []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, "1", g.Vertices[0].ID)
	assert.Same(t, g.Vertices[0], g.Edges[0].Source)
	assert.Same(t, g.Vertices[1], g.Edges[0].Destination)
	assert.Same(t, g.Vertices[1], g.Edges[1].Source)
}

func TestIDUnmarshalNumbers(t *testing.T) {
	cases := map[string]ID{
		`7`:                    "7",
		`7.0`:                  "7",
		`-3`:                   "-3",
		`1e3`:                  "1000",
		`1.5`:                  "1.5",
		`"1.0"`:                "1.0",
		`9007199254740993`:     "9007199254740993",
		`12345678901234567890`: "12345678901234567890",
		`null`:                 "",
	}
	for in, want := range cases {
		var id ID
		require.NoError(t, json.Unmarshal([]byte(in), &id), in)
		assert.Equal(t, want, id, in)
	}
}

func TestDecodeGraph_InvalidPayloads(t *testing.T) {
	_, err := DecodeGraph("p", []byte(`{"vertices": [`))
	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))

	_, err = DecodeGraph("p", []byte(`{"vertices":[{"name":"no id"}],"edges":[]}`))
	assert.True(t, errors.Is(err, ErrMissingField))

	_, err = BuildGraph("p", nil)
	assert.True(t, errors.Is(err, ErrNilPayload))
}

func TestDecodeGraph_EmptyPayload(t *testing.T) {
	g, err := DecodeGraph("p", []byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, g.Vertices)
	assert.Empty(t, g.Edges)
}

func TestDecodeGraphInstance_NoConcurrencyFields(t *testing.T) {
	payload := `{
		"vertexInstances": [
			{"id":"v1","name":"START","eventInstance":1},
			{"id":"v2","name":"A","eventInstance":1},
			{"id":"v3","name":"END","eventInstance":1}
		],
		"edgeInstances": [
			{"source":{"id":"v1","name":"START","eventInstance":1},"destination":{"id":"v2","name":"A","eventInstance":1}},
			{"source":{"id":"v2","name":"A","eventInstance":1},"destination":{"id":"v3","name":"END","eventInstance":1}}
		],
		"reworkTotal": 0,
		"concurrencyRate": 0
	}`

	gi, err := DecodeGraphInstance("p", []byte(payload))
	require.NoError(t, err)
	require.Len(t, gi.Vertices, 3)
	require.Len(t, gi.Edges, 2)

	for _, v := range gi.Vertices {
		assert.NotNil(t, v.ConcurrentVertices)
		assert.Empty(t, v.ConcurrentVertices)
	}
	for _, e := range gi.Edges {
		assert.NotNil(t, e.ConcurrentEdges)
		assert.Empty(t, e.ConcurrentEdges)
	}
	assert.Equal(t, CategoryStart, gi.Vertices[0].Category)
	assert.True(t, gi.RateComputed())
	assert.Same(t, gi.Vertices[0], gi.Edges[0].Source)
}

func TestDecodeGraphInstance_VertexConcurrencyScenario(t *testing.T) {
	payload := `{
		"vertexInstances": [
			{"name":"A","eventInstance":1,"id":"v1"},
			{"name":"B","eventInstance":1,"id":"v2","concurrentVertices":[{"name":"A","eventInstance":1}]}
		],
		"edgeInstances": [],
		"reworkTotal": 0,
		"concurrencyRate": 0.5
	}`

	gi, err := DecodeGraphInstance("p", []byte(payload))
	require.NoError(t, err)

	a, b := gi.Vertices[0], gi.Vertices[1]
	require.Len(t, b.ConcurrentVertices, 1)
	assert.Same(t, a, b.ConcurrentVertices[0])
	assert.Empty(t, a.ConcurrentVertices)
	assert.InDelta(t, 0.5, gi.ConcurrencyRate, 1e-9)
}

func TestDecodeGraphInstance_VertexConcurrencyMatchesNameNotID(t *testing.T) {
	payload := `{
		"vertexInstances": [
			{"id":"x1","name":"A","eventInstance":2},
			{"id":"x2","name":"A","eventInstance":2},
			{"id":"x3","name":"C","eventInstance":1,"concurrentVertices":[
				{"name":"A","eventInstance":2},
				{"name":"A","eventInstance":2},
				{"name":"A","eventInstance":9}
			]}
		],
		"edgeInstances": []
	}`

	gi, err := DecodeGraphInstance("p", []byte(payload))
	require.NoError(t, err)

	c := gi.Vertices[2]
	require.Len(t, c.ConcurrentVertices, 2, "both A#2 vertices match; duplicates and unknown keys are dropped")
	assert.Same(t, gi.Vertices[0], c.ConcurrentVertices[0])
	assert.Same(t, gi.Vertices[1], c.ConcurrentVertices[1])
}

func TestDecodeGraphInstance_KeysDoNotCollide(t *testing.T) {
	payload := `{
		"vertexInstances": [
			{"id":"a","name":"A1","eventInstance":1},
			{"id":"b","name":"A","eventInstance":11},
			{"id":"c","name":"Z","eventInstance":1,"concurrentVertices":[{"name":"A","eventInstance":11}]}
		],
		"edgeInstances": []
	}`
	gi, err := DecodeGraphInstance("p", []byte(payload))
	require.NoError(t, err)
	require.Len(t, gi.Vertices[2].ConcurrentVertices, 1)
	assert.Equal(t, "b", gi.Vertices[2].ConcurrentVertices[0].ID)
}

func TestDecodeGraphInstance_VertexNeverConcurrentWithItself(t *testing.T) {
	payload := `{
		"vertexInstances": [
			{"id":"v1","name":"A","eventInstance":1,"concurrentVertices":[{"name":"A","eventInstance":1},{"name":"B","eventInstance":1}]},
			{"id":"v2","name":"B","eventInstance":1,"concurrentVertices":[{"name":"A","eventInstance":1}]}
		],
		"edgeInstances": []
	}`
	gi, err := DecodeGraphInstance("p", []byte(payload))
	require.NoError(t, err)

	a, b := gi.Vertices[0], gi.Vertices[1]
	require.Len(t, a.ConcurrentVertices, 1)
	assert.Same(t, b, a.ConcurrentVertices[0])
	require.Len(t, b.ConcurrentVertices, 1)
	assert.Same(t, a, b.ConcurrentVertices[0])
}

// reworkPayload has vertex v2 visited twice; edges must bind to the right visit.
const reworkPayload = `{
	"vertexInstances": [
		{"id":"v1","name":"START","eventInstance":1},
		{"id":"v2","name":"Check","eventInstance":1},
		{"id":"v2","name":"Check","eventInstance":2},
		{"id":"v3","name":"Ship","eventInstance":1},
		{"id":"v4","name":"END","eventInstance":1}
	],
	"edgeInstances": [
		{"source":{"id":"v1","name":"START","eventInstance":1},"destination":{"id":"v2","name":"Check","eventInstance":1}},
		{"source":{"id":"v2","name":"Check","eventInstance":1},"destination":{"id":"v2","name":"Check","eventInstance":2},
		 "concurrentEdges":[
			{"source":{"id":"v2","name":"Check","eventInstance":1},"destination":{"id":"v3","name":"Ship","eventInstance":1}},
			{"source":{"id":"v2","name":"Check","eventInstance":1},"destination":{"id":"v2","name":"Check","eventInstance":2}}
		 ]},
		{"source":{"id":"v2","name":"Check","eventInstance":1},"destination":{"id":"v3","name":"Ship","eventInstance":1},
		 "concurrentEdges":[
			{"source":{"id":"v2","name":"Check","eventInstance":1},"destination":{"id":"v2","name":"Check","eventInstance":2}},
			{"source":{"id":"v9","name":"Gone","eventInstance":1},"destination":{"id":"v3","name":"Ship","eventInstance":1}}
		 ]},
		{"source":{"id":"v2","name":"Check","eventInstance":2},"destination":{"id":"v4","name":"END","eventInstance":1}},
		{"source":{"id":"v3","name":"Ship","eventInstance":1},"destination":{"id":"v4","name":"END","eventInstance":1}}
	],
	"reworkTotal": 1,
	"concurrencyRate": null
}`

func TestDecodeGraphInstance_ReworkEndpointsUseEventInstance(t *testing.T) {
	gi, err := DecodeGraphInstance("p", []byte(reworkPayload))
	require.NoError(t, err)

	assert.Equal(t, 1, gi.ReworkTotal)
	assert.False(t, gi.RateComputed())
	assert.Equal(t, RateNotComputed, gi.ConcurrencyRate)

	check1, check2 := gi.Vertices[1], gi.Vertices[2]
	assert.Same(t, check1, gi.Edges[1].Source)
	assert.Same(t, check2, gi.Edges[1].Destination)
	assert.Same(t, check2, gi.Edges[3].Source)
	assert.Equal(t, "v2#1->v2#2", gi.Edges[1].String())
}

func TestDecodeGraphInstance_EdgeConcurrencyExcludesSelf(t *testing.T) {
	gi, err := DecodeGraphInstance("p", []byte(reworkPayload))
	require.NoError(t, err)

	loop, ship := gi.Edges[1], gi.Edges[2]

	require.Len(t, loop.ConcurrentEdges, 1, "self reference must be dropped")
	assert.Same(t, ship, loop.ConcurrentEdges[0])

	require.Len(t, ship.ConcurrentEdges, 1, "reference to an unknown edge must be dropped")
	assert.Same(t, loop, ship.ConcurrentEdges[0])

	for _, e := range gi.Edges {
		for _, peer := range e.ConcurrentEdges {
			assert.NotSame(t, e, peer)
		}
	}
}

func TestDecodeGraphInstance_MalformedEdge(t *testing.T) {
	tests := []struct {
		name     string
		edge     string
		endpoint string
	}{
		{
			name:     "unknown id",
			edge:     `{"source":{"id":"v1","name":"A","eventInstance":1},"destination":{"id":"v9","name":"X","eventInstance":1}}`,
			endpoint: "destination",
		},
		{
			name:     "known id wrong visit",
			edge:     `{"source":{"id":"v1","name":"A","eventInstance":3},"destination":{"id":"v2","name":"B","eventInstance":1}}`,
			endpoint: "source",
		},
		{
			name:     "missing event instance",
			edge:     `{"source":{"id":"v1","name":"A"},"destination":{"id":"v2","name":"B","eventInstance":1}}`,
			endpoint: "source",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload := `{
				"vertexInstances": [
					{"id":"v1","name":"A","eventInstance":1},
					{"id":"v2","name":"B","eventInstance":1}
				],
				"edgeInstances": [` + tc.edge + `]
			}`
			gi, err := DecodeGraphInstance("p", []byte(payload))
			require.Error(t, err)
			assert.Nil(t, gi)
			assert.True(t, errors.Is(err, ErrMalformedEdge))

			var edgeErr *EdgeError
			require.True(t, errors.As(err, &edgeErr))
			assert.Equal(t, tc.endpoint, edgeErr.Endpoint)
			assert.Contains(t, edgeErr.Edge, "edgeInstances[0]")
		})
	}
}

func TestDecodeGraphInstance_MissingRequiredFields(t *testing.T) {
	_, err := DecodeGraphInstance("p", []byte(`{"vertexInstances":[{"id":"v1","name":"A"}],"edgeInstances":[]}`))
	assert.True(t, errors.Is(err, ErrMissingField))
	assert.Contains(t, err.Error(), "eventInstance")

	_, err = DecodeGraphInstance("p", []byte(`{"vertexInstances":[{"name":"A","eventInstance":1}],"edgeInstances":[]}`))
	assert.True(t, errors.Is(err, ErrMissingField))

	_, err = BuildGraphInstance("p", nil)
	assert.True(t, errors.Is(err, ErrNilPayload))
}

func TestDecodeGraphInstance_CategoryHonoured(t *testing.T) {
	payload := `{"vertexInstances":[{"id":"g","name":"split","eventInstance":1,"category":"gateway_xor_split"}],"edgeInstances":[]}`
	gi, err := DecodeGraphInstance("p", []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, CategoryXorSplit, gi.Vertices[0].Category)
	assert.True(t, gi.Vertices[0].IsGateway())
}

func TestGraphInstanceMarshalJSON_MutualConcurrency(t *testing.T) {
	gi, err := DecodeGraphInstance("p", []byte(reworkPayload))
	require.NoError(t, err)

	data, err := json.Marshal(gi)
	require.NoError(t, err, "mutually concurrent edges must not recurse")

	again, err := DecodeGraphInstance("p", data)
	require.NoError(t, err)
	require.Len(t, again.Edges, len(gi.Edges))
	assert.Len(t, again.Edges[1].ConcurrentEdges, 1)
	assert.Equal(t, gi.Edges[2].String(), again.Edges[1].ConcurrentEdges[0].String())
}

func TestGraphMarshalJSON_WireForm(t *testing.T) {
	g, err := DecodeGraph("p1", []byte(simpleGraph))
	require.NoError(t, err)

	data, err := json.Marshal(g)
	require.NoError(t, err)
	assert.Contains(t, string(data), `{"id":"e1","source":"1","destination":"2"}`)
}
