package minetest

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Project is a project fixture. Exported fields are read by the handlers;
// the rest is state the API mutates.
type Project struct {
	ID          string
	Name        string
	Description string
	Archived    bool

	// Graph is served for mode=simplified, GatewaysGraph for mode=gateways
	// (falling back to Graph).
	Graph         json.RawMessage
	GatewaysGraph json.RawMessage
	// Instances maps process keys to graph instance payloads. Its keys are the
	// project's process keys.
	Instances map[string]json.RawMessage
	// Cases is the cases datasource: a header row followed by data rows.
	Cases    [][]any
	Variants []map[string]any
	Lookups  json.RawMessage

	// Possibility is returned by the prediction possibility endpoint; empty
	// means CAN_LAUNCH_PREDICTION.
	Possibility string
	// PredictionPolls is how many status reads a prediction stays RUNNING.
	PredictionPolls int

	fileStructure json.RawMessage
	columnMapping map[string]any
	files         []*file
	training      bool
}

type file struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int       `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

type prediction struct {
	ID        uuid.UUID
	ProjectID string
	Status    string
	Polls     int
	Start     time.Time
	End       *time.Time
}

// AddProject registers a fixture, assigning a UUID when ID is empty.
func (s *Server) AddProject(p *Project) *Project {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Instances == nil {
		p.Instances = make(map[string]json.RawMessage)
	}
	s.mu.Lock()
	s.projects[p.ID] = p
	s.mu.Unlock()
	return p
}

// Project returns a registered fixture, or nil.
func (s *Server) Project(id string) *Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projects[id]
}

// Files returns the names of the files uploaded to the project.
func (s *Server) Files(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(p.files))
	for _, f := range p.files {
		names = append(names, f.Name)
	}
	return names
}

// Training reports whether training is running for the project.
func (s *Server) Training(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	return ok && p.training
}

// processKeys must be called with s.mu held.
func (p *Project) processKeys() []string {
	keys := make([]string, 0, len(p.Instances))
	for k := range p.Instances {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sample graph payloads: a purchase flow where "Approve" is visited twice in
// case-2 and "Check stock" runs concurrently with "Approve" in case-1.
const (
	SampleGraph = `{
  "vertices": [
    {"id": "1", "name": "start"},
    {"id": "2", "name": "Approve"},
    {"id": "3", "name": "Check stock"},
    {"id": "4", "name": "end"}
  ],
  "edges": [
    {"id": "e1", "source": "1", "destination": "2"},
    {"id": "e2", "source": "1", "destination": "3"},
    {"id": "e3", "source": "2", "destination": "4"},
    {"id": "e4", "source": "3", "destination": "4"}
  ]
}`

	SampleGatewaysGraph = `{
  "vertices": [
    {"id": "1", "name": "start"},
    {"id": "g1", "name": "split", "category": "gateway_and_split"},
    {"id": "2", "name": "Approve"},
    {"id": "3", "name": "Check stock"},
    {"id": "g2", "name": "join", "category": "gateway_and_join"},
    {"id": "4", "name": "end"}
  ],
  "edges": [
    {"id": "e1", "source": "1", "destination": "g1"},
    {"id": "e2", "source": "g1", "destination": "2"},
    {"id": "e3", "source": "g1", "destination": "3"},
    {"id": "e4", "source": "2", "destination": "g2"},
    {"id": "e5", "source": "3", "destination": "g2"},
    {"id": "e6", "source": "g2", "destination": "4"}
  ]
}`

	SampleInstanceConcurrent = `{
  "vertexInstances": [
    {"id": "1", "name": "start", "eventInstance": 1},
    {"id": "2", "name": "Approve", "eventInstance": 1, "concurrentVertices": [{"name": "Check stock", "eventInstance": 1}]},
    {"id": "3", "name": "Check stock", "eventInstance": 1, "concurrentVertices": [{"name": "Approve", "eventInstance": 1}]},
    {"id": "4", "name": "end", "eventInstance": 1}
  ],
  "edgeInstances": [
    {"source": {"id": "1", "name": "start", "eventInstance": 1}, "destination": {"id": "2", "name": "Approve", "eventInstance": 1},
     "concurrentEdges": [{"source": {"id": "1", "name": "start", "eventInstance": 1}, "destination": {"id": "3", "name": "Check stock", "eventInstance": 1}}]},
    {"source": {"id": "1", "name": "start", "eventInstance": 1}, "destination": {"id": "3", "name": "Check stock", "eventInstance": 1},
     "concurrentEdges": [{"source": {"id": "1", "name": "start", "eventInstance": 1}, "destination": {"id": "2", "name": "Approve", "eventInstance": 1}}]},
    {"source": {"id": "2", "name": "Approve", "eventInstance": 1}, "destination": {"id": "4", "name": "end", "eventInstance": 1}},
    {"source": {"id": "3", "name": "Check stock", "eventInstance": 1}, "destination": {"id": "4", "name": "end", "eventInstance": 1}}
  ],
  "reworkTotal": 0,
  "concurrencyRate": 0.5
}`

	SampleInstanceRework = `{
  "vertexInstances": [
    {"id": "1", "name": "start", "eventInstance": 1},
    {"id": "2", "name": "Approve", "eventInstance": 1},
    {"id": "2", "name": "Approve", "eventInstance": 2},
    {"id": "4", "name": "end", "eventInstance": 1}
  ],
  "edgeInstances": [
    {"source": {"id": "1", "name": "start", "eventInstance": 1}, "destination": {"id": "2", "name": "Approve", "eventInstance": 1}},
    {"source": {"id": "2", "name": "Approve", "eventInstance": 1}, "destination": {"id": "2", "name": "Approve", "eventInstance": 2}},
    {"source": {"id": "2", "name": "Approve", "eventInstance": 2}, "destination": {"id": "4", "name": "end", "eventInstance": 1}}
  ],
  "reworkTotal": 1
}`
)

// NewSampleProject returns a fixture with the sample graphs, two process keys
// and a small cases table.
func NewSampleProject(id string) *Project {
	return &Project{
		ID:            id,
		Name:          "Purchasing",
		Graph:         json.RawMessage(SampleGraph),
		GatewaysGraph: json.RawMessage(SampleGatewaysGraph),
		Instances: map[string]json.RawMessage{
			"case-1": json.RawMessage(SampleInstanceConcurrent),
			"case-2": json.RawMessage(SampleInstanceRework),
		},
		Cases: [][]any{
			{"processkey", "duration", "country"},
			{"case-1", 3600, "FR"},
			{"case-2", 7200, "DE"},
		},
		Variants: []map[string]any{
			{"name": "start > Approve > end", "count": 1},
			{"name": "start > Approve > Approve > end", "count": 1},
		},
		Lookups: json.RawMessage(`[]`),
	}
}
