package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/mining/graph"
	"github.com/persistorai/mining/internal/metrics"
)

// Project is a handle on one platform project. Graphs, datasources and process
// keys are cached on first use; Refresh drops them.
type Project struct {
	ID string

	c *Client

	mu          sync.Mutex
	graphs      map[bool]*graph.Graph
	datasources []DatasourceInfo
	processKeys []string

	instances *lru.Cache[string, *graph.GraphInstance]
}

func newProject(id string, c *Client) *Project {
	// lru.New only fails for a non-positive size, which the options rule out.
	cache, _ := lru.New[string, *graph.GraphInstance](c.cacheSize)
	return &Project{
		ID:        id,
		c:         c,
		graphs:    make(map[bool]*graph.Graph),
		instances: cache,
	}
}

func (p *Project) path(parts ...string) string {
	s := "/project/" + url.PathEscape(p.ID)
	for _, part := range parts {
		s += "/" + part
	}
	return s
}

func (p *Project) logger() *logrus.Entry {
	return p.c.log.WithField("project_id", p.ID)
}

// Refresh drops every cached graph, instance, datasource list and process key.
func (p *Project) Refresh() {
	p.mu.Lock()
	p.graphs = make(map[bool]*graph.Graph)
	p.datasources = nil
	p.processKeys = nil
	p.mu.Unlock()
	p.instances.Purge()
}

// Exists reports whether the platform knows the project.
func (p *Project) Exists(ctx context.Context) (bool, error) {
	var resp existsResponse
	if err := p.c.get(ctx, p.path("exist"), nil, &resp); err != nil {
		return false, fmt.Errorf("project %s exists: %w", p.ID, err)
	}
	return resp.Exists, nil
}

// Name returns the project's display name.
func (p *Project) Name(ctx context.Context) (string, error) {
	var resp nameResponse
	if err := p.c.get(ctx, p.path("name"), nil, &resp); err != nil {
		return "", fmt.Errorf("project %s name: %w", p.ID, err)
	}
	return resp.Name, nil
}

// Delete deletes the project.
func (p *Project) Delete(ctx context.Context) error {
	if err := p.c.del(ctx, p.path(), nil); err != nil {
		return fmt.Errorf("delete project %s: %w", p.ID, err)
	}
	p.c.forget(p.ID)
	p.logger().Info("project deleted")
	return nil
}

// Unarchive restores an archived project.
func (p *Project) Unarchive(ctx context.Context) error {
	if err := p.c.post(ctx, p.path("unarchive"), nil, nil); err != nil {
		return fmt.Errorf("unarchive project %s: %w", p.ID, err)
	}
	return nil
}

// Graph returns the project's model graph. With gateways set the BPMN-like
// form including gateway vertices is requested, otherwise the simplified one.
func (p *Project) Graph(ctx context.Context, gateways bool) (*graph.Graph, error) {
	p.mu.Lock()
	g, ok := p.graphs[gateways]
	p.mu.Unlock()
	if ok {
		return g, nil
	}

	mode := "simplified"
	if gateways {
		mode = "gateways"
	}
	var raw []byte
	if err := p.c.get(ctx, p.path("graph"), url.Values{"mode": {mode}}, &raw); err != nil {
		return nil, fmt.Errorf("project %s graph: %w", p.ID, err)
	}

	g, err := graph.DecodeGraph(p.ID, raw)
	metrics.GraphDecodeTotal.WithLabelValues("graph", metrics.ResultLabel(err)).Inc()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.graphs[gateways] = g
	p.mu.Unlock()
	return g, nil
}

// GraphInstance returns the instance graph of one process key (case id).
func (p *Project) GraphInstance(ctx context.Context, processKey string) (*graph.GraphInstance, error) {
	if gi, ok := p.instances.Get(processKey); ok {
		metrics.InstanceCacheHits.Inc()
		return gi, nil
	}

	var raw []byte
	if err := p.c.get(ctx, p.path("graphInstance"), url.Values{"processId": {processKey}}, &raw); err != nil {
		return nil, fmt.Errorf("project %s graph instance %q: %w", p.ID, processKey, err)
	}

	gi, err := graph.DecodeGraphInstance(p.ID, raw)
	metrics.GraphDecodeTotal.WithLabelValues("instance", metrics.ResultLabel(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("process %q: %w", processKey, err)
	}
	gi.ProcessKey = processKey

	p.instances.Add(processKey, gi)
	return gi, nil
}

// GraphInstances fetches the instance graphs of up to limit process keys
// (all of them when limit <= 0), in parallel. With shuffle set a random sample
// is taken, otherwise the first keys. Instances that fail to load are logged
// and left out; the order of the result follows the sampled keys.
func (p *Project) GraphInstances(ctx context.Context, limit int, shuffle bool) ([]*graph.GraphInstance, error) {
	keys, err := p.ProcessKeys(ctx)
	if err != nil {
		return nil, err
	}

	sample := sampleKeys(keys, limit, shuffle)
	results := make([]*graph.GraphInstance, len(sample))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.c.concurrency)
	for i, key := range sample {
		g.Go(func() error {
			gi, err := p.GraphInstance(gctx, key)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				p.logger().WithFields(logrus.Fields{
					"process_key": key,
					"error":       err,
				}).Warn("could not load graph instance, skipping")
				return nil
			}
			results[i] = gi
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("project %s graph instances: %w", p.ID, err)
	}

	out := make([]*graph.GraphInstance, 0, len(results))
	for _, gi := range results {
		if gi != nil {
			out = append(out, gi)
		}
	}
	return out, nil
}

func sampleKeys(keys []string, limit int, shuffle bool) []string {
	if limit <= 0 || limit > len(keys) {
		limit = len(keys)
	}
	if !shuffle {
		return keys[:limit]
	}
	out := make([]string, 0, limit)
	for _, i := range rand.Perm(len(keys))[:limit] {
		out = append(out, keys[i])
	}
	return out
}

// Variants returns one page of the project's process variants. search filters
// variants by name when non-empty.
func (p *Project) Variants(ctx context.Context, pageIndex, limit int, search string) (Document, error) {
	params := p.pageParams(pageIndex, limit)
	if search != "" {
		params.Set("search", search)
	}
	var doc Document
	if err := p.c.get(ctx, p.path("variants"), params, &doc); err != nil {
		return nil, fmt.Errorf("project %s variants: %w", p.ID, err)
	}
	return doc, nil
}

// CompletedCases returns one page of the project's completed cases. searchCaseID
// filters by case id when non-empty.
func (p *Project) CompletedCases(ctx context.Context, pageIndex, limit int, searchCaseID string) (Document, error) {
	params := p.pageParams(pageIndex, limit)
	if searchCaseID != "" {
		params.Set("searchCaseId", searchCaseID)
	}
	var doc Document
	if err := p.c.get(ctx, p.path("completedCases"), params, &doc); err != nil {
		return nil, fmt.Errorf("project %s completed cases: %w", p.ID, err)
	}
	return doc, nil
}

// Lookups returns the project's lookup tables.
func (p *Project) Lookups(ctx context.Context) (json.RawMessage, error) {
	var raw []byte
	if err := p.c.get(ctx, p.path("lookups"), nil, &raw); err != nil {
		return nil, fmt.Errorf("project %s lookups: %w", p.ID, err)
	}
	return json.RawMessage(raw), nil
}

func (p *Project) pageParams(pageIndex, limit int) url.Values {
	return url.Values{
		"projectId": {p.ID},
		"pageIndex": {strconv.Itoa(pageIndex)},
		"limit":     {strconv.Itoa(limit)},
	}
}
