package client

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Project returns the handle for a project id without checking that it exists.
// Handles are shared, so their caches survive repeated lookups.
func (c *Client) Project(id string) *Project {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.projects[id]; ok {
		return p
	}
	p := newProject(id, c)
	c.projects[id] = p
	return p
}

// Projects lists the workgroup's projects. Handles of projects that no longer
// exist are forgotten.
func (c *Client) Projects(ctx context.Context) ([]*Project, error) {
	var ids []string
	if err := c.get(ctx, "/projects", nil, &ids); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	live := make(map[string]bool, len(ids))
	out := make([]*Project, 0, len(ids))
	for _, id := range ids {
		if live[id] {
			continue
		}
		live[id] = true
		p, ok := c.projects[id]
		if !ok {
			p = newProject(id, c)
			c.projects[id] = p
		}
		out = append(out, p)
	}
	for id := range c.projects {
		if !live[id] {
			delete(c.projects, id)
		}
	}
	return out, nil
}

// ProjectFromID returns the project with the given id, or nil if the platform
// reports it does not exist.
func (c *Client) ProjectFromID(ctx context.Context, id string) (*Project, error) {
	p := c.Project(id)
	ok, err := p.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.forget(id)
		return nil, nil
	}
	return p, nil
}

// CreateProject creates a project in the workgroup and returns its handle.
func (c *Client) CreateProject(ctx context.Context, name, description string) (*Project, error) {
	req := createProjectRequest{Name: name, Description: description, WorkgroupID: c.workgroupID}
	var resp createProjectResponse
	if err := c.post(ctx, "/project", req, &resp); err != nil {
		return nil, fmt.Errorf("create project %q: %w", name, err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("create project %q: response has no id", name)
	}

	c.log.WithFields(logrus.Fields{"project_id": resp.ID, "name": name}).Info("project created")
	return c.Project(resp.ID), nil
}

// Datasources returns the vertex, edge and case datasources of every project
// in the workgroup.
func (c *Client) Datasources(ctx context.Context) ([]*Datasource, error) {
	projects, err := c.Projects(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*Datasource, 0, 3*len(projects))
	for _, p := range projects {
		for _, kind := range []DatasourceKind{KindVertex, KindEdge, KindCases} {
			ds, err := p.Datasource(ctx, kind)
			if err != nil {
				return nil, err
			}
			out = append(out, ds)
		}
	}
	return out, nil
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.projects, id)
	c.mu.Unlock()
}
