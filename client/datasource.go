package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/mining/internal/config"
)

// DatasourceKind identifies one of the three datasources every project owns.
type DatasourceKind string

const (
	KindVertex DatasourceKind = "_vertex"
	KindEdge   DatasourceKind = "_simplifiedEdge"
	KindCases  DatasourceKind = "cases"
)

func kindOf(name string) DatasourceKind {
	switch {
	case strings.Contains(name, string(KindEdge)):
		return KindEdge
	case strings.Contains(name, string(KindVertex)):
		return KindVertex
	default:
		return KindCases
	}
}

// Datasource is a SQL-queryable table of a project, served by the platform's
// Druid SQL endpoint.
type Datasource struct {
	Name string
	Kind DatasourceKind
	Host string
	Port string

	c *Client
}

// Table is a query result: a header row and positional rows.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Column returns the values of the named column, or nil if there is no such column.
func (t *Table) Column(name string) []any {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		if idx < len(row) {
			out = append(out, row[idx])
		} else {
			out = append(out, nil)
		}
	}
	return out
}

type sqlRequest struct {
	Query        string `json:"query"`
	ResultFormat string `json:"resultFormat"`
	Header       bool   `json:"header"`
}

// Datasource returns the project's datasource of the given kind.
func (p *Project) Datasource(ctx context.Context, kind DatasourceKind) (*Datasource, error) {
	infos, err := p.datasourceInfos(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if kindOf(info.Name) == kind {
			return &Datasource{
				Name: info.Name,
				Kind: kind,
				Host: info.Host,
				Port: info.Port.String(),
				c:    p.c,
			}, nil
		}
	}
	return nil, fmt.Errorf("project %s %s: %w", p.ID, kind, ErrNoDatasource)
}

// NodesDatasource returns the vertex datasource.
func (p *Project) NodesDatasource(ctx context.Context) (*Datasource, error) {
	return p.Datasource(ctx, KindVertex)
}

// EdgesDatasource returns the simplified-edge datasource.
func (p *Project) EdgesDatasource(ctx context.Context) (*Datasource, error) {
	return p.Datasource(ctx, KindEdge)
}

// CasesDatasource returns the cases datasource.
func (p *Project) CasesDatasource(ctx context.Context) (*Datasource, error) {
	return p.Datasource(ctx, KindCases)
}

func (p *Project) datasourceInfos(ctx context.Context) ([]DatasourceInfo, error) {
	p.mu.Lock()
	cached := p.datasources
	p.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	var infos []DatasourceInfo
	if err := p.c.get(ctx, "/datasources/"+url.PathEscape(p.ID), nil, &infos); err != nil {
		return nil, fmt.Errorf("project %s datasources: %w", p.ID, err)
	}
	if infos == nil {
		infos = []DatasourceInfo{}
	}

	p.mu.Lock()
	p.datasources = infos
	p.mu.Unlock()
	return infos, nil
}

// ProcessKeys returns the distinct process keys (case ids) of the project, read
// from its edge datasource. A non-empty result is cached.
func (p *Project) ProcessKeys(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	cached := p.processKeys
	p.mu.Unlock()
	if len(cached) > 0 {
		return cached, nil
	}

	ds, err := p.EdgesDatasource(ctx)
	if err != nil {
		return nil, err
	}
	table, err := ds.Query(ctx, "SELECT DISTINCT processkey FROM "+quoteIdent(ds.Name))
	if err != nil {
		return nil, err
	}

	values := table.Column("processkey")
	keys := make([]string, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			keys = append(keys, s)
		} else {
			keys = append(keys, fmt.Sprint(v))
		}
	}

	p.mu.Lock()
	p.processKeys = keys
	p.mu.Unlock()
	return keys, nil
}

// Query runs a read-only SQL statement against the datasource. Transient
// failures (connection errors, 429 and 5xx) are retried a few times.
func (d *Datasource) Query(ctx context.Context, sql string) (*Table, error) {
	if !isReadOnly(sql) {
		return nil, ErrReadOnlyQuery
	}

	body, err := json.Marshal(sqlRequest{Query: sql, ResultFormat: "array", Header: true})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, d.endpoint(), body)
	if err != nil {
		return nil, fmt.Errorf("create query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "mining-go/"+config.Version)
	req.SetBasicAuth(d.c.workgroupID, d.c.tokens.clientSecret)

	start := time.Now()
	resp, err := d.c.query.Do(req)
	if resp == nil {
		observe(http.MethodPost, "/druid/v2/sql", "error", start)
		return nil, fmt.Errorf("datasource %s: query failed: %w", d.Name, err)
	}
	defer resp.Body.Close()
	observe(http.MethodPost, "/druid/v2/sql", strconv.Itoa(resp.StatusCode), start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("datasource %s: read response: %w", d.Name, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("datasource %s: %w", d.Name, parseAPIError(resp.StatusCode, respBody))
	}

	table, err := decodeTable(respBody)
	if err != nil {
		return nil, fmt.Errorf("datasource %s: %w", d.Name, err)
	}

	d.c.log.WithFields(logrus.Fields{
		"datasource": d.Name,
		"rows":       len(table.Rows),
	}).Debug("datasource query")
	return table, nil
}

// Columns returns the column names of the datasource.
func (d *Datasource) Columns(ctx context.Context) ([]string, error) {
	t, err := d.Query(ctx, "SELECT * FROM "+quoteIdent(d.Name)+" LIMIT 1")
	if err != nil {
		return nil, err
	}
	return t.Columns, nil
}

// Load returns up to limit rows of the datasource; all of them when limit <= 0.
func (d *Datasource) Load(ctx context.Context, limit int) (*Table, error) {
	q := "SELECT * FROM " + quoteIdent(d.Name)
	if limit > 0 {
		q += " LIMIT " + strconv.Itoa(limit)
	}
	return d.Query(ctx, q)
}

// endpoint uses the API's scheme for the datasource host.
func (d *Datasource) endpoint() string {
	scheme := "https"
	if u, err := url.Parse(d.c.apiURL); err == nil && u.Scheme != "" {
		scheme = u.Scheme
	}
	host := d.Host
	if d.Port != "" {
		host = net.JoinHostPort(d.Host, d.Port)
	}
	return scheme + "://" + host + "/druid/v2/sql"
}

func decodeTable(body []byte) (*Table, error) {
	var rows [][]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	t := &Table{Columns: []string{}, Rows: [][]any{}}
	if len(rows) == 0 {
		return t, nil
	}
	for _, h := range rows[0] {
		t.Columns = append(t.Columns, fmt.Sprint(h))
	}
	t.Rows = append(t.Rows, rows[1:]...)
	return t, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var readOnlyKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"EXPLAIN":  true,
	"DESCRIBE": true,
}

// isReadOnly accepts a single statement starting with a query keyword.
func isReadOnly(sql string) bool {
	s := strings.TrimSpace(stripComments(sql))
	s = strings.TrimRight(s, "; \t\r\n")
	if s == "" || strings.Contains(s, ";") {
		return false
	}
	fields := strings.Fields(strings.TrimLeft(s, "("))
	return len(fields) > 0 && readOnlyKeywords[strings.ToUpper(fields[0])]
}

func stripComments(sql string) string {
	var b strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		if i := strings.Index(line, "--"); i >= 0 {
			line = line[:i]
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
