package minetest

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	vertexSuffix = "_vertex"
	edgeSuffix   = "_simplifiedEdge"
)

var (
	distinctKeysSQL = regexp.MustCompile(`(?i)^\s*SELECT\s+DISTINCT\s+processkey\s+FROM\s+"([^"]+)"\s*;?\s*$`)
	selectAllSQL    = regexp.MustCompile(`(?i)^\s*SELECT\s+\*\s+FROM\s+"([^"]+)"(?:\s+LIMIT\s+(\d+))?\s*;?\s*$`)
)

func (s *Server) handleToken(c *gin.Context) {
	if c.PostForm("grant_type") != "client_credentials" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_grant_type"})
		return
	}
	if c.PostForm("client_id") != s.workgroupID || c.PostForm("client_secret") != s.workgroupKey {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_client"})
		return
	}

	token := "tok-" + uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = time.Now().Add(s.tokenTTL)
	s.issued++
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(s.tokenTTL.Seconds()),
	})
}

func (s *Server) handleListProjects(c *gin.Context) {
	c.JSON(http.StatusOK, s.ProjectIDs())
}

func (s *Server) handleCreateProject(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		WorkgroupID string `json:"workgroupId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Name == "" {
		respondError(c, http.StatusBadRequest, "bad_request", "name is required")
		return
	}
	if req.WorkgroupID != s.workgroupID {
		respondError(c, http.StatusForbidden, "forbidden", "workgroup mismatch")
		return
	}

	p := s.AddProject(&Project{Name: req.Name, Description: req.Description, Lookups: json.RawMessage(`[]`)})
	s.log.WithFields(logrus.Fields{"project_id": p.ID, "name": p.Name}).Debug("project created")
	c.JSON(http.StatusCreated, gin.H{"id": p.ID})
}

// handleDatasources advertises the SQL endpoint on the host the request came in on.
func (s *Server) handleDatasources(c *gin.Context) {
	p := projectFrom(c)
	host, port, err := net.SplitHostPort(c.Request.Host)
	if err != nil {
		host, port = c.Request.Host, ""
	}
	infos := make([]gin.H, 0, 3)
	for _, name := range []string{p.ID + vertexSuffix, p.ID + edgeSuffix, p.ID} {
		infos = append(infos, gin.H{"name": name, "host": host, "port": port})
	}
	c.JSON(http.StatusOK, infos)
}

func (s *Server) handleDeleteProject(c *gin.Context) {
	p := projectFrom(c)
	s.mu.Lock()
	delete(s.projects, p.ID)
	s.mu.Unlock()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleExists(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"exists": true})
}

func (s *Server) handleName(c *gin.Context) {
	p := projectFrom(c)
	s.mu.Lock()
	name := p.Name
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"name": name})
}

func (s *Server) handleUnarchive(c *gin.Context) {
	p := projectFrom(c)
	s.mu.Lock()
	p.Archived = false
	s.mu.Unlock()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGraph(c *gin.Context) {
	p := projectFrom(c)

	s.mu.Lock()
	var raw json.RawMessage
	switch c.DefaultQuery("mode", "simplified") {
	case "simplified":
		raw = p.Graph
	case "gateways":
		raw = p.GatewaysGraph
		if raw == nil {
			raw = p.Graph
		}
	default:
		s.mu.Unlock()
		respondError(c, http.StatusBadRequest, "bad_request", "mode must be simplified or gateways")
		return
	}
	s.mu.Unlock()

	if raw == nil {
		respondError(c, http.StatusNotFound, "not_found", "project has no graph")
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

func (s *Server) handleGraphInstance(c *gin.Context) {
	p := projectFrom(c)
	key := c.Query("processId")

	s.mu.Lock()
	raw, ok := p.Instances[key]
	s.mu.Unlock()

	if !ok {
		respondError(c, http.StatusNotFound, "not_found", fmt.Sprintf("process %q not found", key))
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

func (s *Server) handleVariants(c *gin.Context) {
	p := projectFrom(c)
	search := strings.ToLower(c.Query("search"))

	s.mu.Lock()
	matched := make([]map[string]any, 0, len(p.Variants))
	for _, v := range p.Variants {
		name, _ := v["name"].(string)
		if search == "" || strings.Contains(strings.ToLower(name), search) {
			matched = append(matched, v)
		}
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"variants": page(c, matched), "total": len(matched)})
}

func (s *Server) handleCompletedCases(c *gin.Context) {
	p := projectFrom(c)
	search := c.Query("searchCaseId")

	s.mu.Lock()
	cases := make([]gin.H, 0, len(p.Instances))
	for _, key := range p.processKeys() {
		if search == "" || strings.Contains(key, search) {
			cases = append(cases, gin.H{"caseId": key})
		}
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"cases": page(c, cases), "total": len(cases)})
}

// page slices items by the pageIndex and limit query parameters.
func page[T any](c *gin.Context, items []T) []T {
	idx, _ := strconv.Atoi(c.DefaultQuery("pageIndex", "0"))
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	start := idx * limit
	if idx < 0 || start >= len(items) {
		return []T{}
	}
	end := min(start+limit, len(items))
	return items[start:end]
}

type columnMappingWire struct {
	CaseID     map[string]any   `json:"caseIdMapping"`
	Activity   map[string]any   `json:"activityMapping"`
	Times      []map[string]any `json:"timeMappings"`
	Dimensions []map[string]any `json:"dimensionsMappings"`
	Metrics    []map[string]any `json:"metricsMappings"`
}

// handleAddColumnMapping stores the mapping in the keyed form the GET endpoint returns.
func (s *Server) handleAddColumnMapping(c *gin.Context) {
	p := projectFrom(c)

	var req struct {
		FileStructure json.RawMessage    `json:"fileStructure"`
		ColumnMapping *columnMappingWire `json:"columnMapping"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ColumnMapping == nil {
		respondError(c, http.StatusBadRequest, "bad_request", "fileStructure and columnMapping are required")
		return
	}
	m := req.ColumnMapping
	if m.CaseID == nil || m.Activity == nil || len(m.Times) == 0 {
		respondError(c, http.StatusBadRequest, "bad_request", "case id, activity and time mappings are required")
		return
	}

	keyed := make(map[string]any)
	add := func(colType string, col map[string]any) {
		entry := map[string]any{"columnType": colType}
		for k, v := range col {
			entry[k] = v
		}
		if _, ok := entry["name"]; !ok {
			entry["name"] = ""
		}
		keyed["col"+strconv.Itoa(len(keyed)+1)] = entry
	}
	add("CASE_ID", m.CaseID)
	add("TASK_NAME", m.Activity)
	for _, col := range m.Times {
		add("TIME", col)
	}
	for _, col := range m.Metrics {
		add("METRIC", col)
	}
	for _, col := range m.Dimensions {
		add("DIMENSION", col)
	}

	s.mu.Lock()
	p.fileStructure = req.FileStructure
	p.columnMapping = keyed
	s.mu.Unlock()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleColumnMappingExists(c *gin.Context) {
	p := projectFrom(c)
	s.mu.Lock()
	exists := p.columnMapping != nil
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

func (s *Server) handleColumnMapping(c *gin.Context) {
	p := projectFrom(c)
	s.mu.Lock()
	m := p.columnMapping
	s.mu.Unlock()

	if m == nil {
		respondError(c, http.StatusNotFound, "not_found", "no column mapping")
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) handleMappingInfos(c *gin.Context) {
	p := projectFrom(c)
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.columnMapping == nil {
		respondError(c, http.StatusNotFound, "not_found", "no column mapping")
		return
	}
	columns := make([]gin.H, 0, len(p.columnMapping))
	for key, v := range p.columnMapping {
		entry, _ := v.(map[string]any)
		columns = append(columns, gin.H{"key": key, "name": entry["name"], "columnType": entry["columnType"]})
	}
	c.JSON(http.StatusOK, gin.H{"columns": columns, "fileStructure": p.fileStructure})
}

func (s *Server) handleReset(c *gin.Context) {
	p := projectFrom(c)
	s.mu.Lock()
	p.columnMapping = nil
	p.fileStructure = nil
	p.files = nil
	p.Instances = make(map[string]json.RawMessage)
	p.Cases = nil
	p.Graph, p.GatewaysGraph = nil, nil
	s.mu.Unlock()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAddFile(c *gin.Context) {
	p := projectFrom(c)
	if c.Query("teamId") != s.workgroupID {
		respondError(c, http.StatusBadRequest, "bad_request", "teamId must be the workgroup id")
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "missing file part")
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "unreadable file part")
		return
	}
	n, err := io.Copy(io.Discard, f)
	f.Close()
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "unreadable file part")
		return
	}

	s.mu.Lock()
	if p.columnMapping == nil {
		s.mu.Unlock()
		respondError(c, http.StatusBadRequest, "bad_request", "a column mapping is required before adding files")
		return
	}
	rec := &file{
		ID:          uuid.NewString(),
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        int(n),
		UploadedAt:  time.Now().UTC(),
	}
	p.files = append(p.files, rec)
	s.mu.Unlock()

	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleFiles(c *gin.Context) {
	p := projectFrom(c)
	s.mu.Lock()
	files := append([]*file(nil), p.files...)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"files": page(c, files), "total": len(files)})
}

func (s *Server) findFile(c *gin.Context) (*file, bool) {
	p := projectFrom(c)
	id := c.Param("fileId")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range p.files {
		if f.ID == id {
			return f, true
		}
	}
	respondError(c, http.StatusNotFound, "not_found", "file not found")
	return nil, false
}

func (s *Server) handleFile(c *gin.Context) {
	if f, ok := s.findFile(c); ok {
		c.JSON(http.StatusOK, f)
	}
}

func (s *Server) handleIngestionStatus(c *gin.Context) {
	if f, ok := s.findFile(c); ok {
		c.JSON(http.StatusOK, gin.H{"fileId": f.ID, "status": "SUCCESS"})
	}
}

func (s *Server) handleLookups(c *gin.Context) {
	p := projectFrom(c)
	s.mu.Lock()
	raw := p.Lookups
	s.mu.Unlock()
	if raw == nil {
		raw = json.RawMessage(`[]`)
	}
	c.Data(http.StatusOK, "application/json", raw)
}

func (s *Server) possibility(p *Project) string {
	switch {
	case p.Possibility != "":
		return p.Possibility
	case len(p.Instances) == 0:
		return "NO_DATA_IN_PROJECT"
	default:
		return "CAN_LAUNCH_PREDICTION"
	}
}

func (s *Server) handlePossibility(c *gin.Context) {
	p := projectFrom(c)
	s.mu.Lock()
	code := s.possibility(p)
	s.mu.Unlock()
	c.JSON(http.StatusOK, code)
}

func (s *Server) handleLaunchPrediction(c *gin.Context) {
	p := projectFrom(c)

	var req struct {
		CaseIDs []string `json:"caseIds"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "bad_request", "invalid request body")
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if code := s.possibility(p); code != "CAN_LAUNCH_PREDICTION" {
		respondError(c, http.StatusBadRequest, "bad_request", code)
		return
	}
	for _, id := range req.CaseIDs {
		if _, ok := p.Instances[id]; !ok {
			respondError(c, http.StatusBadRequest, "bad_request", fmt.Sprintf("unknown case %q", id))
			return
		}
	}

	pr := &prediction{ID: uuid.New(), ProjectID: p.ID, Status: "RUNNING", Start: time.Now().UTC()}
	s.predictions[pr.ID] = pr
	c.JSON(http.StatusOK, gin.H{"predictionId": pr.ID})
}

type workflowStatus struct {
	PredictionID   uuid.UUID  `json:"predictionId"`
	ProjectID      *uuid.UUID `json:"projectId,omitempty"`
	Status         string     `json:"status"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	CompletedTasks []string   `json:"completedTasks,omitempty"`
}

// findPrediction must be called with s.mu held.
func (s *Server) findPrediction(c *gin.Context) (*prediction, bool) {
	id, err := uuid.Parse(c.Param("pid"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid prediction id")
		return nil, false
	}
	pr, ok := s.predictions[id]
	if !ok || pr.ProjectID != projectFrom(c).ID {
		respondError(c, http.StatusNotFound, "not_found", "prediction not found")
		return nil, false
	}
	return pr, true
}

// handlePredictionStatus advances a running prediction by one poll.
func (s *Server) handlePredictionStatus(c *gin.Context) {
	p := projectFrom(c)
	s.mu.Lock()
	defer s.mu.Unlock()

	pr, ok := s.findPrediction(c)
	if !ok {
		return
	}
	if pr.Status == "RUNNING" {
		pr.Polls++
		if pr.Polls > max(p.PredictionPolls, 1) {
			now := time.Now().UTC()
			pr.Status, pr.End = "SUCCESS", &now
		}
	}

	ws := workflowStatus{PredictionID: pr.ID, Status: pr.Status, StartTime: pr.Start, EndTime: pr.End}
	if pid, err := uuid.Parse(pr.ProjectID); err == nil {
		ws.ProjectID = &pid
	}
	if pr.Status == "SUCCESS" {
		ws.CompletedTasks = []string{"prediction"}
	}
	c.JSON(http.StatusOK, ws)
}

func (s *Server) handleCancelPrediction(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pr, ok := s.findPrediction(c)
	if !ok {
		return
	}
	if pr.Status == "RUNNING" {
		now := time.Now().UTC()
		pr.Status, pr.End = "CANCELED", &now
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleTrainStatus(c *gin.Context) {
	p := projectFrom(c)
	s.mu.Lock()
	running := p.training
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"isTrainRunning": running})
}

func (s *Server) handleLaunchTrain(c *gin.Context) {
	p := projectFrom(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.training {
		respondError(c, http.StatusConflict, "conflict", "training already running")
		return
	}
	p.training = true
	c.Status(http.StatusNoContent)
}

func (s *Server) handleStopTrain(c *gin.Context) {
	p := projectFrom(c)
	s.mu.Lock()
	p.training = false
	s.mu.Unlock()
	c.Status(http.StatusNoContent)
}

// handleSQL answers the two statement shapes the client issues: the distinct
// process keys of an edge table and a full (optionally limited) table scan.
func (s *Server) handleSQL(c *gin.Context) {
	var req struct {
		Query  string `json:"query"`
		Header bool   `json:"header"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid query body")
		return
	}

	var (
		rows [][]any
		ok   bool
	)
	if m := distinctKeysSQL.FindStringSubmatch(req.Query); m != nil {
		rows, ok = s.processKeyRows(m[1])
	} else if m := selectAllSQL.FindStringSubmatch(req.Query); m != nil {
		rows, ok = s.tableRows(m[1])
		if ok && m[2] != "" {
			limit, _ := strconv.Atoi(m[2])
			if limit+1 < len(rows) {
				rows = rows[:limit+1]
			}
		}
	} else {
		respondError(c, http.StatusBadRequest, "unsupported_query", "query shape not supported")
		return
	}
	if !ok {
		respondError(c, http.StatusNotFound, "not_found", "unknown table")
		return
	}
	if !req.Header && len(rows) > 0 {
		rows = rows[1:]
	}
	c.JSON(http.StatusOK, rows)
}

// lookupTable resolves a datasource name to its project. Must be called with s.mu held.
func (s *Server) lookupTable(name string) (*Project, string) {
	for _, suffix := range []string{vertexSuffix, edgeSuffix} {
		if id, found := strings.CutSuffix(name, suffix); found {
			return s.projects[id], suffix
		}
	}
	return s.projects[name], ""
}

func (s *Server) processKeyRows(table string) ([][]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, kind := s.lookupTable(table)
	if p == nil || kind != edgeSuffix {
		return nil, false
	}
	rows := [][]any{{"processkey"}}
	for _, k := range p.processKeys() {
		rows = append(rows, []any{k})
	}
	return rows, true
}

func (s *Server) tableRows(table string) ([][]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, kind := s.lookupTable(table)
	if p == nil {
		return nil, false
	}
	switch kind {
	case vertexSuffix:
		return vertexRows(p.Graph), true
	case edgeSuffix:
		return edgeRows(p.Graph), true
	}
	if len(p.Cases) == 0 {
		return [][]any{{"processkey"}}, true
	}
	return append([][]any(nil), p.Cases...), true
}

type graphRows struct {
	Vertices []struct {
		ID   any    `json:"id"`
		Name string `json:"name"`
	} `json:"vertices"`
	Edges []struct {
		ID          any `json:"id"`
		Source      any `json:"source"`
		Destination any `json:"destination"`
	} `json:"edges"`
}

func vertexRows(raw json.RawMessage) [][]any {
	rows := [][]any{{"id", "name"}}
	var g graphRows
	if json.Unmarshal(raw, &g) == nil {
		for _, v := range g.Vertices {
			rows = append(rows, []any{fmt.Sprint(v.ID), v.Name})
		}
	}
	return rows
}

func edgeRows(raw json.RawMessage) [][]any {
	rows := [][]any{{"id", "source", "destination"}}
	var g graphRows
	if json.Unmarshal(raw, &g) == nil {
		for _, e := range g.Edges {
			rows = append(rows, []any{fmt.Sprint(e.ID), fmt.Sprint(e.Source), fmt.Sprint(e.Destination)})
		}
	}
	return rows
}
