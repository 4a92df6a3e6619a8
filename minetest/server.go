// Package minetest runs an in-process fake of the process mining platform: the
// OpenID token endpoint, the /pub REST API and the Druid SQL endpoint, backed by
// fixtures registered with AddProject.
package minetest

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Default credentials accepted by the token endpoint.
const (
	DefaultWorkgroupID  = "wg-test"
	DefaultWorkgroupKey = "wg-test-secret"
	Realm               = "mining"
)

// Server is a fake platform. Create it with New, register fixtures, then Start it.
type Server struct {
	log          *logrus.Logger
	workgroupID  string
	workgroupKey string
	tokenTTL     time.Duration

	engine *gin.Engine
	srv    *httptest.Server

	mu          sync.Mutex
	tokens      map[string]time.Time
	issued      int
	projects    map[string]*Project
	predictions map[uuid.UUID]*prediction
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for request logs.
func WithLogger(log *logrus.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithCredentials sets the workgroup id and key the token endpoint accepts.
func WithCredentials(id, key string) Option {
	return func(s *Server) { s.workgroupID, s.workgroupKey = id, key }
}

// WithTokenTTL sets the advertised and enforced token lifetime.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.tokenTTL = d }
}

// New builds a fake platform that is not yet listening.
func New(opts ...Option) *Server {
	s := &Server{
		log:          logrus.StandardLogger(),
		workgroupID:  DefaultWorkgroupID,
		workgroupKey: DefaultWorkgroupKey,
		tokenTTL:     5 * time.Minute,
		tokens:       make(map[string]time.Time),
		projects:     make(map[string]*Project),
		predictions:  make(map[uuid.UUID]*prediction),
	}
	for _, o := range opts {
		o(s)
	}
	s.engine = s.router()
	return s
}

// Start listens on a loopback port.
func (s *Server) Start() *Server {
	s.srv = httptest.NewServer(s.engine)
	return s
}

// Close shuts the listener down.
func (s *Server) Close() {
	if s.srv != nil {
		s.srv.Close()
	}
}

// Handler exposes the router, for use without a listener.
func (s *Server) Handler() http.Handler { return s.engine }

// URL is the API base URL (without the /pub suffix).
func (s *Server) URL() string { return s.srv.URL }

// AuthURL is the realm URL the token endpoint lives under.
func (s *Server) AuthURL() string { return s.srv.URL + "/realms/" + Realm }

// WorkgroupID returns the accepted workgroup id.
func (s *Server) WorkgroupID() string { return s.workgroupID }

// WorkgroupKey returns the accepted workgroup key.
func (s *Server) WorkgroupKey() string { return s.workgroupKey }

// TokensIssued returns how many tokens the token endpoint has handed out.
func (s *Server) TokensIssued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issued
}

// RevokeTokens invalidates every issued token, as a server-side expiry would.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	s.tokens = make(map[string]time.Time)
	s.mu.Unlock()
}

// ProjectIDs returns the ids of all live projects, sorted.
func (s *Server) ProjectIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.projects))
	for id := range s.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(requestID(s.log))
	r.Use(requestLogger(s.log))
	r.Use(gin.Recovery())

	r.POST("/realms/:realm/protocol/openid-connect/token", s.handleToken)
	r.POST("/druid/v2/sql", s.basicAuth(), s.handleSQL)

	pub := r.Group("/pub", s.bearerAuth())
	pub.GET("/projects", s.handleListProjects)
	pub.POST("/project", s.handleCreateProject)
	pub.GET("/datasources/:id", s.withProject, s.handleDatasources)

	p := pub.Group("/project/:id", s.withProject)
	p.DELETE("", s.handleDeleteProject)
	p.GET("/exist", s.handleExists)
	p.GET("/name", s.handleName)
	p.POST("/unarchive", s.handleUnarchive)
	p.GET("/graph", s.handleGraph)
	p.GET("/graphInstance", s.handleGraphInstance)
	p.GET("/variants", s.handleVariants)
	p.GET("/completedCases", s.handleCompletedCases)
	p.POST("/column-mapping", s.handleAddColumnMapping)
	p.GET("/column-mapping-exists", s.handleColumnMappingExists)
	p.GET("/column-mapping", s.handleColumnMapping)
	p.GET("/mappingInfos", s.handleMappingInfos)
	p.POST("/reset", s.handleReset)
	p.POST("/file", s.handleAddFile)
	p.GET("/files", s.handleFiles)
	p.GET("/file/:fileId", s.handleFile)
	p.GET("/file/:fileId/ingestion-status", s.handleIngestionStatus)
	p.GET("/lookups", s.handleLookups)
	p.GET("/prediction/possibility", s.handlePossibility)
	p.POST("/prediction", s.handleLaunchPrediction)
	p.GET("/prediction/:pid", s.handlePredictionStatus)
	p.DELETE("/prediction/:pid", s.handleCancelPrediction)

	t := pub.Group("/train/:id", s.withProject)
	t.GET("", s.handleTrainStatus)
	t.POST("/launch", s.handleLaunchTrain)
	t.DELETE("", s.handleStopTrain)

	return r
}
