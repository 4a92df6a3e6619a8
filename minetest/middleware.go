package minetest

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
	projectKey      = "project"
)

// requestID generates a server-side UUID per request; a client supplied
// X-Request-ID is only logged.
func requestID(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()

		if clientID := c.GetHeader(requestIDHeader); clientID != "" {
			log.WithFields(logrus.Fields{
				"request_id":        id,
				"client_request_id": clientID,
			}).Debug("client provided request ID mapped to server ID")
		}

		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}
		if rid, exists := c.Get(requestIDKey); exists {
			fields["request_id"] = rid
		}
		log.WithFields(fields).Debug("request")
	}
}

// respondError writes the platform's JSON error shape and aborts the request.
func respondError(c *gin.Context, status int, code, message string) {
	resp := gin.H{
		"code":    code,
		"message": message,
	}
	if rid := c.GetString(requestIDKey); rid != "" {
		resp["request_id"] = rid
	}
	c.AbortWithStatusJSON(status, resp)
}

// bearerAuth accepts tokens issued by the token endpoint that have not expired
// or been revoked.
func (s *Server) bearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			respondError(c, http.StatusUnauthorized, "unauthorized", "missing or invalid authorization header")
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		s.mu.Lock()
		expiry, ok := s.tokens[token]
		if ok && time.Now().After(expiry) {
			delete(s.tokens, token)
			ok = false
		}
		s.mu.Unlock()

		if !ok {
			respondError(c, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}
		c.Next()
	}
}

// basicAuth guards the SQL endpoint with the workgroup credentials.
func (s *Server) basicAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if !ok || user != s.workgroupID || pass != s.workgroupKey {
			respondError(c, http.StatusUnauthorized, "unauthorized", "invalid datasource credentials")
			return
		}
		c.Next()
	}
}

// withProject resolves the :id parameter to a live project.
func (s *Server) withProject(c *gin.Context) {
	s.mu.Lock()
	p, ok := s.projects[c.Param("id")]
	s.mu.Unlock()

	if !ok {
		// exist answers false instead of 404.
		if strings.HasSuffix(c.FullPath(), "/exist") {
			c.JSON(http.StatusOK, gin.H{"exists": false})
			c.Abort()
			return
		}
		respondError(c, http.StatusNotFound, "not_found", "project not found")
		return
	}
	c.Set(projectKey, p)
	c.Next()
}

func projectFrom(c *gin.Context) *Project {
	return c.MustGet(projectKey).(*Project)
}
