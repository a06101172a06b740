package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/vulnlynx/internal/adapters"
	"github.com/bl4ck0w1/vulnlynx/pkg/models"
	"github.com/bl4ck0w1/vulnlynx/pkg/utils"
)

// ScanRunner is the orchestration boundary the scan tool forwards to.
type ScanRunner interface {
	RunScan(ctx context.Context, target string, scanners []string, failOn []models.Severity) (*models.ScanResult, error)
}

// FindingsStore is the read/annotate boundary over persisted results.
type FindingsStore interface {
	Load() (*models.ScanResult, error)
	Status() (models.StatusSummary, error)
	ResultsPath() string
	TriagePath() string
}

// ErrorPayload is the structured error every resource and tool handler
// returns instead of letting an internal error escape. Suggestion carries the
// remediation hint when one exists.
type ErrorPayload struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Server exposes read-only resources over the findings store and tools that
// either trigger the orchestrator or emit skill-invocation instructions. It
// is stateless per-request: everything durable lives in the store.
type Server struct {
	runner   ScanRunner
	store    FindingsStore
	registry *adapters.Registry
	config   *models.Config
	metrics  *utils.MetricsCollector
	logger   *logrus.Logger
}

func NewServer(runner ScanRunner, store FindingsStore, registry *adapters.Registry, config *models.Config, metrics *utils.MetricsCollector, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	if config == nil {
		config = models.DefaultConfig()
	}
	return &Server{
		runner:   runner,
		store:    store,
		registry: registry,
		config:   config,
		metrics:  metrics,
		logger:   logger,
	}
}

// Router builds the HTTP transport: resources are GETs, tools are POSTs.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil && s.config.Server.EnableMetrics {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	router.GET("/resources/*id", func(c *gin.Context) {
		id := c.Param("id")
		if len(id) > 0 && id[0] == '/' {
			id = id[1:]
		}
		payload, errPayload := s.HandleResource(id)
		if errPayload != nil {
			c.JSON(http.StatusNotFound, errPayload)
			return
		}
		c.JSON(http.StatusOK, payload)
	})

	router.POST("/tools/:name", func(c *gin.Context) {
		var params map[string]interface{}
		if err := c.ShouldBindJSON(&params); err != nil && err.Error() != "EOF" {
			c.JSON(http.StatusBadRequest, ErrorPayload{Error: "invalid_params", Suggestion: "send a JSON object body"})
			return
		}
		payload, errPayload := s.HandleTool(c.Request.Context(), c.Param("name"), params)
		if errPayload != nil {
			c.JSON(http.StatusBadRequest, errPayload)
			return
		}
		c.JSON(http.StatusOK, payload)
	})

	return router
}

// Serve runs the HTTP transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Capability server listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		timeout := s.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s.logger.Info("Shutting down capability server")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("Request handled")
	}
}
