// Package api exposes the packing task service over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/piwi3910/CrateFit/internal/logging"
	"github.com/piwi3910/CrateFit/internal/model"
	"github.com/piwi3910/CrateFit/internal/observability"
	"github.com/piwi3910/CrateFit/internal/task"
)

// TaskService is the subset of *task.Manager the handlers use.
type TaskService interface {
	Submit(req task.Request) (string, error)
	Status(ctx context.Context, id string) (task.Snapshot, error)
	Cancel(ctx context.Context, id string) error
	List(ctx context.Context) ([]task.Summary, error)
}

// Config wires the HTTP server.
type Config struct {
	Tasks    TaskService
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer // Serves /metrics when set
	Defaults model.PackSettings  // Applied to requests without a config block
	Presets  model.Inventory     // Containers selectable by container_preset

	ServiceName string
	SubmitRate  float64 // Optimize requests per second, 0 = unlimited
	SubmitBurst int
	ExportDir   string // Scratch space for export files, defaults to os.TempDir()
}

// Server routes HTTP requests to the task service.
type Server struct {
	tasks     TaskService
	logger    *slog.Logger
	metrics   *observability.Metrics
	defaults  model.PackSettings
	presets   model.Inventory
	exportDir string
	engine    *gin.Engine
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "cratefit"
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = os.TempDir()
	}
	if cfg.Defaults.Algorithm == "" {
		cfg.Defaults = model.DefaultSettings()
	}

	s := &Server{
		tasks:     cfg.Tasks,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		defaults:  cfg.Defaults,
		presets:   cfg.Presets,
		exportDir: cfg.ExportDir,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(cors.Default())
	router.Use(requestLogger(cfg.Logger))

	router.GET("/health", s.handleHealth)
	router.GET("/", s.handleDocs)
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/optimize", rateLimit(newLimiter(cfg.SubmitRate, cfg.SubmitBurst), cfg.Metrics), s.handleOptimize)
		apiGroup.GET("/containers", s.handleListContainers)
		apiGroup.GET("/tasks", s.handleListTasks)
		apiGroup.GET("/tasks/:id", s.handleTaskStatus)
		apiGroup.POST("/tasks/:id/cancel", s.handleCancelTask)
		apiGroup.GET("/tasks/:id/export/:format", s.handleExport)
	}

	s.engine = router
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}
