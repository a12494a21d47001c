package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/brand-visibility-workflows/services"
)

const ServiceName = "brand-visibility-workflows"

// Dispatcher starts processing of a request in the background.
type Dispatcher interface {
	Dispatch(ctx context.Context, req services.ProcessRequest) error
}

type HTTPServer struct {
	gin         *gin.Engine
	l           *zap.SugaredLogger
	port        string
	mode        string
	environment string

	repos      *services.RepositoryManager
	status     *services.StatusMachine
	dispatcher Dispatcher

	inngest http.Handler
	metrics http.Handler

	srv *http.Server
}

type Config struct {
	Logger      *zap.SugaredLogger
	Port        string
	Mode        string
	Environment string

	Repos      *services.RepositoryManager
	Status     *services.StatusMachine
	Dispatcher Dispatcher

	// Optional. Mounted at /api/inngest and /metrics when set.
	InngestHandler http.Handler
	MetricsHandler http.Handler
}

// New creates the HTTP server and registers every route.
func New(cfg Config) (*HTTPServer, error) {
	if cfg.Mode == "" {
		cfg.Mode = gin.ReleaseMode
	}
	gin.SetMode(cfg.Mode)

	srv := &HTTPServer{
		gin:         gin.New(),
		l:           cfg.Logger,
		port:        cfg.Port,
		mode:        cfg.Mode,
		environment: cfg.Environment,
		repos:       cfg.Repos,
		status:      cfg.Status,
		dispatcher:  cfg.Dispatcher,
		inngest:     cfg.InngestHandler,
		metrics:     cfg.MetricsHandler,
	}
	if err := srv.validate(); err != nil {
		return nil, err
	}

	srv.mapHandlers()
	return srv, nil
}

func (srv *HTTPServer) validate() error {
	if srv.l == nil {
		return errors.New("logger is required")
	}
	if srv.repos == nil {
		return errors.New("repos is required")
	}
	if srv.status == nil {
		return errors.New("status is required")
	}
	if srv.dispatcher == nil {
		return errors.New("dispatcher is required")
	}
	return nil
}

func (srv *HTTPServer) mapHandlers() {
	srv.gin.Use(Recovery(srv.l), RequestLogger(srv.l), CORS())

	srv.gin.GET("/", srv.root)
	srv.gin.GET("/health", srv.healthCheck)
	if srv.metrics != nil {
		srv.gin.GET("/metrics", gin.WrapH(srv.metrics))
	}
	if srv.inngest != nil {
		srv.gin.Any("/api/inngest", gin.WrapH(srv.inngest))
	}

	h := &handler{l: srv.l, repos: srv.repos, status: srv.status, dispatcher: srv.dispatcher}
	reports := srv.gin.Group("/api/reports")
	reports.POST("/process", h.process)
	reports.POST("/:id/next-batch", h.nextBatch)
	reports.POST("/:id/retry", h.retry)
	reports.GET("/:id", h.get)
}

// Handler exposes the router, mostly for tests.
func (srv *HTTPServer) Handler() http.Handler { return srv.gin }

// Run listens until Shutdown is called.
func (srv *HTTPServer) Run() error {
	if srv.port == "" {
		return errors.New("port is required")
	}
	srv.srv = &http.Server{
		Addr:              ":" + srv.port,
		Handler:           srv.gin,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.l.Infof("[HTTPServer] %s listening on :%s (%s)", ServiceName, srv.port, srv.environment)
	if err := srv.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (srv *HTTPServer) Shutdown(ctx context.Context) error {
	if srv.srv == nil {
		return nil
	}
	return srv.srv.Shutdown(ctx)
}

func (srv *HTTPServer) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"service": ServiceName, "status": "running"})
}

func (srv *HTTPServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
