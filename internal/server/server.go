// Package server exposes kit analysis, placement planning and the active
// experiment over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/piwi3910/KitPlacer/internal/experiment"
	"github.com/piwi3910/KitPlacer/internal/metrics"
	"github.com/piwi3910/KitPlacer/internal/model"
)

// Config wires a Server.
type Config struct {
	App      model.AppConfig
	Store    *experiment.Store
	Observer metrics.Observer
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Persist is called with the experiment after every change. Failures
	// are logged, the request still succeeds.
	Persist func(model.Experiment) error
	// Logger defaults to klog.Background().
	Logger logr.Logger
}

// Server is the HTTP API.
type Server struct {
	cfg      model.AppConfig
	store    *experiment.Store
	observer metrics.Observer
	persist  func(model.Experiment) error
	logger   logr.Logger
	engine   *gin.Engine

	persistMu sync.Mutex // orders snapshot writes
}

// New builds the gin engine and registers every route.
func New(c Config) *Server {
	c.App.Normalize()
	if c.Store == nil {
		c.Store = experiment.NewStore()
	}
	if c.Observer == nil {
		c.Observer = metrics.Nop()
	}
	if c.Logger.GetSink() == nil {
		c.Logger = klog.Background()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(c.Logger))

	s := &Server{
		cfg:      c.App,
		store:    c.Store,
		observer: c.Observer,
		persist:  c.Persist,
		logger:   c.Logger,
		engine:   engine,
	}

	api := engine.Group("/api")
	api.GET("/plates", s.listPlates)
	api.GET("/experiment", s.getExperiment)
	api.POST("/experiment/reset", s.resetExperiment)
	api.PUT("/experiment/context", s.updateContext)
	api.POST("/experiment/kit/analyze", s.analyzeKit)
	api.POST("/experiment/kit/plan", s.planKit)
	api.POST("/experiment/kit/apply", s.applyKit)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if c.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(c.Gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Serving kit placement API", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Shutting down kit placement API")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// requestLogger puts logger into each request context and logs the
// request once it has been served.
func requestLogger(logger logr.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLogger := logger.WithValues("method", c.Request.Method, "path", c.FullPath())
		c.Request = c.Request.WithContext(klog.NewContext(c.Request.Context(), reqLogger))

		c.Next()

		reqLogger.V(2).Info("Handled request", "status", c.Writer.Status(), "duration", time.Since(start))
	}
}

func (s *Server) saveSnapshot(c *gin.Context) {
	if s.persist == nil {
		return
	}
	// Read under persistMu so a later write never carries an older experiment.
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if err := s.persist(s.store.Get()); err != nil {
		klog.FromContext(c.Request.Context()).Error(err, "Failed to persist experiment")
	}
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
