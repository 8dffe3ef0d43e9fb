package metrics

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rileyhilliard/sensord/internal/errors"
	"github.com/rileyhilliard/sensord/internal/logger"
)

// Response wraps every JSON reply.
type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Server serves /metrics, /healthz and the read-only sensor API.
type Server struct {
	sink    *Sink
	log     logger.Logger
	engine  *gin.Engine
	started time.Time
	version string
}

// NewServer builds the HTTP handlers for sink.
func NewServer(sink *Sink, log logger.Logger, version string) *Server {
	if log == nil {
		log = logger.Noop()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		sink:    sink,
		log:     log,
		engine:  gin.New(),
		started: time.Now(),
		version: version,
	}
	s.engine.Use(gin.Recovery(), s.logRequests)
	s.engine.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.sink.Registry(), promhttp.HandlerOpts{})))
	s.engine.GET("/healthz", s.handleHealth)

	api := s.engine.Group("/api")
	{
		api.GET("/sensors", s.handleSensors)
		api.GET("/sensors/:name", s.handleSensor)
		api.GET("/power", s.handlePower)
	}
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Status: "success",
		Data: gin.H{
			"version": s.version,
			"uptime":  time.Since(s.started).Round(time.Second).String(),
			"sensors": len(s.sink.Sensors()),
		},
	})
}

func (s *Server) handleSensors(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Status: "success", Data: s.sink.Sensors()})
}

func (s *Server) handleSensor(c *gin.Context) {
	name := c.Param("name")
	snap, ok := s.sink.Sensor(name)
	if !ok {
		c.JSON(http.StatusNotFound, Response{Status: "error", Error: "unknown sensor " + name})
		return
	}
	c.JSON(http.StatusOK, Response{Status: "success", Data: snap})
}

func (s *Server) handlePower(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Status: "success", Data: s.sink.Power()})
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("serving metrics on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Can't serve metrics on "+addr, "Check http.listen in the config, or set it empty to disable.")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
