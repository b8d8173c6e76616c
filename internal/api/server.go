// Package api serves the calculator over HTTP: readings, recommendations, a live stream and metrics
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mrcode/glucose-calculator/internal/advice"
	"github.com/mrcode/glucose-calculator/internal/display"
	"github.com/mrcode/glucose-calculator/internal/dosing"
	"github.com/mrcode/glucose-calculator/internal/feed"
	"github.com/mrcode/glucose-calculator/internal/models"
)

const shutdownTimeout = 5 * time.Second

// historyErrorWindow is how long a history write error marks the server degraded
const historyErrorWindow = time.Minute

// HistoryStats reports on the history writer
type HistoryStats interface {
	Written() int64
	LastErrorAge() time.Duration
}

// Options wires the server to the rest of the application
type Options struct {
	Advice   *advice.Service
	Latest   *feed.Latest
	Settings *models.Settings
	Hub      *Hub         // optional; disables /api/v1/stream when nil
	Metrics  http.Handler // optional; disables /metrics when nil
	History  HistoryStats // optional
	Logger   *slog.Logger
}

// Server is the HTTP API
type Server struct {
	engine   *gin.Engine
	advice   *advice.Service
	latest   *feed.Latest
	settings *models.Settings
	hub      *Hub
	history  HistoryStats
	logger   *slog.Logger
	now      func() time.Time
	upgrader websocket.Upgrader
}

// NewServer builds the router
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:   gin.New(),
		advice:   opts.Advice,
		latest:   opts.Latest,
		settings: opts.Settings,
		hub:      opts.Hub,
		history:  opts.History,
		logger:   logger,
		now:      time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes(opts.Metrics)
	return s
}

func (s *Server) setupRoutes(metrics http.Handler) {
	s.engine.GET("/healthz", s.getHealth)

	v1 := s.engine.Group("/api/v1")
	v1.GET("/reading", s.getReading)
	v1.POST("/readings", s.postReading)
	v1.POST("/recommendation", s.postRecommendation)
	if s.hub != nil {
		v1.GET("/stream", s.handleStream)
	}

	if metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(metrics))
	}
}

// Handler returns the router as an http.Handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, errorResponse{Error: err.Error()})
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, advice.ErrNoReading):
		return http.StatusNotFound
	case errors.Is(err, advice.ErrInvalidTarget),
		errors.Is(err, advice.ErrInvalidReading),
		errors.Is(err, dosing.ErrInvalidBodyWeight):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) getHealth(c *gin.Context) {
	_, ok := s.latest.Get()
	resp := gin.H{"status": "ok", "hasReading": ok}
	if s.hub != nil {
		resp["streamClients"] = s.hub.Clients()
	}

	code := http.StatusOK
	if s.history != nil {
		healthy := s.history.LastErrorAge() > historyErrorWindow
		resp["history"] = gin.H{"written": s.history.Written(), "healthy": healthy}
		if !healthy {
			resp["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, resp)
}

type readingResponse struct {
	Reading models.SensorReading  `json:"reading"`
	Status  *models.GlucoseStatus `json:"status"`
	Text    string                `json:"text"`
}

func (s *Server) getReading(c *gin.Context) {
	r, ok := s.latest.Get()
	if !ok {
		s.fail(c, advice.ErrNoReading)
		return
	}
	c.JSON(http.StatusOK, readingResponse{
		Reading: r,
		Status:  models.NewGlucoseStatus(r, s.settings, s.now()),
		Text:    display.Reading(r, s.unit()),
	})
}

// postReading accepts the same payloads as the MQTT feed
func (s *Server) postReading(c *gin.Context) {
	var b feed.Broadcast
	if err := c.ShouldBindJSON(&b); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	r := b.Reading(s.now(), "api")
	if !r.Valid() {
		s.fail(c, advice.ErrInvalidReading)
		return
	}
	if !s.latest.Set(r) {
		c.JSON(http.StatusConflict, errorResponse{Error: feed.ErrStale.Error()})
		return
	}
	c.JSON(http.StatusAccepted, r)
}

// recommendationRequest overrides the configured target and weight; with a
// reading the calculation uses it instead of the latest one
type recommendationRequest struct {
	TargetGlucose *float64              `json:"targetGlucose"`
	BodyWeight    *float64              `json:"bodyWeight"`
	Reading       *models.SensorReading `json:"reading"`
}

type recommendationResponse struct {
	Result     *advice.Result `json:"result"`
	Summary    string         `json:"summary"`
	Text       string         `json:"text"`
	Disclaimer string         `json:"disclaimer"`
}

func (s *Server) postRecommendation(c *gin.Context) {
	var req recommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	target, weight := s.settings.Calculator()
	if req.TargetGlucose != nil {
		target = *req.TargetGlucose
	}
	if req.BodyWeight != nil {
		weight = *req.BodyWeight
	}

	var (
		res *advice.Result
		err error
	)
	if req.Reading != nil {
		res, err = s.advice.CalculateFor(c.Request.Context(), *req.Reading, target, weight)
	} else {
		res, err = s.advice.Calculate(c.Request.Context(), target, weight)
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, recommendationResponse{
		Result:     res,
		Summary:    display.Summary(res),
		Text:       display.Result(res, s.unit(), s.now()),
		Disclaimer: display.Disclaimer,
	})
}

func (s *Server) handleStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Info("websocket upgrade failed", "error", err)
		return
	}

	cl := &client{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan Message, 16),
		remote: c.ClientIP(),
	}

	select {
	case s.hub.register <- cl:
	case <-s.hub.done:
		_ = conn.Close()
		return
	}

	go cl.writePump()
	go cl.readPump()
}

func (s *Server) unit() string {
	if s.settings == nil {
		return display.UnitMgdl
	}
	return s.settings.Clone().Unit
}
