// Package server exposes incident analysis over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dshills/incidentreasoner/internal/pipeline"
	"github.com/dshills/incidentreasoner/internal/schema"
)

// DefaultMaxUploadBytes bounds an uploaded log file.
const DefaultMaxUploadBytes = 5 << 20

// Analyzer turns a raw log into a plan.
type Analyzer interface {
	Analyze(ctx context.Context, logText string) (schema.StructuredPlan, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr           string
	MaxUploadBytes int64
	// RateLimit is the sustained analysis requests per second allowed per
	// client IP. Zero disables limiting.
	RateLimit float64
}

// Server is the HTTP boundary in front of an Analyzer.
type Server struct {
	echo     *echo.Echo
	analyzer Analyzer
	logger   *zap.Logger
	config   Config
	limiter  []echo.MiddlewareFunc
}

// New builds a Server with its routes registered.
func New(analyzer Analyzer, logger *zap.Logger, cfg Config) (*Server, error) {
	if analyzer == nil {
		return nil, errors.New("server: analyzer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	s := &Server{echo: e, analyzer: analyzer, logger: logger, config: cfg}
	if cfg.RateLimit > 0 {
		store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:  rate.Limit(cfg.RateLimit),
			Burst: max(1, int(math.Ceil(cfg.RateLimit))),
		})
		s.limiter = append(s.limiter, middleware.RateLimiter(store))
	}
	s.registerRoutes()
	return s, nil
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.POST("/analyze", s.handleAnalyzeFile, s.limiter...)
	s.echo.POST("/analyze_text", s.handleAnalyzeText, s.limiter...)
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

// AnalyzeTextRequest is the request body for POST /analyze_text.
type AnalyzeTextRequest struct {
	LogText string `json:"log_text"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleAnalyzeFile analyzes the multipart field "file".
func (s *Server) handleAnalyzeFile(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.config.MaxUploadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	if int64(len(data)) > s.config.MaxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "log file too large")
	}
	return s.analyze(c, strings.ToValidUTF8(string(data), ""))
}

// handleAnalyzeText analyzes a JSON body. The body is bounded by
// MaxUploadBytes like an uploaded file.
func (s *Server) handleAnalyzeText(c echo.Context) error {
	r := c.Request()
	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), r.Body, s.config.MaxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
		}
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable request body")
	}
	var req AnalyzeTextRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return s.analyze(c, req.LogText)
}

func (s *Server) analyze(c echo.Context, logText string) error {
	if strings.TrimSpace(logText) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Empty log")
	}

	plan, err := s.analyzer.Analyze(c.Request().Context(), logText)
	if err != nil {
		var te *pipeline.TransportError
		if errors.As(err, &te) {
			s.logger.Error("upstream failure", zap.String("stage", string(te.Stage)), zap.Error(err))
			return echo.NewHTTPError(http.StatusBadGateway, "upstream service failed")
		}
		s.logger.Error("analysis failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "analysis failed")
	}
	return c.JSON(http.StatusOK, plan)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.config.Addr))
	err := s.echo.Start(s.config.Addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
