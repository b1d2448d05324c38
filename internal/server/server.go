// Package server exposes the question-answering session over HTTP.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"ragchat/internal/domain"
	"ragchat/internal/metrics"
	"ragchat/internal/service"
)

//go:embed static/chat.html
var static embed.FS

// Service is the part of the session the HTTP layer drives.
type Service interface {
	Ask(ctx context.Context, query string) (*service.Answer, error)
	Ingest(ctx context.Context, folder string) (*service.IngestReport, error)
	Clear(ctx context.Context) error
	State() service.State
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Response string `json:"response"`
}

type ingestRequest struct {
	Folder string `json:"folder"`
}

type ingestResponse struct {
	Folder    string `json:"folder"`
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
	Skipped   int    `json:"skipped"`
	Summary   string `json:"summary"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type handler struct {
	svc Service
}

// New builds the echo instance with all routes registered.
func New(svc Service, m *metrics.Metrics, logger *slog.Logger) *echo.Echo {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("HTTP request",
				slog.String("id", v.RequestID),
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("took", v.Latency))
			return nil
		},
	}))
	e.HTTPErrorHandler = errorHandler(logger)

	h := &handler{svc: svc}
	e.GET("/", h.index)
	e.POST("/get_response", h.getResponse)
	e.POST("/ingest", h.ingest)
	e.POST("/clear", h.clear)
	e.GET("/healthz", h.healthz)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
	return e
}

// Run serves e on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, e *echo.Echo, addr string, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("HTTP server shutting down")
	return e.Shutdown(shutdownCtx)
}

func (h *handler) index(c echo.Context) error {
	page, err := static.ReadFile("static/chat.html")
	if err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, page)
}

func (h *handler) getResponse(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return c.JSON(http.StatusOK, queryResponse{Response: service.MsgInvalidQuery})
	}
	ans, err := h.svc.Ask(c.Request().Context(), req.Query)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, queryResponse{Response: ans.Text})
}

func (h *handler) ingest(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if strings.TrimSpace(req.Folder) == "" {
		return domain.NewError(domain.KindMalformedInput, "ingest", errors.New("folder is required"))
	}
	report, err := h.svc.Ingest(c.Request().Context(), req.Folder)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ingestResponse{
		Folder:    report.Folder,
		Documents: report.Documents,
		Chunks:    report.Chunks,
		Skipped:   len(report.Skipped),
		Summary:   report.Summary,
	})
}

func (h *handler) clear(c echo.Context) error {
	if err := h.svc.Clear(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *handler) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "state": h.svc.State().String()})
}

// errorHandler renders every error as {"error", "kind"} with a status
// derived from the domain kind.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code, body := statusFor(err)
		req := c.Request()
		level := slog.LevelWarn
		if code >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(req.Context(), level, "Request failed",
			slog.Int("status", code),
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Any("error", err))
		if c.Response().Committed {
			return
		}
		if req.Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}

func statusFor(err error) (int, errorResponse) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		kind := domain.KindInternal
		if he.Code < http.StatusInternalServerError {
			kind = domain.KindMalformedInput
		}
		return he.Code, errorResponse{Error: fmt.Sprint(he.Message), Kind: string(kind)}
	}
	kind := domain.KindOf(err)
	var code int
	switch kind {
	case domain.KindMalformedInput, domain.KindNoDocuments:
		code = http.StatusBadRequest
	case domain.KindServiceUnavailable:
		code = http.StatusServiceUnavailable
	case domain.KindTimeout:
		code = http.StatusGatewayTimeout
	default:
		code = http.StatusInternalServerError
	}
	return code, errorResponse{Error: err.Error(), Kind: string(kind)}
}
