package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/wii-build-monitor/internal/headless"
	"github.com/JakeFAU/wii-build-monitor/internal/metrics"
	"github.com/JakeFAU/wii-build-monitor/internal/render"
)

// Renderer produces pages for the render endpoints.
type Renderer interface {
	Render(ctx context.Context, req render.Request, withContent bool) (render.Page, error)
	Status() render.ServiceStatus
}

// IDGenerator mints request ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Server wires HTTP handlers to the browser manager.
type Server struct {
	router   chi.Router
	renderer Renderer
	logger   *zap.Logger
}

// DefaultRequestTimeout bounds a single render request.
const DefaultRequestTimeout = 90 * time.Second

// NewServer constructs a Server with middleware and routes.
func NewServer(renderer Renderer, idGen IDGenerator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{renderer: renderer, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware(idGen))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/health", s.health)
	r.Get("/status", s.status)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(DefaultRequestTimeout))
		r.Post("/screenshot", s.screenshot)
		r.Post("/combined", s.combined)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.renderer.Status())
}

func (s *Server) screenshot(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	page, ok := s.render(w, r, req, "screenshot", false)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(page.Screenshot); err != nil {
		s.logger.Warn("write screenshot", zap.Error(err))
	}
}

type combinedResponse struct {
	Content    string `json:"content"`
	Screenshot string `json:"screenshot"`
}

func (s *Server) combined(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	page, ok := s.render(w, r, req, "combined", true)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, combinedResponse{
		Content:    page.Content,
		Screenshot: base64.StdEncoding.EncodeToString(page.Screenshot),
	})
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, req render.Request, endpoint string, withContent bool) (render.Page, bool) {
	start := time.Now()
	page, err := s.renderer.Render(r.Context(), req, withContent)
	metrics.ObserveRender(metrics.SanitizeSite(req.URL), endpoint, err == nil, time.Since(start))
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		case errors.Is(err, headless.ErrClosed):
			status = http.StatusServiceUnavailable
		}
		s.logger.Warn("render failed",
			zap.String("endpoint", endpoint),
			zap.String("url", req.URL),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, status, err.Error())
		return render.Page{}, false
	}
	return page, true
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (render.Request, bool) {
	var req render.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return render.Request{}, false
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return render.Request{}, false
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return render.Request{}, false
	}
	req.Viewport = headless.NormalizeViewport(req.Viewport)
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
