// Package server exposes health, Prometheus metrics, the ranked top lists and
// the OAuth callbacks over HTTP.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/platform"
	"github.com/kapu/top-music-bot-go/internal/store"
	"github.com/kapu/top-music-bot-go/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	dayLayout       = "2006-01-02"
	stateCookie     = "topmusic_oauth_state"
	shutdownTimeout = 10 * time.Second
)

type TopLister interface {
	TopVideos(ctx context.Context, period domain.Period, day time.Time, limit int) ([]domain.Video, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Addr         string
	DefaultLimit int
}

type Server struct {
	opts        Options
	top         TopLister
	releases    store.ReleaseRepository
	registry    *prometheus.Registry
	authorizers map[domain.Platform]platform.Authorizer
	pingers     map[string]Pinger
	now         func() time.Time
	logger      *zap.Logger
	httpServer  *http.Server
}

func New(
	opts Options,
	top TopLister,
	releases store.ReleaseRepository,
	registry *prometheus.Registry,
	authorizers map[domain.Platform]platform.Authorizer,
	pingers map[string]Pinger,
	logger *zap.Logger,
) *Server {
	s := &Server{
		opts:        opts,
		top:         top,
		releases:    releases,
		registry:    registry,
		authorizers: authorizers,
		pingers:     pingers,
		now:         time.Now,
		logger:      logger,
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", s.handleHealth)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/toplist", s.handleTopList)
	})

	r.Route("/auth/{platform}", func(r chi.Router) {
		r.Get("/", s.handleAuthStart)
		r.Get("/callback", s.handleAuthCallback)
	})
	return r
}

// ListenAndServe blocks until ctx is done, then shuts the server down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.opts.Addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(started)),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("Failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Code: errors.CodeOf(err)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.pingers))
	status := http.StatusOK
	for name, p := range s.pingers {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	s.writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

type topListResponse struct {
	Period    domain.Period  `json:"period"`
	Day       string         `json:"day"`
	Previous  string         `json:"previous_day"`
	Next      string         `json:"next_day,omitempty"`
	Published bool           `json:"published"`
	Videos    []domain.Video `json:"videos"`
}

func (s *Server) handleTopList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	period := domain.PeriodDaily
	if raw := q.Get("period"); raw != "" {
		p, err := domain.ParsePeriod(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, errors.NewValidationError(err.Error(), "period", raw))
			return
		}
		period = p
	}

	today := domain.StartOfDay(s.now())
	day := today
	if raw := q.Get("day"); raw != "" {
		d, err := time.Parse(dayLayout, raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, errors.NewValidationError("day must be YYYY-MM-DD", "day", raw))
			return
		}
		day = domain.StartOfDay(d)
	}

	limit := s.opts.DefaultLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, errors.NewValidationError("limit must be a positive integer", "limit", raw))
			return
		}
		limit = n
	}

	videos, err := s.top.TopVideos(r.Context(), period, day, limit)
	switch {
	case stderrors.Is(err, errors.ErrNoCurrentData):
		videos = []domain.Video{}
	case err != nil:
		s.logger.Error("Top list query failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := topListResponse{
		Period:   period,
		Day:      day.Format(dayLayout),
		Previous: day.AddDate(0, 0, -1).Format(dayLayout),
		Videos:   videos,
	}
	if day.Before(today) {
		resp.Next = day.AddDate(0, 0, 1).Format(dayLayout)
	}
	if s.releases != nil {
		published, err := s.releases.IsReleasedOn(r.Context(), domain.PlatformYouTube, day)
		if err != nil {
			s.logger.Warn("Release lookup failed", zap.Error(err))
		}
		resp.Published = published
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) authorizer(w http.ResponseWriter, r *http.Request) (domain.Platform, platform.Authorizer, bool) {
	raw := chi.URLParam(r, "platform")
	p, err := domain.ParsePlatform(raw)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return "", nil, false
	}
	a, ok := s.authorizers[p]
	if !ok {
		s.writeError(w, http.StatusNotFound, errors.NewValidationError("platform has no OAuth flow configured", "platform", strings.ToLower(raw)))
		return "", nil, false
	}
	return p, a, true
}

func (s *Server) handleAuthStart(w http.ResponseWriter, r *http.Request) {
	_, a, ok := s.authorizer(w, r)
	if !ok {
		return
	}

	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, a.AuthURL(state), http.StatusFound)
}

func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	p, a, ok := s.authorizer(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		s.writeError(w, http.StatusBadRequest, errors.NewValidationError("authorization denied: "+reason, "error", q.Get("error_description")))
		return
	}
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != q.Get("state") {
		s.writeError(w, http.StatusBadRequest, errors.NewValidationError("state mismatch", "state", q.Get("state")))
		return
	}
	code := q.Get("code")
	if code == "" {
		s.writeError(w, http.StatusBadRequest, errors.NewValidationError("missing authorization code", "code", ""))
		return
	}

	if err := a.Exchange(r.Context(), code); err != nil {
		s.logger.Error("OAuth exchange failed", zap.String("platform", p.String()), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	s.logger.Info("Platform authorized", zap.String("platform", p.String()))
	s.writeJSON(w, http.StatusOK, map[string]string{"platform": p.String(), "status": "authorized"})
}
