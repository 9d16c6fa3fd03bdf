package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mikey/phishwatch/internal/core"
	"go.uber.org/zap"
)

// maxRequestBytes bounds request bodies
const maxRequestBytes = 1 << 20

// Scorer is the part of the analysis service exposed over HTTP
type Scorer interface {
	Analyze(ctx context.Context, msg *core.Message) (*core.Analysis, error)
	CheckURL(ctx context.Context, url string) int
	Predict(ctx context.Context, text string) (float64, string, error)
	ClassifierAvailable() bool
	AlertingEnabled() bool
}

// Options configures the HTTP server
type Options struct {
	ListenAddress string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	Service       string
}

// Server exposes the scoring service over HTTP
type Server struct {
	scorer  Scorer
	audit   core.AuditSink
	metrics http.Handler
	opts    Options
	router  *chi.Mux
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// NewServer creates the HTTP API. metrics may be nil to leave /metrics out.
func NewServer(scorer Scorer, audit core.AuditSink, metrics http.Handler, opts Options, logger *zap.Logger) *Server {
	if opts.Service == "" {
		opts.Service = "PhishWatch"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggerMiddleware(logger))
	r.Use(middleware.Recoverer)

	s := &Server{
		scorer:  scorer,
		audit:   audit,
		metrics: metrics,
		opts:    opts,
		router:  r,
		logger:  logger,
		now:     time.Now,
	}
	s.routes()
	return s
}

func loggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("Request completed",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (s *Server) routes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Post("/analyze-email", s.handleAnalyze)
	s.router.Post("/check_url", s.handleCheckURL)
	s.router.Post("/predict", s.handlePredict)
	s.router.Post("/feedback", s.handleFeedback)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"classifier_enabled": s.scorer.ClassifierAvailable(),
		"alerting_enabled":   s.scorer.AlertingEnabled(),
		"service":            s.opts.Service,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var msg core.Message
	if !s.decode(w, r, &msg) {
		return
	}

	analysis, err := s.scorer.Analyze(r.Context(), &msg)
	if err != nil {
		if errors.Is(err, core.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, "Missing sender/subject")
			return
		}
		s.logger.Error("Analysis failed", zap.String("message_id", msg.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleCheckURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"reputation_score": s.scorer.CheckURL(r.Context(), req.URL),
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	score, source, err := s.scorer.Predict(r.Context(), req.Text)
	if err != nil {
		if errors.Is(err, core.ErrEmptyText) {
			writeError(w, http.StatusBadRequest, "No text provided")
			return
		}
		s.logger.Error("Prediction failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ml_score": score,
		"source":   source,
	})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var fb core.Feedback
	if !s.decode(w, r, &fb) {
		return
	}
	if strings.TrimSpace(fb.MessageID) == "" || strings.TrimSpace(fb.Label) == "" {
		writeError(w, http.StatusBadRequest, "Missing message_id/label")
		return
	}
	fb.Timestamp = s.now().UTC()

	if err := s.audit.RecordFeedback(r.Context(), &fb); err != nil {
		s.logger.Error("Failed to record feedback", zap.String("message_id", fb.MessageID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}

	s.logger.Info("Feedback recorded", zap.String("message_id", fb.MessageID), zap.String("label", fb.Label))
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Feedback recorded"})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v); err != nil {
		s.logger.Warn("Failed to decode request", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid request")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Start listens and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return fmt.Errorf("http server already started")
	}

	ln, err := net.Listen("tcp", s.opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.ListenAddress, err)
	}

	s.srv = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}
	s.listener = ln
	s.done = make(chan struct{})

	s.logger.Info("Starting HTTP server", zap.String("address", ln.Addr().String()))

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}(s.srv, s.done)

	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully
func (s *Server) Stop() error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv, s.listener = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Stopping HTTP server")
	err := srv.Shutdown(ctx)
	<-done
	if err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	return nil
}
