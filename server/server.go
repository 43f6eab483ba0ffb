// Package server exposes the publishing workflow over HTTP for the dashboard.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"autopost/account"
	"autopost/analytics"
	"autopost/events"
	"autopost/generator"
	"autopost/imagegen"
	"autopost/metrics"
	"autopost/post"
	"autopost/scheduler"
)

const generateTimeout = 60 * time.Second

// ImageGenerator produces an image URL for a request.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req imagegen.ImageRequest) (string, error)
}

// Deps are the services the HTTP layer drives.
type Deps struct {
	Posts     *post.Store
	Scheduler *scheduler.Service
	Publisher scheduler.Publisher
	Text      *generator.TextGenerator
	Images    ImageGenerator
	Accounts  *account.Store
	Analytics *analytics.Service
	Hub       *events.Hub
	Logger    logrus.FieldLogger
}

type Server struct {
	deps     Deps
	sessions *sessionStore
	logger   logrus.FieldLogger
	now      func() time.Time
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*generator.Session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*generator.Session)}
}

func (s *sessionStore) set(id string, sess *generator.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = sess
}

func (s *sessionStore) get(id string) (*generator.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// New validates deps and creates a Server.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Posts == nil:
		return nil, errors.New("post store required")
	case deps.Scheduler == nil:
		return nil, errors.New("scheduler required")
	case deps.Publisher == nil:
		return nil, errors.New("publisher required")
	case deps.Text == nil:
		return nil, errors.New("text generator required")
	case deps.Images == nil:
		return nil, errors.New("image generator required")
	case deps.Accounts == nil:
		return nil, errors.New("account store required")
	case deps.Analytics == nil:
		return nil, errors.New("analytics required")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	return &Server{
		deps:     deps,
		sessions: newSessionStore(),
		logger:   deps.Logger.WithField("component", "http"),
		now:      time.Now,
	}, nil
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate/text", s.handleGenerateText)
		r.Post("/generate/image", s.handleGenerateImage)

		r.Post("/sessions", s.handleSessionCreate)
		r.Get("/sessions/{id}", s.handleSessionGet)
		r.Post("/sessions/{id}/revise", s.handleSessionRevise)
		r.Post("/sessions/{id}/image", s.handleSessionImage)

		r.Get("/posts", s.handlePostList)
		r.Post("/posts", s.handlePostCreate)
		r.Get("/posts/scheduled", s.handlePostScheduled)
		r.Get("/posts/{id}", s.handlePostGet)
		r.Patch("/posts/{id}", s.handlePostUpdate)
		r.Delete("/posts/{id}", s.handlePostDelete)
		r.Post("/posts/{id}/publish", s.handlePostPublish)
		r.Post("/posts/{id}/schedule", s.handlePostSchedule)

		r.Get("/schedule", s.handleScheduleList)
		r.Post("/schedule", s.handleScheduleCreate)
		r.Post("/schedule/run", s.handleScheduleRun)
		r.Get("/schedule/{id}", s.handleScheduleGet)
		r.Delete("/schedule/{id}", s.handleScheduleCancel)

		r.Get("/connections", s.handleConnections)
		r.Post("/connections/{platform}", s.handleConnect)
		r.Delete("/connections/{platform}", s.handleDisconnect)
		r.Get("/preferences", s.handlePreferencesGet)
		r.Patch("/preferences", s.handlePreferencesUpdate)

		r.Get("/analytics/overview", s.handleAnalyticsOverview)
		r.Get("/analytics/posts/{id}", s.handleAnalyticsPost)

		r.Get("/events", s.handleEvents)
	})
	return r
}

// --- Helpers ---

type errorResp struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, post.ErrValidation),
		errors.Is(err, generator.ErrValidation),
		errors.Is(err, imagegen.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, post.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, imagegen.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, imagegen.ErrGenerationFailed), errors.Is(err, imagegen.ErrProvider):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorResp{Error: err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func newSessionID() string {
	return uuid.NewString()
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log := s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      status,
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
		if status >= http.StatusInternalServerError {
			log.Warn("request failed")
			return
		}
		log.Debug("request served")
	})
}
