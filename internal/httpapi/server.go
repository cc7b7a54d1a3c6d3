package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/auth"
	"github.com/hamed0406/sitewatch/internal/domain"
	apimw "github.com/hamed0406/sitewatch/internal/httpapi/middleware"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// Monitor is the part of the scheduler the API drives.
type Monitor interface {
	Schedule(t domain.Target)
	Unschedule(id domain.TargetID)
	CheckNow(ctx context.Context, id domain.TargetID) error
}

// History serves check history and uptime figures.
type History interface {
	History(ctx context.Context, id domain.TargetID, limit int) ([]domain.CheckResult, error)
	Stats(ctx context.Context, id domain.TargetID) (domain.Stats, error)
}

// ChatValidator confirms that an alert destination is reachable.
type ChatValidator interface {
	ValidateChat(ctx context.Context, chatID string) error
}

type Options struct {
	AllowedOrigins []string
	AuthRPM        int
	AuthBurst      int
}

type Server struct {
	Logger   *zap.Logger
	Accounts repo.AccountStore
	Targets  repo.TargetStore
	Monitor  Monitor
	History  History
	Tokens   *auth.Tokens
	Chats    ChatValidator // optional
	Events   *Hub
	Options  Options
}

func NewServer(l *zap.Logger, store repo.Store, mon Monitor, hist History, tokens *auth.Tokens, opts Options) *Server {
	return &Server{
		Logger:   l,
		Accounts: store,
		Targets:  store,
		Monitor:  mon,
		History:  hist,
		Tokens:   tokens,
		Events:   NewHub(l),
		Options:  opts,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(apimw.RequestLogger(s.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.Options.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	limit := apimw.RateLimit(s.Options.AuthRPM, s.Options.AuthBurst)
	requireUser := apimw.RequireUser(s.Tokens)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(limit).Post("/register", s.handleRegister)
			r.With(limit).Post("/login", s.handleLogin)
			r.Group(func(r chi.Router) {
				r.Use(requireUser)
				r.Get("/me", s.handleMe)
				r.Patch("/me", s.handleUpdateMe)
				r.Delete("/me", s.handleDeleteMe)
			})
		})

		r.Route("/websites", func(r chi.Router) {
			r.With(apimw.RequireUserQuery(s.Tokens)).Get("/events", s.handleEvents)

			r.Group(func(r chi.Router) {
				r.Use(requireUser)
				r.Get("/", s.handleListTargets)
				r.Post("/", s.handleCreateTarget)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetTarget)
					r.Patch("/", s.handleUpdateTarget)
					r.Delete("/", s.handleDeleteTarget)
					r.Post("/start", s.handleStart)
					r.Post("/stop", s.handleStop)
					r.Post("/check-now", s.handleCheckNow)
					r.Get("/stats", s.handleStats)
					r.Get("/history", s.handleHistory)
				})
			})
		})
	})

	return r
}
