package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/famboard/internal/auth"
	"github.com/dukerupert/famboard/internal/handler"
	"github.com/dukerupert/famboard/internal/middleware"
	"github.com/dukerupert/famboard/internal/notify"
	"github.com/dukerupert/famboard/internal/store"
	ws "github.com/dukerupert/famboard/internal/websocket"
)

type Options struct {
	Tokens         *auth.Tokens
	Notifier       notify.Notifier
	AuthRateLimit  int
	AuthRateWindow time.Duration
	AllowedOrigins []string
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	opts        Options
	authH       *handler.AuthHandler
	memberH     *handler.MemberHandler
	familyH     *handler.FamilyHandler
	taskH       *handler.TaskHandler
	rewardH     *handler.RewardHandler
	memberStore *store.MemberStore
	familyStore *store.FamilyStore
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, opts Options, logger *slog.Logger) *Server {
	if opts.AuthRateLimit <= 0 {
		opts.AuthRateLimit = 10
	}
	if opts.AuthRateWindow <= 0 {
		opts.AuthRateWindow = time.Minute
	}

	hub := ws.NewHub(logger.With("component", "websocket"))

	memberStore := store.NewMemberStore(db)
	familyStore := store.NewFamilyStore(db)
	taskStore := store.NewTaskStore(db)
	rewardStore := store.NewRewardStore(db)

	return &Server{
		db:          db,
		hub:         hub,
		opts:        opts,
		authH:       handler.NewAuthHandler(memberStore, opts.Tokens, logger.With("component", "auth")),
		memberH:     handler.NewMemberHandler(memberStore, familyStore, taskStore, rewardStore, hub, logger.With("component", "member")),
		familyH:     handler.NewFamilyHandler(familyStore, memberStore, hub, opts.Notifier, logger.With("component", "family")),
		taskH:       handler.NewTaskHandler(taskStore, hub, logger.With("component", "task")),
		rewardH:     handler.NewRewardHandler(rewardStore, hub, logger.With("component", "reward")),
		memberStore: memberStore,
		familyStore: familyStore,
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// MemberStore is used by the streak reset job.
func (s *Server) MemberStore() *store.MemberStore {
	return s.memberStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("POST /api/auth/logout", s.authH.Logout)

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.opts.Tokens, s.memberStore, s.familyStore, s.logger.With("component", "auth"))
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP, s.opts.AuthRateLimit, s.opts.AuthRateWindow)
	return rl(h).ServeHTTP
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	family := func(h http.HandlerFunc) http.Handler { return middleware.RequireFamily(h) }
	owner := func(h http.HandlerFunc) http.Handler { return middleware.RequireFamily(middleware.RequireOwner(h)) }

	mux.HandleFunc("GET /api/me", s.memberH.Me)
	mux.HandleFunc("PUT /api/me", s.memberH.UpdateMe)

	// Family lifecycle. Owner checks on approve, reject and member
	// management happen in the lifecycle rules.
	mux.HandleFunc("POST /api/family", s.familyH.Create)
	mux.HandleFunc("GET /api/family", s.familyH.Get)
	mux.HandleFunc("POST /api/family/join", s.familyH.Join)
	mux.Handle("POST /api/family/requests/{id}/approve", family(s.familyH.Approve))
	mux.Handle("POST /api/family/requests/{id}/reject", family(s.familyH.Reject))
	mux.Handle("POST /api/family/leave", family(s.familyH.Leave))
	mux.Handle("POST /api/family/members", family(s.familyH.AddMember))
	mux.Handle("DELETE /api/family/members/{id}", family(s.familyH.RemoveMember))

	mux.Handle("POST /api/tasks", family(s.taskH.Create))
	mux.Handle("GET /api/tasks", family(s.taskH.List))
	mux.Handle("PUT /api/tasks/{id}", family(s.taskH.Update))
	mux.Handle("DELETE /api/tasks/{id}", family(s.taskH.Delete))
	mux.Handle("POST /api/tasks/{id}/complete", family(s.taskH.Complete))

	mux.Handle("POST /api/rewards", owner(s.rewardH.Create))
	mux.Handle("GET /api/rewards", family(s.rewardH.List))
	mux.Handle("PUT /api/rewards/{id}", owner(s.rewardH.Update))
	mux.Handle("DELETE /api/rewards/{id}", owner(s.rewardH.Delete))
	mux.Handle("POST /api/rewards/{id}/redeem", family(s.rewardH.Redeem))
	mux.Handle("GET /api/leaderboard", family(s.rewardH.Leaderboard))

	mux.Handle("GET /api/members/{id}/progress", family(s.memberH.Progress))
	mux.Handle("GET /api/members/{id}/focus", family(s.memberH.Focus))
	mux.Handle("POST /api/members/{id}/reset", owner(s.memberH.ResetProgress))

	mux.Handle("GET /ws", family(ws.HandleWebSocket(s.hub, s.opts.AllowedOrigins, s.logger.With("component", "websocket"))))
}
