package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"rallyup/backend/internal/authctx"
	"rallyup/backend/internal/config"
	"rallyup/backend/internal/domain/conversation"
	"rallyup/backend/internal/domain/lifecycle"
	"rallyup/backend/internal/domain/profile"
	"rallyup/backend/internal/domain/session"
	"rallyup/backend/internal/handlers"
	"rallyup/backend/internal/httpjson"
	"rallyup/backend/internal/metrics"
	"rallyup/backend/internal/middleware"
	"rallyup/backend/internal/realtime"
	"rallyup/backend/internal/venues"
)

type RouterDeps struct {
	Cfg      config.Config
	Log      *slog.Logger
	Verifier middleware.TokenVerifier
	Metrics  *metrics.Metrics

	ProfileSvc      *profile.Service
	SessionSvc      *session.Service
	ConversationSvc *conversation.Service
	Lifecycle       *lifecycle.Orchestrator
	Venues          *venues.Client
	Streams         *realtime.Streamer
	Uploads         *handlers.Uploads
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(d.Cfg.AllowedOrigins, d.Log))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(middleware.AccessLog(d.Log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, 200, map[string]any{"ok": true, "ts": time.Now().UTC().Format(time.RFC3339)})
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	// Protected routes
	r.Group(func(pr chi.Router) {
		pr.Use(middleware.WithAuth(d.Verifier, d.Log))

		pr.Get("/v1/me", func(w http.ResponseWriter, r *http.Request) {
			p, _ := authctx.From(r.Context())
			WriteJSON(w, 200, map[string]any{
				"uid":    p.UID,
				"email":  p.Email,
				"claims": p.Claims,
			})
		})

		mountProfile(pr, d)
		mountSessions(pr, d)
		mountConversations(pr, d)

		pr.Get("/v1/venues/search", func(w http.ResponseWriter, r *http.Request) {
			params, err := venueParams(r)
			if err != nil {
				failErr(w, r, d.Log, err)
				return
			}
			out, err := d.Venues.Search(r.Context(), params)
			if err != nil {
				failErr(w, r, d.Log, err)
				return
			}
			WriteJSON(w, 200, map[string]any{"venues": out})
		})

		if d.Uploads != nil {
			pr.Post("/v1/uploads/avatar", d.Uploads.CreateAvatarUploadURL)
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpjson.Error(w, http.StatusNotFound, "not found")
	})
	return r
}

// principal is set by WithAuth on every protected route.
func principal(r *http.Request) *authctx.Principal {
	p, _ := authctx.From(r.Context())
	return p
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpjson.Read(r, dst); err != nil {
		Fail(w, 400, "invalid json")
		return false
	}
	return true
}
