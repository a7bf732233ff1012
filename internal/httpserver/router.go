package httpserver

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/stagelink/backend/internal/config"
	"github.com/stagelink/backend/internal/domain"
	"github.com/stagelink/backend/internal/service"
	"github.com/stagelink/backend/internal/ws"
)

// Repos bundles the store implementations the router wires into services, so
// the same router serves the Postgres and SQLite backends.
type Repos struct {
	Conversations domain.ConversationRepository
	Members       domain.MemberRepository
	Messages      domain.MessageRepository
	Presence      domain.PresenceRepository
}

// NewRouter constructs the main HTTP router and wires routes, services, and middleware.
func NewRouter(
	cfg *config.Config,
	db *sql.DB,
	repos Repos,
	hub *ws.Hub,
	broadcaster ws.Broadcaster,
	idp domain.IdentityProvider,
) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Services
	convSvc := service.NewConversationService(repos.Conversations, repos.Members)
	msgSvc := service.NewMessageService(repos.Conversations, repos.Members, repos.Messages, cfg.DefaultPageSize, cfg.MaxPageSize)
	presenceSvc := service.NewPresenceService(repos.Members, repos.Presence, cfg.PresenceWindow)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message":"Stagelink Chat API","version":"1.0.0"}`))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(idp))

			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", handleCreateConversation(convSvc))
				r.Get("/", handleListConversations(convSvc))
				r.Get("/{conversationID}", handleGetConversation(convSvc))
				r.Get("/{conversationID}/messages", handleListMessages(msgSvc))
				r.Post("/{conversationID}/messages", handleCreateMessage(msgSvc, broadcaster))
				r.Post("/{conversationID}/read", handleMarkRead(msgSvc, broadcaster))
				r.Post("/{conversationID}/typing", handleSetTyping(presenceSvc, broadcaster))
				r.Post("/{conversationID}/presence", handleHeartbeat(presenceSvc))
				r.Get("/{conversationID}/presence", handleGetPresence(presenceSvc))
			})
		})
	})

	// WebSocket endpoint
	r.Get("/ws", ws.MakeHandler(hub, broadcaster, idp, msgSvc, presenceSvc, ws.HandlerConfig{
		AllowedOrigins: cfg.CORSOrigins,
		SendRatePerSec: cfg.SendRatePerSec,
		SendBurst:      cfg.SendBurst,
	}))

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
