// Package router assembles the chi router with all routes configured.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/myralabs/pura-chat-platform/internal/http/middleware"
	"github.com/myralabs/pura-chat-platform/internal/leads"
	"github.com/myralabs/pura-chat-platform/internal/webchat"
	"github.com/myralabs/pura-chat-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *webchat.Handler
	LeadsHandler       *leads.Handler
	MetricsHandler     http.Handler
	AdminAuthSecret    string
	CORSAllowedOrigins []string
}

// New creates a new chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.ChatHandler != nil {
		r.Get("/chat/ws", cfg.ChatHandler.HandleWebSocket)
		r.Route("/chat", func(chatr chi.Router) {
			chatr.Post("/open", cfg.ChatHandler.HandleOpen)
			chatr.Post("/message", cfg.ChatHandler.HandleMessage)
			chatr.Post("/contact", cfg.ChatHandler.HandleContact)
			chatr.Post("/slots", cfg.ChatHandler.HandleSlots)
			chatr.Post("/slots/select", cfg.ChatHandler.HandleSlotSelect)
			chatr.Post("/slots/all", cfg.ChatHandler.HandleSeeAllSlots)
			chatr.Post("/book-later", cfg.ChatHandler.HandleBookLater)
			chatr.Post("/reset", cfg.ChatHandler.HandleReset)
			chatr.Get("/history", cfg.ChatHandler.HandleHistory)
		})
	}

	if cfg.LeadsHandler != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/leads/{conversationID}", cfg.LeadsHandler.GetByConversation)
		})
	}

	return r
}
