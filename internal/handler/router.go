package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-tavern/chatbot/internal/handler/chat"
	middlewarePkg "github.com/zhouzirui/z-tavern/chatbot/internal/middleware"
	chatService "github.com/zhouzirui/z-tavern/chatbot/internal/service/chat"
	"github.com/zhouzirui/z-tavern/chatbot/internal/service/visibility"
	"github.com/zhouzirui/z-tavern/chatbot/pkg/utils"
)

// Options carries the router's non-service settings.
type Options struct {
	ChatEnabled bool
	Visibility  visibility.Policy
	CORSOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(chatSvc *chatService.Service, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(opts.CORSOrigins))

	chatHandler := chat.New(chatSvc, opts.ChatEnabled, opts.Visibility, opts.CORSOrigins)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"chatEnabled": opts.ChatEnabled,
		})
	})

	r.Route("/api/chat", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
	})

	return r
}
