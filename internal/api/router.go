package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler, socketHandler *SocketHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Post("/start_conversation", apiHandler.StartConversationHandler)
	r.Get("/conversation/{leadID}", apiHandler.GetConversationHandler)
	r.Post("/conversation/{leadID}", apiHandler.PostMessageHandler)
	r.Get("/check_follow_up", apiHandler.CheckFollowUpHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/conversation_history/{userID}", apiHandler.ConversationHistoryHandler)
		r.Delete("/clear_conversation_history/{userID}", apiHandler.ClearConversationHistoryHandler)
		r.Get("/leads", apiHandler.ListLeadsHandler)
		r.Get("/leads/{leadID}", apiHandler.GetLeadHandler)
		r.Get("/system/health", apiHandler.HealthHandler)
	})

	r.Get("/ws", socketHandler.ServeHTTP)

	return r
}
