package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(apiHandler *APIHandler, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Clients send /chat_history/ as well as /chat_history

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", apiHandler.RegisterHandler)
		r.Post("/login", apiHandler.LoginHandler)
	})

	// Guests may chat but never own history.
	r.With(apiHandler.IdentityMiddleware(true)).Post("/healthbot", apiHandler.ChatHandler)

	r.Route("/chat_history", func(r chi.Router) {
		r.Use(apiHandler.IdentityMiddleware(false))

		r.Get("/", apiHandler.ListHistoryHandler)
		r.Delete("/delete", apiHandler.DeleteHistoryHandler)
		r.Get("/{chatID}", apiHandler.GetHistoryEntryHandler)
	})

	return r
}
