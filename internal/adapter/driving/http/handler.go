package http

import (
	"net/http"

	"github.com/glimmerapp/glimmer/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handler struct {
	Hub            *service.SignalingHub
	ChatService    *service.ChatService
	allowedOrigins []string
}

func NewHandler(hub *service.SignalingHub, chatService *service.ChatService, allowedOrigins []string) *Handler {
	return &Handler{
		Hub:            hub,
		ChatService:    chatService,
		allowedOrigins: allowedOrigins,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/ws", h.ServeWS)

	return r
}
