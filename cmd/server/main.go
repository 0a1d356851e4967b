package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	callstore "github.com/glimmerapp/glimmer/internal/adapter/driven/calls/memory"
	gateway "github.com/glimmerapp/glimmer/internal/adapter/driven/gateway/registry"
	repo "github.com/glimmerapp/glimmer/internal/adapter/driven/persistence/memory"
	registry "github.com/glimmerapp/glimmer/internal/adapter/driven/registry/memory"
	rooms "github.com/glimmerapp/glimmer/internal/adapter/driven/rooms/memory"
	handler "github.com/glimmerapp/glimmer/internal/adapter/driving/http"
	"github.com/glimmerapp/glimmer/internal/config"
	"github.com/glimmerapp/glimmer/internal/core/service"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Caller().Logger()
	zlog.Logger = l

	cfg := config.Load(config.Options{})

	reg := registry.NewRegistry()
	roomTable := rooms.NewTable()
	calls := callstore.NewStore()
	gw := gateway.NewGateway(reg)
	messages := repo.NewMessageRepository()
	history := repo.NewCallHistoryRepository()

	hub := service.NewSignalingHub(reg, roomTable, calls, gw, history)
	chatService := service.NewChatService(messages, roomTable, gw)
	h := handler.NewHandler(hub, chatService, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: h.NewRouter(),
	}

	go func() {
		l.Info().Str("addr", cfg.Addr).Msg("Starting signaling server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	l.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("Server forced to shutdown")
	}

	l.Info().Msg("Server exited")
}
