package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern/chatbot/internal/config"
	"github.com/zhouzirui/z-tavern/chatbot/internal/handler"
	"github.com/zhouzirui/z-tavern/chatbot/internal/logging"
	"github.com/zhouzirui/z-tavern/chatbot/internal/service/chat"
	"github.com/zhouzirui/z-tavern/chatbot/internal/service/session"
	"github.com/zhouzirui/z-tavern/chatbot/internal/service/webhook"
	"github.com/zhouzirui/z-tavern/chatbot/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(os.Stderr, cfg.LogLevel)

	if envErr != nil {
		log.Warn().Err(envErr).Msg("failed to load .env file, continuing with system environment variables only")
	}

	storage, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("failed to open storage")
	}
	defer storage.Close()

	identity := session.NewManager(storage)
	client := webhook.NewClient(webhook.Config{
		EndpointURL: cfg.Chatbot.WebhookURL,
		Timeout:     cfg.Chatbot.Timeout,
	})

	if cfg.Chatbot.Enabled() {
		log.Info().Str("backend", cfg.Storage.Backend).Msg("chatbot webhook configured")
	} else {
		log.Warn().Msg("CHATBOT_WEBHOOK_URL not set, chat disabled")
	}

	chatService := chat.NewService(identity, client, chat.Config{
		Greeting: cfg.Chatbot.Greeting,
		Fallback: cfg.Chatbot.Fallback,
	})

	// REST conversations that are never deleted get reclaimed here.
	go chatService.RunSweeper(ctx, time.Minute, cfg.Chatbot.ConversationTTL)

	router := handler.NewRouter(chatService, handler.Options{
		ChatEnabled: cfg.Chatbot.Enabled(),
		Visibility:  cfg.Chatbot.Visibility(),
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("chatbot relay listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
