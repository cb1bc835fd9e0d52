package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/relayhq/chat-api/auth"
	"github.com/relayhq/chat-api/authapi"
	"github.com/relayhq/chat-api/cache"
	"github.com/relayhq/chat-api/config"
	"github.com/relayhq/chat-api/server"
	"github.com/relayhq/chat-api/services"
	"github.com/relayhq/chat-api/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg)
	slog.Info("starting chat backend")
	slog.Info("server configured", "host", cfg.Server.Host, "port", cfg.Server.Port, "prefix", cfg.Server.APIPrefix)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("connecting to mongodb")
	s, err := store.Connect(ctx, cfg.Mongo.URL, cfg.Mongo.Database)
	if err != nil {
		slog.Error("failed to connect to mongodb", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		s.Close(closeCtx)
	}()

	c := cache.New(ctx, cfg.Redis.URL)
	defer c.Close()

	tokens := auth.NewTokenManager(
		cfg.Service.ClientID,
		cfg.Service.ClientSecret,
		cfg.Service.TokenURL,
		cfg.Service.Scope,
	)
	defer tokens.Close()

	asClient := authapi.New(cfg.AuthAPI.URL, cfg.AuthAPI.ServiceToken, cfg.AuthAPI.Timeout, tokens)

	validator := auth.NewValidator(cfg.JWT.SecretKey, cfg.JWT.Algorithm)
	breaker := auth.NewBreaker(c, cfg.Breaker.Threshold, cfg.Breaker.CoolDown, cfg.Breaker.HalfOpenMaxCalls)
	resolver := auth.NewResolver(c, asClient, breaker, auth.CacheTTLs{
		Read:   cfg.AuthCache.TTLRead,
		Write:  cfg.AuthCache.TTLWrite,
		Admin:  cfg.AuthCache.TTLAdmin,
		Denied: cfg.AuthCache.TTLDenied,
	}, cfg.AuthCache.Enabled, cfg.AuthFailOpen)

	hub := server.NewHub()
	chatSvc := services.NewChatService(s, hub)

	srv := server.NewServer(cfg, s, c, validator, resolver, chatSvc, hub)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "host", cfg.Server.Host, "port", cfg.Server.Port)
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		slog.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)

		hub.ShutdownAll()

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		slog.Info("server stopped")
	}
}

func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	switch strings.ToUpper(cfg.Log.Level) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
