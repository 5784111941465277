package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lumosgraph/backend/internal/ai"
	"github.com/lumosgraph/backend/internal/chat"
	"github.com/lumosgraph/backend/internal/checkpoint"
	"github.com/lumosgraph/backend/internal/config"
	"github.com/lumosgraph/backend/internal/db"
	"github.com/lumosgraph/backend/internal/docs"
	"github.com/lumosgraph/backend/internal/filestore"
	"github.com/lumosgraph/backend/internal/httpapi"
	"github.com/lumosgraph/backend/internal/httpapi/handlers"
	"github.com/lumosgraph/backend/internal/images"
	"github.com/lumosgraph/backend/internal/logger"
	"github.com/lumosgraph/backend/internal/store/rabbitmq"
)

func main() {
	cfg := config.Load()

	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()
	lg = lg.With("app", "server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		lg.Fatal("db connect failed", "err", err)
	}

	var imgCache images.Cache = images.NopCache{}
	if cfg.RedisAddr != "" {
		c, err := images.NewRedisCache(lg, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ImageCacheTTL)
		if err != nil {
			lg.Warn("redis unavailable, image caching disabled", "err", err)
		} else {
			imgCache = c
		}
	}

	var files filestore.Store
	if cfg.S3Bucket != "" {
		s3store, err := filestore.NewS3Store(ctx, lg, cfg.S3Bucket, cfg.S3Prefix, cfg.AWSRegion)
		if err != nil {
			lg.Fatal("file store init failed", "err", err)
		}
		files = s3store
	} else {
		lg.Warn("S3_BUCKET_NAME not set, file uploads disabled")
	}

	jobs, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		lg.Fatal("rabbit connect failed", "err", err)
	}
	defer jobs.Close()

	reg := ai.NewRegistry()
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(
			cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, m,
			cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})

	gateProvider, err := reg.Get(ctx, cfg.AIProvider, "")
	if err != nil {
		lg.Fatal("gate provider init failed", "provider", cfg.AIProvider, "err", err)
	}

	repo := chat.NewRepo(gdb)
	docsRepo := docs.NewRepo(gdb)
	ckpts := checkpoint.NewStore(gdb, lg)
	composer := chat.NewComposer(docsRepo, imgCache, files, lg)
	svc := chat.NewService(
		repo, ckpts, composer,
		reg, chat.NewGate(gateProvider, cfg.GateDomain),
		imgCache, docsRepo, lg,
		chat.ServiceConfig{
			Provider:        cfg.AIProvider,
			Model:           "",
			ContextWindow:   cfg.ChatContextWindowSize,
			GenerateTimeout: cfg.GenerateTimeout,
		})

	h := handlers.NewHandler(cfg, svc, repo, docsRepo, files, jobs, lg)
	router := httpapi.NewRouter(cfg, h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: router,
	}

	go func() {
		lg.Info("server listening", "addr", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("listen failed", "err", err)
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown failed", "err", err)
	}
}
