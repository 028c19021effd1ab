package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"telloom/api/internal/app"
	"telloom/api/internal/attachments"
	"telloom/api/internal/config"
	"telloom/api/internal/email"
	"telloom/api/internal/export"
	"telloom/api/internal/jobs"
	"telloom/api/internal/logger"
	"telloom/api/internal/metrics"
	"telloom/api/internal/realtime"
	"telloom/api/internal/search"
	"telloom/api/internal/session"
	"telloom/api/internal/store"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	dataStore := store.NewPostgresStore(db)
	opts := []app.Option{
		app.WithMetrics(metrics.New()),
		app.WithExporter(export.NewService()),
		app.WithMailer(email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			Timeout:  cfg.EmailTimeout,
		})),
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
	}
	searchService := search.NewService(meiliClient, pgfts, log)
	defer searchService.Close()
	opts = append(opts, app.WithSearch(searchService))

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisStore.Close()
		log.Info("using redis for refresh sessions and realtime notifications")
		opts = append(opts,
			app.WithSessions(redisStore),
			app.WithPublisher(realtime.NewPublisher(redisStore.Client(), realtime.DefaultChannel)),
		)
	} else {
		log.Info("using postgres for refresh sessions")
	}

	presigner, err := attachments.NewPresigner(attachments.Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
	})
	if err != nil {
		log.Fatal("object storage setup failed", zap.Error(err))
	}
	if presigner != nil {
		opts = append(opts, app.WithPresigner(presigner))
	}

	service := app.New(cfg, dataStore, log, opts...)
	expiryDone := jobs.StartInvitationExpiryJob(ctx, cfg.ExpiryInterval, 30*time.Second, service, log)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("telloom api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}
	<-expiryDone
}
