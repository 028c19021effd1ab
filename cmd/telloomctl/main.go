package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"telloom/api/internal/app"
	"telloom/api/internal/cli"
	"telloom/api/internal/config"
	"telloom/api/internal/logger"
	"telloom/api/internal/search"
	"telloom/api/internal/store"
)

type backend struct {
	cfg     config.Config
	db      *sql.DB
	search  *search.Service
	service *app.Service
}

func open(ctx context.Context) (cli.Backend, error) {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
	}
	searchService := search.NewService(meiliClient, search.NewPgFTS(db), log)

	service := app.New(cfg, store.NewPostgresStore(db), log.With(zap.String("component", "telloomctl")), app.WithSearch(searchService))
	return &backend{cfg: cfg, db: db, search: searchService, service: service}, nil
}

func (b *backend) Migrate(ctx context.Context) error {
	return store.ApplyMigrations(ctx, b.db, b.cfg.MigrationsDir)
}

func (b *backend) ExpireInvitations(ctx context.Context) (int, error) {
	return b.service.ExpireInvitations(ctx)
}

func (b *backend) ReindexResponses(ctx context.Context, sharerID string) (int, error) {
	return b.service.ReindexResponses(ctx, sharerID)
}

func (b *backend) Close() error {
	b.search.Close()
	return b.db.Close()
}

func main() {
	if err := cli.NewRootCommand(open).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
