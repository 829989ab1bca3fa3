package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"

	"github.com/matchpulse/matchpulse/external/sportsdata"
	"github.com/matchpulse/matchpulse/internal/config"
	"github.com/matchpulse/matchpulse/internal/domain/history"
	"github.com/matchpulse/matchpulse/internal/infrastructure/quota"
	"github.com/matchpulse/matchpulse/internal/infrastructure/repository/postgres"
	"github.com/matchpulse/matchpulse/internal/infrastructure/sharedstore"
	"github.com/matchpulse/matchpulse/internal/interfaces/httpapi"
	"github.com/matchpulse/matchpulse/internal/platform/logging"
	"github.com/matchpulse/matchpulse/internal/platform/resilience"
	"github.com/matchpulse/matchpulse/internal/usecase"
)

// App bundles the HTTP server with the pieces that need an orderly shutdown.
type App struct {
	Server  *http.Server
	Refresh *usecase.RefreshService

	db *sqlx.DB
}

func New(cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	store := sharedstore.NewMemory()
	quotaCounter := quota.NewCounter(store)

	providerClient := sportsdata.NewClient(sportsdata.ClientConfig{
		BaseURL:         cfg.SportsDataBaseURL,
		APIKey:          cfg.SportsDataAPIKey,
		Timeout:         cfg.SportsDataTimeout,
		MaxRetries:      cfg.SportsDataMaxRetries,
		BatchSize:       cfg.SportsDataBatchSize,
		InterBatchDelay: cfg.SportsDataInterBatchDelay,
		Logger:          logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.SportsDataCircuitEnabled,
			FailureThreshold: cfg.SportsDataCircuitFailureCount,
			OpenTimeout:      cfg.SportsDataCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.SportsDataCircuitHalfOpenMaxReq,
		},
	})

	// The database is optional: without it the service still serves live
	// snapshots, it just keeps no finished-match archive.
	var (
		db            *sqlx.DB
		recorder      history.Recorder
		historyLister httpapi.HistoryLister
	)
	if cfg.DBURL != "" {
		var err error
		db, err = openDatabase(cfg)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		repo := postgres.NewHistoryRepository(db)
		recorder = repo
		historyLister = repo
	} else {
		logger.Warn("match history disabled", "reason", "DB_URL empty")
	}

	refreshSvc := usecase.NewRefreshService(
		providerClient,
		store,
		quotaCounter,
		recorder,
		logger,
		usecase.RefreshConfig{
			FreshTTL:        cfg.FreshTTL,
			StaleTTL:        cfg.StaleTTL,
			LockTTL:         cfg.LockTTL,
			LockRetryWait:   cfg.LockRetryWait,
			RefreshTimeout:  cfg.RefreshTimeout,
			SnapshotTTL:     cfg.SnapshotTTL,
			PrematchOddsCap: cfg.PrematchOddsCap,
		},
	)

	handler := httpapi.NewHandler(refreshSvc, quotaCounter, historyLister, logger)
	router := httpapi.NewRouter(handler, logger, cfg.CORSAllowedOrigins, cfg.InternalJobToken)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &App{
		Server:  server,
		Refresh: refreshSvc,
		db:      db,
	}, nil
}

func openDatabase(cfg config.Config) (*sqlx.DB, error) {
	dsn := normalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary)

	db, err := otelsqlx.Connect("postgres", dsn,
		otelsql.WithDBSystem("postgresql"),
		otelsql.WithDBName(dbNameFromURL(cfg.DBURL)),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return db, nil
}

// Close waits for background refreshes and releases the database. The HTTP
// server itself is shut down by the caller before Close.
func (a *App) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.Refresh.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
