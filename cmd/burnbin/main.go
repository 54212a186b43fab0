package main

import (
	"burnbin/cfg"
	"burnbin/metrics"
	"burnbin/svc/api"
	"burnbin/svc/cache"
	"burnbin/svc/db"
	"burnbin/svc/ledger"
	"burnbin/svc/util"
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "-health" {
		os.Exit(healthCheck())
	}

	c, err := cfg.Load()
	if err != nil {
		util.Fatal().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	defer c.Wipe()
	util.InitLog(c.LogLevel, c.Environment == "development")
	util.Info().Str("backend", c.Backend).Msg("starting burnbin")
	metrics.Init()
	if c.TestMode {
		util.Warn().Msg("TEST_MODE enabled: X-Test-Now-Ms overrides the clock")
	}

	store, err := openStore(c)
	if err != nil {
		util.Fatal().Err(err).Str("backend", c.Backend).Msg("failed to initialize store")
		os.Exit(1)
	}
	l := ledger.New(store)

	server, err := api.NewServer(c, l)
	if err != nil {
		l.Close()
		util.Fatal().Err(err).Msg("failed to build server")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	if sq, ok := store.(*db.SQLite); ok {
		g.Go(func() error {
			sq.StartWALMaintenance(gctx)
			return nil
		})
		util.Info().Msg("WAL maintenance worker started")
	}
	g.Go(func() error {
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		util.Info().Msg("shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		util.Error().Err(err).Msg("server stopped with error")
	}
	if err := l.Close(); err != nil {
		util.Error().Err(err).Msg("store close failed")
	}
	util.Info().Msg("shutdown complete")
}

// openStore builds the backend STORE_BACKEND names and checks it answers.
func openStore(c *cfg.Cfg) (ledger.Store, error) {
	var (
		store ledger.Store
		err   error
	)
	switch c.Backend {
	case cfg.BackendRedis:
		store, err = db.NewRedis(c.RedisURL, c)
		if err == nil {
			util.Info().Str("url", util.RedactURL(c.RedisURL)).Msg("redis configured")
		}
	case cfg.BackendSQLite:
		store, err = db.NewSQLiteWithConfig(c.DatabasePath, c.DBMaxOpenConns, c.DBMaxIdleConns, c.DBQueryTimeout)
		if err == nil {
			util.Info().Str("path", c.DatabasePath).Msg("database initialized")
		}
	case cfg.BackendMemory:
		store, err = cache.NewLRU(c.MemoryCapacity)
		if err == nil {
			util.Warn().Int("capacity", c.MemoryCapacity).Msg("memory store is process-local and evicts under pressure")
		}
	default:
		return nil, errors.Errorf("unsupported backend %q", c.Backend)
	}
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		if c.Environment == "production" {
			store.Close()
			return nil, errors.Wrap(err, "store unreachable")
		}
		util.Warn().Err(err).Msg("store unreachable at startup")
	}
	return store, nil
}

func healthCheck() int {
	c, err := cfg.Load()
	if err != nil || cfg.Validate(c) != nil {
		return 1
	}
	util.InitLog("disabled", false)
	store, err := openStore(c)
	if err != nil {
		return 1
	}
	defer store.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		return 1
	}
	return 0
}
