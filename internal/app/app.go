package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisclients "github.com/fredpottier/factgov/internal/clients/redis"
	factgovhttp "github.com/fredpottier/factgov/internal/http"
	httpH "github.com/fredpottier/factgov/internal/http/handlers"
	httpMW "github.com/fredpottier/factgov/internal/http/middleware"
	"github.com/fredpottier/factgov/internal/observability"
	"github.com/fredpottier/factgov/internal/platform/logger"
	"github.com/fredpottier/factgov/internal/platform/neo4jdb"
	"github.com/fredpottier/factgov/internal/services"
	"github.com/fredpottier/factgov/internal/store"
)

type App struct {
	Log    *logger.Logger
	Config Config
	Server *factgovhttp.Server

	neo4jClient  *neo4jdb.Client
	redisKeyLock *redisclients.KeyLock
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "factgov",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	// Storage: Neo4j when configured, otherwise the in-memory backend for
	// driverless local runs.
	var (
		facts       store.FactStore
		neo4jClient *neo4jdb.Client
	)
	if cfg.Neo4jURI != "" {
		neo4jClient, err = neo4jdb.New(neo4jdb.Config{
			URI:            cfg.Neo4jURI,
			User:           cfg.Neo4jUser,
			Password:       cfg.Neo4jPassword,
			Database:       cfg.Neo4jDatabase,
			TimeoutSeconds: cfg.Neo4jTimeout,
			MaxPoolSize:    cfg.Neo4jPoolSize,
		}, log)
		if err != nil {
			return nil, err
		}
		facts = store.NewNeo4jStore(neo4jClient, log)
	} else {
		log.Warn("NEO4J_URI not set, using in-memory fact store")
		facts = store.NewMemoryStore()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := facts.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	// Propose serialization per conflict key: Redis lease across replicas,
	// in-process lock for single-instance runs.
	var (
		keyLock      services.KeyLocker
		redisKeyLock *redisclients.KeyLock
	)
	if cfg.RedisAddr != "" {
		redisKeyLock, err = redisclients.NewKeyLock(cfg.RedisAddr, log)
		if err != nil {
			return nil, err
		}
		keyLock = redisKeyLock
	} else {
		keyLock = services.NewLocalKeyLock()
	}

	governance := services.NewGovernanceService(log, facts, keyLock, cfg.Tolerance)
	queries := services.NewQueryService(log, facts)

	server := factgovhttp.NewServer(factgovhttp.RouterConfig{
		Log:            log,
		AuthMiddleware: httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey),
		CORSOrigins:    cfg.CORSOrigins,
		ServiceName:    "factgov",
		HealthHandler:  httpH.NewHealthHandler(),
		FactHandler:    httpH.NewFactHandler(log, governance, queries),
		QueryHandler:   httpH.NewQueryHandler(log, queries),
	})

	return &App{
		Log:          log,
		Config:       cfg,
		Server:       server,
		neo4jClient:  neo4jClient,
		redisKeyLock: redisKeyLock,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves until SIGINT/SIGTERM, then drains in-flight requests and
// closes clients.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("server listening", "port", a.Config.Port)
		errCh <- a.Server.Run(":" + a.Config.Port)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.close()
		return err
	case sig := <-stop:
		a.Log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(ctx); err != nil {
		a.Log.Warn("server shutdown failed", "error", err)
	}
	a.close()
	return nil
}

func (a *App) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.neo4jClient != nil {
		if err := a.neo4jClient.Close(ctx); err != nil {
			a.Log.Warn("neo4j close failed", "error", err)
		}
	}
	if a.redisKeyLock != nil {
		if err := a.redisKeyLock.Close(); err != nil {
			a.Log.Warn("redis close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}
