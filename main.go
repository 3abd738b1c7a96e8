package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/servicelens-inc/servicelens-engine/pkg/config"
	"github.com/servicelens-inc/servicelens-engine/pkg/database"
	"github.com/servicelens-inc/servicelens-engine/pkg/handlers"
	"github.com/servicelens-inc/servicelens-engine/pkg/intent"
	"github.com/servicelens-inc/servicelens-engine/pkg/llm"
	"github.com/servicelens-inc/servicelens-engine/pkg/logging"
	"github.com/servicelens-inc/servicelens-engine/pkg/pipeline"
	"github.com/servicelens-inc/servicelens-engine/pkg/planner"
	"github.com/servicelens-inc/servicelens-engine/pkg/registry"
	"github.com/servicelens-inc/servicelens-engine/pkg/router"
	"github.com/servicelens-inc/servicelens-engine/pkg/session"
	enginesql "github.com/servicelens-inc/servicelens-engine/pkg/sql"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model))

	// The mode table, view table, and template registry must be total
	// before a single question is accepted.
	if err := enginesql.CheckRegistry(); err != nil {
		logger.Fatal("SQL template registry check failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open database for migrations", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = migrationDB.Close()

	db, err := database.NewConnection(ctx, &database.PoolConfig{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer func() { _ = redisClient.Close() }()

	llmClient, err := llm.NewFromConfig(&cfg.LLM, logger)
	if err != nil {
		logger.Fatal("Failed to create LLM client", zap.Error(err))
	}

	rt, err := router.New(router.Config{
		StrictSwitchConfirmation: cfg.Pipeline.StrictSwitchConfirmation,
		TopNLimit:                cfg.Pipeline.TopNLimit,
		MaxRows:                  cfg.Pipeline.MaxRows,
	}, logger)
	if err != nil {
		logger.Fatal("Mode routing table check failed", zap.Error(err))
	}

	sessions := session.NewManager(
		session.NewRedisStore(redisClient, cfg.Pipeline.SessionTTL(), logger), logger)

	p := pipeline.New(
		intent.NewNormalizer(llmClient, cfg.LLM.Timeout(), logger),
		registry.NewResolver(registry.NewRepository(db), cfg.Pipeline.MatchThreshold, cfg.Pipeline.MaxCandidates, logger),
		planner.New(logger),
		rt,
		enginesql.NewSynthesizer(logger),
		enginesql.NewValidator(cfg.Pipeline.MaxRows, logger),
		pipeline.NewExecutor(db, logger),
		sessions,
		pipeline.NewInsightGenerator(llmClient, cfg.LLM.Timeout(), logger),
		logger,
	)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewAskHandler(p, logger).RegisterRoutes(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("starting servicelens-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
