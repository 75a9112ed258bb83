// Package di wires configuration, logging, the storage engines, the result
// cache and the application service into one container consumed by cmd/api.
package di

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"graphserver/application/ports"
	"graphserver/application/registry"
	"graphserver/application/services"
	"graphserver/infrastructure/cache"
	"graphserver/infrastructure/config"
	"graphserver/infrastructure/persistence/dynamo"
	"graphserver/infrastructure/persistence/neo4j"
	"graphserver/infrastructure/persistence/postgres"
)

// Engines that fail their boot-time ping are skipped, not retried; the
// timeout keeps a dead endpoint from stalling startup.
const bootPingTimeout = 10 * time.Second

// Container holds every long-lived component of the service.
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	Registry     *registry.Registry
	Cache        *cache.ResultCache
	GraphService *services.GraphService

	engines map[string]ports.Engine
}

// NewContainer builds the full dependency graph. Every configured engine is
// constructed and pinged; unreachable secondary engines are dropped with a
// warning, while an unreachable default engine fails boot because the
// service could not answer a single data request.
func NewContainer(ctx context.Context) (*Container, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	engines, err := provideEngines(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	reg, err := registry.New(engines, cfg.DefaultEngine)
	if err != nil {
		closeEngines(ctx, engines, logger)
		return nil, fmt.Errorf("build engine registry: %w", err)
	}

	resultCache := cache.New(cache.Config{
		TTL:        cfg.CacheTTL,
		MaxEntries: cfg.CacheMaxEntries,
	}, logger)

	return &Container{
		Config:       cfg,
		Logger:       logger,
		Registry:     reg,
		Cache:        resultCache,
		GraphService: services.NewGraphService(reg, resultCache, logger),
		engines:      engines,
	}, nil
}

// Shutdown closes every engine and flushes the logger.
func (c *Container) Shutdown(ctx context.Context) {
	closeEngines(ctx, c.engines, c.Logger)
	_ = c.Logger.Sync()
}

// ProvideLogger creates the zap logger for the configured environment.
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zapCfg.Build()
}

// provideEngines constructs one engine per configured back-end.
func provideEngines(ctx context.Context, cfg *config.Config, logger *zap.Logger) (map[string]ports.Engine, error) {
	engines := make(map[string]ports.Engine)

	reject := func(name string, err error) error {
		if name == cfg.DefaultEngine {
			closeEngines(ctx, engines, logger)
			return fmt.Errorf("default engine %q failed to start: %w", name, err)
		}
		logger.Warn("engine unreachable, skipping", zap.String("engine", name), zap.Error(err))
		return nil
	}

	admit := func(name string, engine ports.Engine, err error) error {
		if err != nil {
			return reject(name, err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, bootPingTimeout)
		err = engine.Ping(pingCtx)
		cancel()
		if err != nil {
			_ = engine.Close(ctx)
			return reject(name, err)
		}
		engines[name] = engine
		logger.Info("engine registered", zap.String("engine", name))
		return nil
	}

	if cfg.EngineConfigured("neo4j") {
		engine, err := neo4j.New(neo4j.Options{
			Name:            "neo4j",
			URI:             cfg.Neo4jURI,
			Username:        cfg.Neo4jUsername,
			Password:        cfg.Neo4jPassword,
			DefaultDatabase: cfg.Neo4jDatabase,
			MultiDatabase:   true,
		})
		if err := admit("neo4j", engine, err); err != nil {
			return nil, err
		}
	}

	if cfg.EngineConfigured("memgraph") {
		engine, err := neo4j.New(neo4j.Options{
			Name:            "memgraph",
			URI:             cfg.MemgraphURI,
			Username:        cfg.MemgraphUsername,
			Password:        cfg.MemgraphPassword,
			DefaultDatabase: "memgraph",
			MultiDatabase:   false,
		})
		if err := admit("memgraph", engine, err); err != nil {
			return nil, err
		}
	}

	if cfg.EngineConfigured("postgres") {
		engine, err := postgres.New(ctx, postgres.Options{
			DSN:          cfg.PostgresDSN,
			MaxOpenConns: cfg.PostgresMaxOpenConns,
			MaxIdleConns: cfg.PostgresMaxIdleConns,
		})
		if err := admit("postgres", engine, err); err != nil {
			return nil, err
		}
	}

	if cfg.EngineConfigured("dynamodb") {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		var engine ports.Engine
		if err == nil {
			engine = dynamo.New(awsdynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable, logger)
		}
		if err := admit("dynamodb", engine, err); err != nil {
			return nil, err
		}
	}

	if len(engines) == 0 {
		return nil, fmt.Errorf("no storage engine is configured")
	}
	return engines, nil
}

func closeEngines(ctx context.Context, engines map[string]ports.Engine, logger *zap.Logger) {
	for name, engine := range engines {
		if err := engine.Close(ctx); err != nil {
			logger.Warn("engine close failed", zap.String("engine", name), zap.Error(err))
		}
	}
}
