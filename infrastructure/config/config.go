package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// MaxCacheTTL is the hard ceiling on result-cache entry lifetime.
const MaxCacheTTL = 5 * time.Minute

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string
	LogLevel      string

	// Engine routing
	DefaultEngine string

	// Neo4j (native Cypher store)
	Neo4jURI      string
	Neo4jUsername string
	Neo4jPassword string
	Neo4jDatabase string

	// Memgraph (in-memory Cypher store)
	MemgraphURI      string
	MemgraphUsername string
	MemgraphPassword string

	// PostgreSQL (relational store)
	PostgresDSN          string
	PostgresMaxOpenConns int
	PostgresMaxIdleConns int

	// DynamoDB (document-graph store)
	AWSRegion     string
	DynamoDBTable string

	// Result cache
	CacheTTL        time.Duration
	CacheMaxEntries int

	// Write request body ceiling in bytes
	MaxBodyBytes int64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DefaultEngine: getEnv("DEFAULT_ENGINE", "neo4j"),

		Neo4jURI:      getEnv("NEO4J_URI", ""),
		Neo4jUsername: getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", ""),
		Neo4jDatabase: getEnv("NEO4J_DATABASE", "neo4j"),

		MemgraphURI:      getEnv("MEMGRAPH_URI", ""),
		MemgraphUsername: getEnv("MEMGRAPH_USERNAME", ""),
		MemgraphPassword: getEnv("MEMGRAPH_PASSWORD", ""),

		PostgresDSN:          getEnv("POSTGRES_DSN", ""),
		PostgresMaxOpenConns: getEnvInt("POSTGRES_MAX_OPEN_CONNS", 25),
		PostgresMaxIdleConns: getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),

		AWSRegion:     getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable: getEnv("DYNAMODB_TABLE", ""),

		CacheTTL:        time.Duration(getEnvInt("CACHE_TTL_SECONDS", 300)) * time.Second,
		CacheMaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 1024),

		MaxBodyBytes: int64(getEnvInt("MAX_BODY_BYTES", 64<<20)),
	}

	// The cache contract caps entry lifetime at five minutes.
	if cfg.CacheTTL > MaxCacheTTL || cfg.CacheTTL <= 0 {
		cfg.CacheTTL = MaxCacheTTL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.DefaultEngine == "" {
		return fmt.Errorf("DEFAULT_ENGINE must not be empty")
	}
	if !c.EngineConfigured(c.DefaultEngine) {
		return fmt.Errorf("default engine %q has no connection configured", c.DefaultEngine)
	}
	if c.MaxBodyBytes < 50<<20 {
		// The seed graphs run to 20k nodes; anything below 50 MiB rejects
		// legitimate writes.
		return fmt.Errorf("MAX_BODY_BYTES must be at least %d", 50<<20)
	}
	return nil
}

// EngineConfigured reports whether the named engine has enough
// configuration to be constructed. Unconfigured engines never appear in
// /api/engines.
func (c *Config) EngineConfigured(name string) bool {
	switch name {
	case "neo4j":
		return c.Neo4jURI != ""
	case "memgraph":
		return c.MemgraphURI != ""
	case "postgres":
		return c.PostgresDSN != ""
	case "dynamodb":
		return c.DynamoDBTable != ""
	default:
		return false
	}
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
