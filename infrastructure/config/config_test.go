package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("NEO4J_URI", "neo4j://localhost:7687")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, "neo4j", cfg.DefaultEngine)
	assert.Equal(t, MaxCacheTTL, cfg.CacheTTL)
	assert.Equal(t, int64(64<<20), cfg.MaxBodyBytes)
}

func TestCacheTTLClamp(t *testing.T) {
	t.Setenv("NEO4J_URI", "neo4j://localhost:7687")
	t.Setenv("CACHE_TTL_SECONDS", "900")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, MaxCacheTTL, cfg.CacheTTL)

	t.Setenv("CACHE_TTL_SECONDS", "30")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
}

func TestValidateRejectsUnconfiguredDefaultEngine(t *testing.T) {
	t.Setenv("DEFAULT_ENGINE", "postgres")
	// No POSTGRES_DSN: a default engine that cannot be constructed would
	// turn every data request into a 503, so boot must fail instead.
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestEngineConfigured(t *testing.T) {
	cfg := &Config{Neo4jURI: "neo4j://x", DynamoDBTable: "graphs"}

	assert.True(t, cfg.EngineConfigured("neo4j"))
	assert.True(t, cfg.EngineConfigured("dynamodb"))
	assert.False(t, cfg.EngineConfigured("memgraph"))
	assert.False(t, cfg.EngineConfigured("postgres"))
	assert.False(t, cfg.EngineConfigured("falkordb"))
}

func TestBodyCeilingFloor(t *testing.T) {
	t.Setenv("NEO4J_URI", "neo4j://localhost:7687")
	t.Setenv("MAX_BODY_BYTES", "1024")

	_, err := LoadConfig()
	assert.Error(t, err)
}
