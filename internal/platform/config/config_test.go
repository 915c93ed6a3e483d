package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HAVEN_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "PBKDF2_SHA256", cfg.Crypto.HashAlgorithm)
	assert.Equal(t, devSigningKey, cfg.Auth.JWTSigningKey)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.True(t, cfg.IsDev())
}

func TestLoadKafkaBrokers(t *testing.T) {
	t.Setenv("HAVEN_ENV", "development")
	t.Setenv("HAVEN_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestLoadRejectsUnsupportedHashAlgorithm(t *testing.T) {
	t.Setenv("HAVEN_ENV", "development")
	t.Setenv("HAVEN_HASH_ALGORITHM", "BCRYPT")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported hash algorithm")
}

func TestLoadProductionRequiresSecrets(t *testing.T) {
	t.Setenv("HAVEN_ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HAVEN_JWT_SIGNING_KEY")
	assert.Contains(t, err.Error(), "HAVEN_KEYRING")
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("HAVEN_SHUTDOWN_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}
