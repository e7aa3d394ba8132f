package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseOrigins(t *testing.T) {
	assert.Nil(t, parseOrigins(""))
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, parseOrigins(" https://a.test, ,https://b.test "))
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://backend.test/api/")
	t.Setenv("TICK_INTERVAL_MS", "250")
	t.Setenv("JWT_EXPIRY_HOURS", "not-a-number")

	cfg := Load()

	assert.Equal(t, "https://backend.test/api", cfg.BackendURL)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 12*time.Hour, cfg.JWTExpiry)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "login:c-1", CacheKey.CandidateSessionKey("c-1"))
	assert.Equal(t, "candidate:c-1:attempt:meta", CacheKey.AttemptMetaKey("c-1"))
	assert.Equal(t, "candidate:c-1:attempt:answers", CacheKey.AttemptAnswersKey("c-1"))
}
