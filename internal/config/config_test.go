package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_RequiredFields(t *testing.T) {
	cfg := &Config{JWTSecret: "secret", InternalAPIToken: "token"}
	assert.Error(t, cfg.Validate(), "missing PORT should fail")

	cfg = &Config{Port: "8460", InternalAPIToken: "token"}
	assert.Error(t, cfg.Validate(), "missing JWT_SECRET should fail")

	cfg = &Config{Port: "8460", JWTSecret: "secret"}
	assert.Error(t, cfg.Validate(), "missing INTERNAL_API_TOKEN should fail")

	cfg = &Config{Port: "8460", JWTSecret: "secret", InternalAPIToken: "token"}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ProductionHardening(t *testing.T) {
	base := Config{
		Port:             "8460",
		Env:              "production",
		DBPassword:       "a-real-password",
		JWTSecret:        "0123456789abcdef0123456789abcdef",
		InternalAPIToken: "0123456789abcdef0123456789abcdef",
	}

	t.Run("default JWT secret rejected", func(t *testing.T) {
		cfg := base
		cfg.JWTSecret = "your-secret-key-change-in-production"
		assert.Error(t, cfg.Validate())
	})

	t.Run("short internal token rejected", func(t *testing.T) {
		cfg := base
		cfg.InternalAPIToken = "short"
		assert.Error(t, cfg.Validate())
	})

	t.Run("default DB password rejected", func(t *testing.T) {
		cfg := base
		cfg.DBPassword = "password"
		assert.Error(t, cfg.Validate())
	})

	t.Run("hardened config accepted", func(t *testing.T) {
		cfg := base
		assert.NoError(t, cfg.Validate())
	})
}

func TestDurationsFallBackToDefaults(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, "5s", cfg.StoreTimeout().String())
	assert.Equal(t, "168h0m0s", cfg.InviteTTL().String())

	cfg.StoreTimeoutMS = 250
	cfg.InviteTTLHours = 24
	assert.Equal(t, "250ms", cfg.StoreTimeout().String())
	assert.Equal(t, "24h0m0s", cfg.InviteTTL().String())
}
