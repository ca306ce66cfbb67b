package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "KMC", cfg.Identifiers.Prefix)
	assert.Equal(t, "monthly", cfg.Identifiers.Scope)
	assert.Equal(t, 10, cfg.Inventory.LowStockThreshold)
	assert.Equal(t, 3, cfg.Outbox.RetryAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Outbox.ClaimLease)
	assert.Equal(t, 7*24*time.Hour, cfg.Outbox.Retention)
	assert.False(t, cfg.Auth.Enabled)
}

func TestLoadConfigFileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
storage:
  driver: memory
identifiers:
  prefix: ABC
  scope: global
outbox:
  retry_delay: 30s
auth:
  enabled: true
  users:
    - username: reception
      role: clerk
      password_hash: hash
`)
	t.Setenv("EHR_SERVER_PORT", "9090")
	t.Setenv("EHR_JWT_SECRET", "s3cret")
	t.Setenv("EHR_DB_PASSWORD", "pw")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "ABC", cfg.Identifiers.Prefix)
	assert.Equal(t, "global", cfg.Identifiers.Scope)
	assert.Equal(t, 30*time.Second, cfg.Outbox.RetryDelay)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.Equal(t, "pw", cfg.Database.Password)
	require.Len(t, cfg.Auth.Users, 1)
	assert.Equal(t, "reception", cfg.Auth.Users[0].Username)
	assert.Equal(t, "hash", cfg.Auth.Users[0].PasswordHash)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Storage:     StorageConfig{Driver: "postgres"},
			Identifiers: IdentifierConfig{Scope: "monthly"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }, `unknown storage driver "mysql"`},
		{"unknown scope", func(c *Config) { c.Identifiers.Scope = "yearly" }, `unknown identifier scope "yearly"`},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }, "no JWT secret"},
		{"negative threshold", func(c *Config) { c.Inventory.LowStockThreshold = -1 }, "cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5433, User: "ehr", Password: "pw", Name: "kmc", SSLMode: "require"}
	assert.Equal(t, "host=db port=5433 user=ehr password=pw dbname=kmc sslmode=require", c.DSN())
}
