package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DB_DSN", "user:pass@tcp(localhost:3306)/test")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CLOUDFLARE_API_TOKEN", "token")
}

func TestLoad(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.DB.Driver)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 5, cfg.DNSSync.MaxAttempts)
	assert.Equal(t, 30, cfg.DNSSync.BaseDelaySec)
	assert.Equal(t, time.Second, cfg.DNSSync.Interval())
	assert.Equal(t, 30, cfg.RateLimit.Limit)
	assert.Equal(t, 60, cfg.RateLimit.WindowSec)
}

func TestLoad_MissingDSN(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CLOUDFLARE_API_TOKEN", "token")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_MissingCloudflareToken(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CLOUDFLARE_API_TOKEN", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REDIS_ADDR", "redis.example.com:6379")
	t.Setenv("REDIS_DB", "5")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DNS_SYNC_INTERVAL_MS", "250")
	t.Setenv("CLOUDFLARE_ZONES", "example.com=zone-a, example.net.=zone-b,broken")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, 5, cfg.Redis.DB)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 250*time.Millisecond, cfg.DNSSync.Interval())
	assert.Equal(t, map[string]string{"example.com": "zone-a", "example.net": "zone-b"}, cfg.Cloudflare.Zones)
}

func TestLoadFromINI(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CLOUDFLARE_API_TOKEN", "")
	t.Setenv("HTTP_ADDR", ":7070") // env wins over INI

	content := `
[db]
driver = sqlite
dsn = ./subdns.db

[jwt]
secret = from-ini

[http]
addr = :6060

[dns_sync]
max_attempts = 3
lock_enabled = false

[cloudflare]
api_token = cf-token
zones = example.com=zone-a
`
	path := filepath.Join(t.TempDir(), "subdns.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromINI(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "./subdns.db", cfg.DB.DSN)
	assert.Equal(t, "from-ini", cfg.JWT.Secret)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, 3, cfg.DNSSync.MaxAttempts)
	assert.False(t, cfg.DNSSync.LockEnabled)
	assert.Equal(t, "zone-a", cfg.Cloudflare.Zones["example.com"])
}

func TestValidate_JobTimeoutBounds(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "defaults", env: nil},
		{name: "zero timeout", env: map[string]string{"DNS_SYNC_JOB_TIMEOUT_SEC": "0"}, wantErr: "DNS_SYNC_JOB_TIMEOUT_SEC"},
		{name: "timeout reaches stale cutoff", env: map[string]string{"DNS_SYNC_JOB_TIMEOUT_SEC": "600"}, wantErr: "DNS_SYNC_STALE_AFTER_SEC"},
		{name: "timeout outlives lock", env: map[string]string{"DNS_SYNC_JOB_TIMEOUT_SEC": "90"}, wantErr: "DNS_SYNC_LOCK_EXPIRY_SEC"},
		{name: "timeout outlives unused lock", env: map[string]string{"DNS_SYNC_JOB_TIMEOUT_SEC": "90", "DNS_SYNC_LOCK_ENABLED": "0"}},
		{name: "longer lock", env: map[string]string{"DNS_SYNC_JOB_TIMEOUT_SEC": "90", "DNS_SYNC_LOCK_EXPIRY_SEC": "120"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
