package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("CI", "")
	t.Setenv("SECRETS_DIR", t.TempDir())
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_PASSWORD", "postgres")
	t.Setenv("DB_NAME", "byefat")
	t.Setenv("DB_SSL_MODE", "disable")
	t.Setenv("AUTH_PROVIDER", "jwt")
	t.Setenv("JWT_SECRET", "test-secret-0123456789")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
}

func TestLoadConfig(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, Test, cfg.Environment)
	assert.Equal(t, "localhost", cfg.DBHost)
	assert.Equal(t, "5432", cfg.DBPort)
	assert.Equal(t, "postgres", cfg.DBUser)
	assert.Equal(t, "byefat", cfg.DBName)
	assert.Equal(t, "test-secret-0123456789", cfg.JWTSecret)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.True(t, cfg.RedisEnabled())
}

func TestLoadConfigDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, "@every 1h", cfg.ReconcileSchedule)
	assert.Equal(t, 7, cfg.ReconcileDays)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, "https://world.openfoodfacts.org", cfg.OpenFoodFactsURL)
	assert.NotEmpty(t, cfg.CORSOrigins)
}

func TestLoadConfigMissingJWTSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_SECRET", "")

	cfg, err := LoadConfig()
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadConfigReadsDockerSecret(t *testing.T) {
	setBaseEnv(t)
	dir := t.TempDir()
	t.Setenv("SECRETS_DIR", dir)
	t.Setenv("JWT_SECRET", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jwt_secret"), []byte("from-secret-file-abcdef\n"), 0o600))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-secret-file-abcdef", cfg.JWTSecret)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.DBDriver = "mysql" },
			wantErr: "DB_DRIVER",
		},
		{
			name: "sqlite rejected in production",
			mutate: func(c *Config) {
				c.Environment = Production
				c.DBDriver = "sqlite"
			},
			wantErr: "sqlite is not allowed",
		},
		{
			name: "firebase without credentials",
			mutate: func(c *Config) {
				c.AuthProvider = AuthProviderFirebase
			},
			wantErr: "FIREBASE_CREDENTIALS_FILE",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.JWTSecret = "short" },
			wantErr: "at least 16",
		},
		{
			name: "production requires redis",
			mutate: func(c *Config) {
				c.Environment = Production
				c.RedisURL = ""
			},
			wantErr: "REDIS_URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Environment:   Test,
				ServerPort:    "8080",
				DBDriver:      "postgres",
				DBHost:        "localhost",
				DBUser:        "postgres",
				DBPassword:    "postgres",
				AuthProvider:  AuthProviderJWT,
				JWTSecret:     "0123456789abcdef",
				RedisURL:      "redis://localhost:6379",
				ReconcileDays: 7,
				AIRateLimit:   20,
			}
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetEnvironment(t *testing.T) {
	t.Setenv("CI", "true")
	assert.Equal(t, CI, GetEnvironment())

	t.Setenv("CI", "")
	t.Setenv("ENV", "production")
	assert.Equal(t, Production, GetEnvironment())
	assert.True(t, GetEnvironment().IsProduction())

	t.Setenv("ENV", "")
	assert.Equal(t, Development, GetEnvironment())
	assert.True(t, GetEnvironment().IsLocal())
}
