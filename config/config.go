package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Auth providers understood by the server.
const (
	AuthProviderJWT      = "jwt"
	AuthProviderFirebase = "firebase"
)

// Config holds all configuration for the application
type Config struct {
	Environment Environment

	// Server configuration
	ServerPort string
	ServerHost string

	// Database configuration
	DBDriver   string // postgres or sqlite
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	// Redis configuration
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisURL      string

	// Identity
	AuthProvider            string
	JWTSecret               string
	JWTTTL                  time.Duration
	FirebaseCredentialsFile string
	FirebaseCredentialsJSON string

	// External collaborators
	GeminiAPIKey     string
	GeminiModel      string
	GeminiAPIURL     string
	OpenFoodFactsURL string

	// Scan image storage, optional
	S3BucketName string
	AWSRegion    string

	// Background jobs
	ReconcileSchedule string
	ReconcileDays     int

	// AI endpoints are rate limited per user
	AIRateLimit  int
	AIRateWindow time.Duration

	CORSOrigins []string
	LogLevel    string
}

// LoadConfig creates a new Config instance with values from environment variables or secrets
func LoadConfig() (*Config, error) {
	env := GetEnvironment()
	if env == Development || env == Test {
		// .env is optional; the process environment wins over it
		_ = godotenv.Load()
	}

	cfg := &Config{Environment: env}
	loadValues(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadValues(cfg *Config) {
	cfg.ServerPort = lookup("SERVER_PORT", "server_port", "8080")
	cfg.ServerHost = lookup("SERVER_HOST", "server_host", "0.0.0.0")

	cfg.DBDriver = strings.ToLower(lookup("DB_DRIVER", "db_driver", "postgres"))
	cfg.DBHost = lookup("DB_HOST", "db_host", "")
	cfg.DBPort = lookup("DB_PORT", "db_port", "5432")
	cfg.DBUser = lookup("DB_USER", "db_user", "")
	cfg.DBPassword = lookup("DB_PASSWORD", "db_password", "")
	cfg.DBName = lookup("DB_NAME", "db_name", "byefat")
	cfg.DBSSLMode = lookup("DB_SSL_MODE", "db_ssl_mode", "disable")
	cfg.SQLitePath = lookup("SQLITE_PATH", "sqlite_path", "byefat.db")

	cfg.RedisHost = lookup("REDIS_HOST", "redis_host", "")
	cfg.RedisPort = lookup("REDIS_PORT", "redis_port", "6379")
	cfg.RedisPassword = lookup("REDIS_PASSWORD", "redis_password", "")
	cfg.RedisDB = lookupInt("REDIS_DB", "redis_db", 0)
	cfg.RedisURL = lookup("REDIS_URL", "redis_url", "")

	cfg.AuthProvider = strings.ToLower(lookup("AUTH_PROVIDER", "auth_provider", AuthProviderJWT))
	cfg.JWTSecret = lookup("JWT_SECRET", "jwt_secret", "")
	cfg.JWTTTL = lookupDuration("JWT_TTL", "jwt_ttl", 24*time.Hour)
	cfg.FirebaseCredentialsFile = lookup("FIREBASE_CREDENTIALS_FILE", "firebase_credentials_file", "")
	cfg.FirebaseCredentialsJSON = lookup("FIREBASE_SERVICE_ACCOUNT", "firebase_service_account", "")

	cfg.GeminiAPIKey = lookup("GEMINI_API_KEY", "gemini_api_key", "")
	cfg.GeminiModel = lookup("GEMINI_MODEL", "gemini_model", "gemini-2.0-flash")
	cfg.GeminiAPIURL = lookup("GEMINI_API_URL", "gemini_api_url", "https://generativelanguage.googleapis.com/v1beta")
	cfg.OpenFoodFactsURL = lookup("OPENFOODFACTS_URL", "openfoodfacts_url", "https://world.openfoodfacts.org")

	cfg.S3BucketName = lookup("S3_BUCKET_NAME", "s3_bucket_name", "")
	cfg.AWSRegion = lookup("AWS_REGION", "aws_region", "")

	cfg.ReconcileSchedule = lookup("RECONCILE_SCHEDULE", "reconcile_schedule", "@every 1h")
	cfg.ReconcileDays = lookupInt("RECONCILE_DAYS", "reconcile_days", 7)

	cfg.AIRateLimit = lookupInt("AI_RATE_LIMIT", "ai_rate_limit", 20)
	cfg.AIRateWindow = lookupDuration("AI_RATE_WINDOW", "ai_rate_window", time.Hour)

	cfg.LogLevel = lookup("LOG_LEVEL", "log_level", "")

	if origins := lookup("CORS_ORIGINS", "cors_origins", ""); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:9002"}
	}
}

// Addr returns the listen address for the HTTP server
func (c *Config) Addr() string {
	return c.ServerHost + ":" + c.ServerPort
}

// RedisEnabled reports whether a redis endpoint was configured
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != "" || c.RedisHost != ""
}

// lookup reads an environment variable, then the Docker secret of the same
// purpose, then falls back to def.
func lookup(envVar, secret, def string) string {
	if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
		return v
	}
	if v := readSecret(secret); v != "" {
		return v
	}
	return def
}

func lookupInt(envVar, secret string, def int) int {
	raw := lookup(envVar, secret, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func lookupDuration(envVar, secret string, def time.Duration) time.Duration {
	raw := lookup(envVar, secret, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

// readSecret reads a Docker secret from the secrets directory
func readSecret(name string) string {
	secretsDir := os.Getenv("SECRETS_DIR")
	if secretsDir == "" {
		secretsDir = "/run/secrets"
	}
	data, err := os.ReadFile(filepath.Join(secretsDir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
