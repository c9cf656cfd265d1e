package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in one pass
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// ValidateConfig checks the configuration for the current environment.
// Credentials never have built-in fallbacks; a missing secret is an error.
func ValidateConfig(cfg *Config) error {
	var errs ValidationErrors

	if cfg.ServerPort == "" {
		errs = append(errs, ValidationError{"SERVER_PORT", "is required"})
	}

	switch cfg.DBDriver {
	case "postgres":
		if cfg.DBHost == "" {
			errs = append(errs, ValidationError{"DB_HOST", "is required for postgres"})
		}
		if cfg.DBUser == "" {
			errs = append(errs, ValidationError{"DB_USER", "is required for postgres"})
		}
		if cfg.DBPassword == "" && cfg.Environment != Development {
			errs = append(errs, ValidationError{"DB_PASSWORD", "is required outside development"})
		}
	case "sqlite":
		if cfg.Environment == Production {
			errs = append(errs, ValidationError{"DB_DRIVER", "sqlite is not allowed in production"})
		}
		if cfg.SQLitePath == "" {
			errs = append(errs, ValidationError{"SQLITE_PATH", "is required for sqlite"})
		}
	default:
		errs = append(errs, ValidationError{"DB_DRIVER", fmt.Sprintf("unknown driver %q", cfg.DBDriver)})
	}

	switch cfg.AuthProvider {
	case AuthProviderJWT:
		if cfg.JWTSecret == "" {
			errs = append(errs, ValidationError{"JWT_SECRET", "is required for jwt auth"})
		} else if len(cfg.JWTSecret) < 16 {
			errs = append(errs, ValidationError{"JWT_SECRET", "must be at least 16 characters"})
		}
	case AuthProviderFirebase:
		if cfg.FirebaseCredentialsFile == "" && cfg.FirebaseCredentialsJSON == "" {
			errs = append(errs, ValidationError{"FIREBASE_CREDENTIALS_FILE", "or FIREBASE_SERVICE_ACCOUNT is required for firebase auth"})
		}
	default:
		errs = append(errs, ValidationError{"AUTH_PROVIDER", fmt.Sprintf("unknown provider %q", cfg.AuthProvider)})
	}

	if cfg.Environment == Production && !cfg.RedisEnabled() {
		errs = append(errs, ValidationError{"REDIS_URL", "is required in production"})
	}
	if cfg.ReconcileDays < 1 {
		errs = append(errs, ValidationError{"RECONCILE_DAYS", "must be positive"})
	}
	if cfg.AIRateLimit < 1 {
		errs = append(errs, ValidationError{"AI_RATE_LIMIT", "must be positive"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
