package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	switch c.Storage.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	if c.Auth.SessionCookie == "" {
		errs = append(errs, fmt.Errorf("auth.session_cookie must not be empty"))
	}

	if c.Auth.Federated.Enabled {
		if c.Auth.Federated.Secret == "" && c.Auth.Federated.SecretFile == "" {
			errs = append(errs, fmt.Errorf("auth.federated.secret or auth.federated.secret_file is required when federated auth is enabled"))
		}
	}

	if c.RateLimit.DefaultBudget < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.default_budget must be >= 0, got %d", c.RateLimit.DefaultBudget))
	}

	return errors.Join(errs...)
}
