package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, CASEGATE_CONFIG env, ./config.yaml, /etc/casegate/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. CASEGATE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/casegate/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("CASEGATE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/casegate/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps CASEGATE_* environment variables to config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CASEGATE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CASEGATE_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("CASEGATE_DSN"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("CASEGATE_MIGRATE_ON_START"); v != "" {
		cfg.Storage.Postgres.MigrateOnStart = v == "true" || v == "1"
	}
	if v := os.Getenv("CASEGATE_SESSION_COOKIE"); v != "" {
		cfg.Auth.SessionCookie = v
	}
	if v := os.Getenv("CASEGATE_API_KEY_HEADER"); v != "" {
		cfg.Auth.APIKeyHeader = v
	}
	if v := os.Getenv("CASEGATE_FEDERATED_ENABLED"); v != "" {
		cfg.Auth.Federated.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CASEGATE_FEDERATED_SECRET"); v != "" {
		cfg.Auth.Federated.Secret = v
	}
	if v := os.Getenv("CASEGATE_FEDERATED_COOKIE"); v != "" {
		cfg.Auth.Federated.Cookie = v
	}
	if v := os.Getenv("CASEGATE_RATE_LIMIT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RateLimit.Window = d
		}
	}
	if v := os.Getenv("CASEGATE_RATE_LIMIT_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.DefaultBudget = n
		}
	}
}

// resolveFileReferences loads secrets referenced by _file fields.
// Explicit values take priority over file references.
func resolveFileReferences(cfg *Config) error {
	if cfg.Storage.Postgres.DSN == "" && cfg.Storage.Postgres.DSNFile != "" {
		v, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = v
	}

	if cfg.Auth.Federated.Secret == "" && cfg.Auth.Federated.SecretFile != "" {
		v, err := readSecretFile(cfg.Auth.Federated.SecretFile)
		if err != nil {
			return fmt.Errorf("auth.federated.secret_file: %w", err)
		}
		cfg.Auth.Federated.Secret = v
	}

	return nil
}

// readSecretFile reads a secret value from a file, trimming whitespace.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
