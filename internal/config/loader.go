package config

import (
	"errors"
	"fmt"
	"os"

	"odoomcp/pkg/logging"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file-provided secrets. Deployments
// keep credentials out of the config file by setting these instead.
const (
	EnvOdooURL      = "ODOO_URL"
	EnvOdooDatabase = "ODOO_DATABASE"
	EnvOdooUsername = "ODOO_USERNAME"
	EnvOdooAPIKey   = "ODOO_API_KEY"
)

// LoadConfig loads the gateway configuration from the given YAML file,
// starting from defaults, then applying the file, then environment
// overrides, then validation. A missing file is not an error when the
// environment carries the connection details.
func LoadConfig(path string) (GatewayConfig, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config file at %s, using defaults plus environment", path)
		} else {
			return GatewayConfig{}, fmt.Errorf("error reading config from %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return GatewayConfig{}, fmt.Errorf("error parsing config from %s: %w", path, err)
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", path)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return GatewayConfig{}, err
	}
	return cfg, nil
}

// applyEnvOverrides copies connection secrets from the environment over the
// file values. Environment always wins so an operator can rotate an API key
// without touching the file.
func applyEnvOverrides(cfg *GatewayConfig) {
	if v := os.Getenv(EnvOdooURL); v != "" {
		cfg.OdooURL = v
	}
	if v := os.Getenv(EnvOdooDatabase); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv(EnvOdooUsername); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv(EnvOdooAPIKey); v != "" {
		cfg.APIKey = v
	}
}
