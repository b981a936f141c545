// Package config provides configuration management for the gateway.
//
// Configuration is loaded from a single YAML file. Defaults are applied
// first, then the file contents, then environment variable overrides for
// the Odoo connection secrets (ODOO_URL, ODOO_DATABASE, ODOO_USERNAME,
// ODOO_API_KEY), and finally the result is validated as a whole.
//
// The resulting GatewayConfig is immutable after start: components receive
// it (or the slice of it they need) at construction time and never observe
// changes. Restart the gateway to apply a new configuration.
package config
