// Package config handles configuration loading for sanctum.
//
// # Overview
//
// Configuration is loaded from YAML (or TOML, for .toml files) with
// environment variable expansion. The package fills defaults and validates.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from SANCTUM_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/sanctum/config.yaml
//  3. ~/.config/sanctum/config.yaml
//
// # Environment Variable Expansion
//
//	database:
//	  path: "${SANCTUM_DB_PATH}"
//
// # Example
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//
//	database:
//	  driver: sqlite        # or memory
//	  path: ~/.local/share/sanctum/sanctum.db
//
//	auth:
//	  allowed_origins:
//	    - "https://localhost"
//	  allow_subdomains: false
//	  session_cookie: sanctum_session
//	  csrf_header: X-CSRF-Token
//	  csrf_field: _token
//	  session_idle_timeout: "2h"
//	  token_ttl: "0s"         # 0 means tokens never expire
//	  store_timeout: "2s"
//	  sweep_interval: "10m"
//	  secure_cookies: true
//
//	logging:
//	  level: info             # debug, info, warn, error
//	  format: text            # text or json
//
//	metrics:
//	  enabled: true
//	  path: /metrics
//
// Duration values use Go's time.ParseDuration syntax.
package config
