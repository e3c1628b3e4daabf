// Package config handles configuration loading for rosterd.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and duration parsing.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${ROSTER_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  session_lifetime: "720h"
//	  token_lifetime: "720h"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  base_url: "https://roster.example.com"  # passkey RP derivation
//
// Database:
//
//	database:
//	  driver: "sqlite"                 # sqlite (default) or postgres
//	  path: "/var/lib/roster/roster.db"
//	  dsn: "${ROSTER_DATABASE_URL}"    # postgres only
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${ROSTER_JWT_SECRET}"  # Required
//	  bcrypt_cost: 10
//	  session_lifetime: "720h"
//	  token_lifetime: "720h"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - HTTP listen address presence
//   - Database driver and its matching path/dsn field
//   - JWT secret presence
//   - Duration format validity
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/roster/rosterd.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
