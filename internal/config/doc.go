// Package config loads and validates the bridge's TOML configuration.
//
// Configuration lives in a single TOML file with four sections: matrix
// (platform credentials), backend (chat endpoints, cookie, session tuning),
// bridge (room filters, reset command), and logging. Values may reference
// environment variables with ${VAR} syntax; references are expanded before
// parsing.
package config
