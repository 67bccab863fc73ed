// Package config loads fsval settings from the config file, a .env file and
// FSVAL_ environment variables.
package config

import "time"

// Default configuration values.
const (
	// DefaultQuery selects every entry for rules without a query.
	DefaultQuery = "**"

	// DefaultFormat is the output format of the CLI.
	DefaultFormat = "table"

	// DefaultDebounce is how long watch mode waits for changes to settle.
	DefaultDebounce = 500 * time.Millisecond

	// DefaultEnvFile is read from the working directory before the
	// environment.
	DefaultEnvFile = ".env"

	// EnvPrefix prefixes every environment variable, as in FSVAL_ALLOW_EVAL.
	EnvPrefix = "FSVAL"
)
