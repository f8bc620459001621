// Package config loads and validates the telegram-mcp YAML configuration,
// expanding ${VAR} environment references and parsing duration strings.
package config
