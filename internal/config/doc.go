// Package config loads runtime configuration from multiple sources (YAML files,
// environment variables and .env files, CLI flags) with precedence: CLI flags >
// YAML config > Environment variables > Defaults. It exposes strongly typed
// server and billing settings to the rest of the application; the billing
// section is resolved into process-wide constants by package settings.
package config
