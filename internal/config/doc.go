// Package config loads application configuration from environment
// variables, applying defaults and validating at startup.
package config
