// Package config loads and validates application configuration.
//
// Configuration comes from three layers, later layers winning: built-in
// defaults, an optional YAML file named by FIRN_CONFIG_FILE, and FIRN_-prefixed
// environment variables. LoadConfig applies all three and validates the result,
// so the rest of the program never sees a half-configured state.
package config
