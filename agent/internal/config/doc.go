// Package config loads and watches the agent section of config.yaml.
//
// Load(path) applies struct-tag defaults (creasty/defaults), decodes the YAML
// on top, fills derived values (default sources, Alpha Vantage endpoint,
// secrets named by *_env fields) and validates with go-playground/validator
// plus semantic checks. LoadOptional falls back to Default() when the file
// does not exist, so the agent runs with no configuration at all.
//
// API keys never appear in the file; the file names the environment
// variables that hold them. The binary loads a .env file before calling Load.
//
// Watch(ctx, path, onChange) reloads on change. Loop mode uses it to pick up
// new thresholds, palette and sources at the next cycle. Storage, insights,
// metrics and shipper are wired once at start-up; RestartRequired names the
// ones a reload changed so the agent can log them.
package config
