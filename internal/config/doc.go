// Package config defines the notifier settings and provides helpers to load,
// validate, save and watch them in YAML format.
//
// Validate fills in defaults (poll interval, backoff cap, request timeout, state
// location), so every loaded Config is ready to use.
package config
