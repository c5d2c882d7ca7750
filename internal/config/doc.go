// Package config loads the SeiFlow JSON configuration, fills defaults and
// applies secret overrides from the environment.
package config
