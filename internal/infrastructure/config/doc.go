// Package config handles loading and validating the Venstar bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with VENSTAR_* environment variables
//   - Validation of required fields
//
// The venstar section mirrors the NodeServer parameters: short_poll,
// long_poll, hostname (semicolon-separated static hosts) and pin.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.ShortPollInterval())
package config
