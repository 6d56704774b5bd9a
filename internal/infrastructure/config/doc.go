// Package config handles loading and validating hamrelay configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (HAMRELAY_* tags on the fields)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker credentials should be set via environment variables or a .env file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Relay.BaseTopic)
package config
