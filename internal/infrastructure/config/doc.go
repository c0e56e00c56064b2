// Package config loads and validates the hands-free service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with HANDSFREE_* environment variables (env struct tags)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Service.Name)
package config
