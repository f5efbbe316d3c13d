// Package config handles configuration file parsing and validation for tunroute.
//
// The configuration file is TOML and defines:
//   - General settings (debounce timing of default route monitoring, IPv6 monitoring)
//   - The HTTP control API listener
//   - Routes to install when the service starts
//
// Each [[route]] names a destination network and, optionally, a device and a gateway.
// A route with neither follows the best default route of its address family and is
// moved automatically when that route changes.
//
// # Example Usage
//
//	cfg, err := config.LoadConfig("/etc/tunroute/tunroute.conf")
//	if err != nil {
//	    log.Fatalf("%v", err)
//	}
//	if err := cfg.ValidateConfig(); err != nil {
//	    log.Fatalf("%v", err)
//	}
//
//	specs, err := cfg.RouteSpecs()
//
// Validation collects every problem into a ValidationErrors list instead of stopping at
// the first one.
package config
