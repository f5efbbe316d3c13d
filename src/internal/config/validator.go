package config

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/go-playground/validator/v10"
	"github.com/maksimkurb/tunroute/src/internal/networking"
)

// ValidateConfig validates the entire configuration and returns all validation errors
func (c *Config) ValidateConfig() error {
	var validationErrors ValidationErrors

	// Validate general config
	if c.General == nil {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "general",
			Message:   "configuration must contain 'general' section",
		})
		return validationErrors
	}

	if err := validate.Struct(c.General); err != nil {
		validationErrors = append(validationErrors, convertValidatorErrors(err, "general", "")...)
	}
	validationErrors = append(validationErrors, c.validateBurstGuard()...)

	if c.API != nil {
		if err := validate.Struct(c.API); err != nil {
			validationErrors = append(validationErrors, convertValidatorErrors(err, "api", "")...)
		}
		if c.API.Enable && c.API.ListenAddr == "" {
			validationErrors = append(validationErrors, ValidationError{
				FieldPath: "api.listen_addr",
				Message:   "listen address is required when the API is enabled",
			})
		}
	}

	validationErrors = append(validationErrors, c.validateRoutes()...)

	if len(validationErrors) > 0 {
		return validationErrors
	}

	return nil
}

func (c *Config) validateBurstGuard() ValidationErrors {
	var validationErrors ValidationErrors

	buffer, maxDelay := c.General.BurstBufferMs, c.General.BurstMaxDelayMs
	if buffer == 0 {
		buffer = DefaultBurstBufferMs
	}
	if maxDelay == 0 {
		maxDelay = DefaultBurstMaxDelayMs
	}

	if buffer > 0 && maxDelay > 0 && maxDelay < buffer {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "general.burst_max_delay_ms",
			Message:   fmt.Sprintf("must be >= burst_buffer_ms (%d)", buffer),
		})
	}

	return validationErrors
}

// ValidateRoutes validates route entries that do not come from a configuration file.
func ValidateRoutes(routes []*RouteConfig) error {
	if errs := (&Config{Routes: routes}).validateRoutes(); len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateRoutes() ValidationErrors {
	var validationErrors ValidationErrors

	// Track duplicates
	seenNetworks := make(map[netip.Prefix]bool)

	for i, route := range c.Routes {
		if route == nil {
			validationErrors = append(validationErrors, ValidationError{
				FieldPath: fmt.Sprintf("route.%d", i),
				Message:   "route cannot be empty",
			})
			continue
		}

		itemName := route.Network
		if itemName == "" {
			itemName = fmt.Sprintf("route[%d]", i)
		}

		// Validate struct fields
		if err := validate.Struct(route); err != nil {
			validationErrors = append(validationErrors, convertValidatorErrors(err, fmt.Sprintf("route.%d", i), itemName)...)
			continue
		}

		network, err := netip.ParsePrefix(route.Network)
		if err != nil {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fmt.Sprintf("route.%d.network", i),
				Message:   err.Error(),
			})
			continue
		}
		network = network.Masked()

		// Check duplicate network
		if seenNetworks[network] {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fmt.Sprintf("route.%d.network", i),
				Message:   fmt.Sprintf("duplicate network: %s", network),
			})
		}
		seenNetworks[network] = true

		// Validate gateway IP family matches the network
		if route.Gateway != "" {
			gateway := netip.MustParseAddr(route.Gateway).Unmap()
			if gateway.IsUnspecified() {
				validationErrors = append(validationErrors, ValidationError{
					ItemName:  itemName,
					FieldPath: fmt.Sprintf("route.%d.gateway", i),
					Message:   "gateway cannot be an unspecified address",
				})
			} else if networking.FamilyOf(gateway) != networking.FamilyOfPrefix(network) {
				validationErrors = append(validationErrors, ValidationError{
					ItemName:  itemName,
					FieldPath: fmt.Sprintf("route.%d.gateway", i),
					Message: fmt.Sprintf("%s address %s cannot be used for %s network",
						networking.FamilyOf(gateway), route.Gateway, networking.FamilyOfPrefix(network)),
				})
			}
		}
	}

	return validationErrors
}

// convertValidatorErrors converts go-playground/validator errors to our ValidationError format
func convertValidatorErrors(err error, fieldPrefix string, itemName string) ValidationErrors {
	var validationErrors ValidationErrors

	var validatorErrs validator.ValidationErrors
	if errors.As(err, &validatorErrs) {
		for _, e := range validatorErrs {
			fieldPath := fieldPrefix
			if e.Field() != "" {
				// e.Field() returns the TOML tag name because we registered TagNameFunc
				if fieldPrefix != "" {
					fieldPath = fieldPrefix + "." + e.Field()
				} else {
					fieldPath = e.Field()
				}
			}

			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fieldPath,
				Message:   getValidationMessage(e),
			})
		}
	}

	return validationErrors
}
