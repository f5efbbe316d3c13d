package config

import (
	"fmt"
	"net"
	"net/netip"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/maksimkurb/tunroute/src/internal/networking"
)

var (
	// Linux interface names: at most 15 bytes, no whitespace or slashes.
	deviceNameRegexp = regexp.MustCompile(`^[^\s/:]{1,15}$`)
)

// getValidationMessage returns a human-readable message for a validation error
func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "field is required"
	case "min", "gte":
		return fmt.Sprintf("must be >= %s", e.Param())
	case "max", "lte":
		return fmt.Sprintf("must be <= %s", e.Param())
	case "cidr":
		return "must be a network in CIDR notation (e.g., 10.0.0.0/8 or 2001:db8::/32)"
	case "ip_or_empty":
		return "must be a valid IP address or empty"
	case "hostport_or_empty":
		return "must be in format 'host:port' or empty"
	case "device_or_empty":
		return "must be an interface name or an encoded interface id (?<16 hex digits>)"
	default:
		return fmt.Sprintf("validation failed: %s", e.Tag())
	}
}

// ValidationError represents a single validation error with context
type ValidationError struct {
	ItemName  string // For routes: the network of the route (e.g., "10.0.0.0/8")
	FieldPath string // Dot-notation field path (e.g., "general.burst_buffer_ms", "route.0.gateway")
	Message   string // Human-readable error message
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("validation failed with %d error(s):\n", len(ve)))
	for i, err := range ve {
		if err.ItemName != "" {
			sb.WriteString(fmt.Sprintf("  %d. [%s] %s: %s\n", i+1, err.ItemName, err.FieldPath, err.Message))
		} else {
			sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.FieldPath, err.Message))
		}
	}
	return sb.String()
}

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Register custom validators
	if err := validate.RegisterValidation("ip_or_empty", validateIPOrEmpty); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("hostport_or_empty", validateHostPortOrEmpty); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("device_or_empty", validateDeviceOrEmpty); err != nil {
		panic(err)
	}

	// Register function to get field name from "toml" tag
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Custom validator: IP address or empty
func validateIPOrEmpty(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := netip.ParseAddr(value)
	return err == nil
}

// Custom validator: host:port format or empty
func validateHostPortOrEmpty(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, _, err := net.SplitHostPort(value)
	return err == nil
}

// Custom validator: interface name, encoded interface id or empty
func validateDeviceOrEmpty(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	if strings.HasPrefix(value, "?") {
		_, ok := networking.ParseEncodedInterfaceID(value)
		return ok
	}
	return deviceNameRegexp.MatchString(value)
}
