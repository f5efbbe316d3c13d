package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/maksimkurb/tunroute/src/internal/config"
	"github.com/maksimkurb/tunroute/src/internal/networking"
)

type Runner interface {
	Init(args []string, globalArgs *AppContext) error
	Run() error
	Name() string
}

type AppContext struct {
	ConfigPath string
	Verbose    bool

	// NewSystem opens the OS adapter. Defaults to networking.NewSystem.
	NewSystem func() (networking.System, error)
	// Stdout receives command output. Defaults to os.Stdout.
	Stdout io.Writer
}

func (c *AppContext) openSystem() (networking.System, error) {
	if c.NewSystem != nil {
		return c.NewSystem()
	}
	return networking.NewSystem()
}

func (c *AppContext) stdout() io.Writer {
	if c.Stdout != nil {
		return c.Stdout
	}
	return os.Stdout
}

// closeSystem releases the OS adapter if it holds resources.
func closeSystem(system networking.System) {
	if closer, ok := system.(interface{ Close() }); ok {
		closer.Close()
	}
}

// loadAndValidateConfigOrFail loads configuration from file and validates it.
// Interfaces named by routes are resolved later, when the routes are installed.
func loadAndValidateConfigOrFail(configPath string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// enabledFamilies lists the address families monitored for cfg.
func enabledFamilies(cfg *config.Config) []networking.Family {
	families := []networking.Family{networking.FamilyV4}
	if cfg.General != nil && cfg.General.EnableIPv6 {
		families = append(families, networking.FamilyV6)
	}
	return families
}
