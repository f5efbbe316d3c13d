package config

import (
	"fmt"
	"net/netip"
	"path/filepath"
	"time"

	"github.com/maksimkurb/tunroute/src/internal/burstguard"
	"github.com/maksimkurb/tunroute/src/internal/routing"
)

const (
	DefaultBurstBufferMs   = 200
	DefaultBurstMaxDelayMs = 2000
	DefaultAPIListenAddr   = "127.0.0.1:8777"
)

type Config struct {
	// General holds general configuration.
	General *GeneralConfig `toml:"general"`
	// API configures the HTTP control API of the service.
	API *APIConfig `toml:"api"`
	// Routes are installed when the service starts. You can add multiple routes.
	Routes []*RouteConfig `toml:"route,omitempty"`

	_absConfigFilePath string
}

type GeneralConfig struct {
	// Verbose enables debug logging.
	Verbose bool `toml:"verbose" json:"verbose"`
	// BurstBufferMs is how long the network must stay quiet before the default route is re-evaluated (default: 200).
	BurstBufferMs int `toml:"burst_buffer_ms" json:"burst_buffer_ms" validate:"gte=0"`
	// BurstMaxDelayMs is the longest a re-evaluation can be postponed by a continuous stream of changes (default: 2000).
	BurstMaxDelayMs int `toml:"burst_max_delay_ms" json:"burst_max_delay_ms" validate:"gte=0"`
	// EnableIPv6 starts an IPv6 default route monitor (default: false).
	EnableIPv6 bool `toml:"enable_ipv6" json:"enable_ipv6"`
}

type APIConfig struct {
	// Enable starts the HTTP control API (default: false).
	Enable bool `toml:"enable" json:"enable"`
	// ListenAddr is the host:port of the API (default: 127.0.0.1:8777).
	ListenAddr string `toml:"listen_addr" json:"listen_addr" validate:"hostport_or_empty"`
}

type RouteConfig struct {
	// Network is the destination in CIDR notation.
	Network string `toml:"network" json:"network" validate:"required,cidr"`
	// Device is an interface name or an encoded interface id ("?" followed by 16 hex digits).
	Device string `toml:"device,omitempty" json:"device,omitempty" validate:"device_or_empty"`
	// Gateway is the next hop. Must have the same address family as Network.
	Gateway string `toml:"gateway,omitempty" json:"gateway,omitempty" validate:"ip_or_empty"`
}

func (c *Config) GetConfigDir() string {
	return filepath.Dir(c._absConfigFilePath)
}

// ApplyDefaults fills in omitted sections and values.
func (c *Config) ApplyDefaults() {
	if c.General == nil {
		c.General = &GeneralConfig{}
	}
	if c.General.BurstBufferMs == 0 {
		c.General.BurstBufferMs = DefaultBurstBufferMs
	}
	if c.General.BurstMaxDelayMs == 0 {
		c.General.BurstMaxDelayMs = DefaultBurstMaxDelayMs
	}

	if c.API == nil {
		c.API = &APIConfig{}
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = DefaultAPIListenAddr
	}
}

// BurstGuard returns the debounce timing of the default route monitors.
func (c *Config) BurstGuard() burstguard.Config {
	if c.General == nil {
		return burstguard.Config{}
	}
	return burstguard.Config{
		BufferPeriod:        time.Duration(c.General.BurstBufferMs) * time.Millisecond,
		LongestBufferPeriod: time.Duration(c.General.BurstMaxDelayMs) * time.Millisecond,
	}
}

// ManagerOptions returns the route manager options described by the configuration.
func (c *Config) ManagerOptions() routing.Options {
	opts := routing.Options{BurstGuard: c.BurstGuard()}
	if c.General != nil {
		opts.EnableIPv6 = c.General.EnableIPv6
	}
	return opts
}

// RouteSpecs converts the configured routes. The configuration must be valid.
func (c *Config) RouteSpecs() ([]routing.RouteSpec, error) {
	specs := make([]routing.RouteSpec, 0, len(c.Routes))
	for i, r := range c.Routes {
		spec, err := r.RouteSpec()
		if err != nil {
			return nil, fmt.Errorf("route[%d]: %w", i, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// RouteSpec converts a single configured route.
func (r *RouteConfig) RouteSpec() (routing.RouteSpec, error) {
	network, err := netip.ParsePrefix(r.Network)
	if err != nil {
		return routing.RouteSpec{}, err
	}

	var gateway netip.Addr
	if r.Gateway != "" {
		if gateway, err = netip.ParseAddr(r.Gateway); err != nil {
			return routing.RouteSpec{}, err
		}
	}

	return routing.RouteSpec{
		Network: network.Masked(),
		Node:    routing.NodeSpec{Device: r.Device, Gateway: gateway},
	}, nil
}
