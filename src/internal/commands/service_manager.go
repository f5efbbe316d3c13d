package commands

import (
	"fmt"
	"sync"

	"github.com/maksimkurb/tunroute/src/internal/config"
	"github.com/maksimkurb/tunroute/src/internal/log"
	"github.com/maksimkurb/tunroute/src/internal/networking"
	"github.com/maksimkurb/tunroute/src/internal/routing"
)

// ServiceManager manages the lifecycle of the route manager of the service:
// it opens the OS adapter, installs the configured routes and reloads them.
type ServiceManager struct {
	mu      sync.Mutex
	ctx     *AppContext
	cfg     *config.Config
	system  networking.System
	manager *routing.RouteManager
	handle  routing.CallbackHandle
}

// NewServiceManager creates a stopped service manager for cfg.
func NewServiceManager(ctx *AppContext, cfg *config.Config) *ServiceManager {
	return &ServiceManager{ctx: ctx, cfg: cfg}
}

// IsRunning returns true if the route manager is active.
func (sm *ServiceManager) IsRunning() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.manager != nil
}

// Manager returns the active route manager, or nil when stopped.
func (sm *ServiceManager) Manager() *routing.RouteManager {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.manager
}

// System returns the OS adapter, or nil when stopped.
func (sm *ServiceManager) System() networking.System {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.system
}

// Config returns the configuration in effect.
func (sm *ServiceManager) Config() *config.Config {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.cfg
}

// Start opens the OS adapter, starts the route manager and installs the configured
// routes. A failure to install routes is logged and the service keeps running, so the
// configuration can be fixed and reloaded.
func (sm *ServiceManager) Start() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.manager != nil {
		return fmt.Errorf("service is already running")
	}

	system, err := sm.ctx.openSystem()
	if err != nil {
		return fmt.Errorf("failed to open route table: %w", err)
	}

	manager, err := routing.NewRouteManager(system, sm.cfg.ManagerOptions())
	if err != nil {
		closeSystem(system)
		return fmt.Errorf("failed to start route manager: %w", err)
	}

	sm.system = system
	sm.manager = manager
	sm.handle = manager.RegisterDefaultRouteChangedCallback(logDefaultRouteEvent)

	for _, family := range enabledFamilies(sm.cfg) {
		if route, ok := manager.DefaultRoute(family); ok {
			log.Infof("Current %s default route: %s", family, route)
		} else {
			log.Warnf("No %s default route found", family)
		}
	}

	if err := sm.installConfiguredRoutesLocked(); err != nil {
		log.Errorf("Failed to install configured routes: %v", err)
		log.Warnf("Service will continue without configured routes. Fix the configuration and send SIGHUP.")
	}

	return nil
}

// Stop removes every owned route and stops the route manager.
func (sm *ServiceManager) Stop() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.manager == nil {
		return fmt.Errorf("service is not running")
	}

	log.Infof("Removing owned routes...")
	sm.manager.UnregisterDefaultRouteChangedCallback(sm.handle)
	sm.manager.Close()
	closeSystem(sm.system)

	sm.manager = nil
	sm.system = nil
	return nil
}

// Reload reads the configuration again and replaces the installed routes with the
// configured ones. Routes added through the API are removed too. If the new routes
// cannot be installed, the previous routes are restored.
//
// Changes to the [general] section need a restart.
func (sm *ServiceManager) Reload() error {
	cfg, err := loadAndValidateConfigOrFail(sm.ctx.ConfigPath)
	if err != nil {
		return err
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.manager == nil {
		return fmt.Errorf("service is not running")
	}

	if *cfg.General != *sm.cfg.General {
		log.Warnf("Changes to the [general] section take effect after a restart")
	}

	specs, err := cfg.RouteSpecs()
	if err != nil {
		return err
	}

	previous := sm.manager.Routes()
	if err := sm.manager.ClearRoutes(); err != nil {
		log.Errorf("Failed to remove some routes: %v", err)
	}

	if err := sm.manager.AddRoutes(specs); err != nil {
		log.Errorf("Failed to install reloaded routes, restoring previous routes")
		restore := make([]routing.RouteSpec, 0, len(previous))
		for _, record := range previous {
			restore = append(restore, record.Spec)
		}
		if rerr := sm.manager.AddRoutes(restore); rerr != nil {
			log.Errorf("Failed to restore previous routes: %v", rerr)
		}
		return err
	}

	sm.cfg = cfg
	log.Infof("Installed %d configured route(s)", len(specs))
	return nil
}

func (sm *ServiceManager) installConfiguredRoutesLocked() error {
	specs, err := sm.cfg.RouteSpecs()
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		log.Infof("No routes configured")
		return nil
	}

	if err := sm.manager.AddRoutes(specs); err != nil {
		return err
	}
	log.Infof("Installed %d configured route(s)", len(specs))
	return nil
}

func logDefaultRouteEvent(event routing.DefaultRouteEvent) {
	if event.Type == routing.EventRemoved {
		log.Warnf("%s", event)
		return
	}
	log.Infof("%s", event)
}
