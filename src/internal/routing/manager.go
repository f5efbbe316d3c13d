package routing

import (
	"fmt"
	"net/netip"
	"sync"

	"github.com/maksimkurb/tunroute/src/internal/burstguard"
	"github.com/maksimkurb/tunroute/src/internal/errors"
	"github.com/maksimkurb/tunroute/src/internal/log"
	"github.com/maksimkurb/tunroute/src/internal/networking"
)

// Options configures a RouteManager.
type Options struct {
	// BurstGuard sets the debounce timing of the default route monitors.
	BurstGuard burstguard.Config
	// EnableIPv6 starts an IPv6 default route monitor next to the IPv4 one.
	EnableIPv6 bool
}

// RouteManager is the single owner of client-installed OS routes.
//
// mu guards the route records and serializes batches with default route refreshes.
// Callback bookkeeping uses a separate lock inside callbacks.
type RouteManager struct {
	system   networking.System
	resolver *NodeResolver
	monitors map[networking.Family]*DefaultRouteMonitor

	mu      sync.Mutex
	records []RouteRecord
	closed  bool

	callbacks callbackRegistry
	closeOnce sync.Once
}

// NewRouteManager starts the default route monitors and returns an empty manager.
func NewRouteManager(system networking.System, opts Options) (*RouteManager, error) {
	m := &RouteManager{
		system:   system,
		monitors: make(map[networking.Family]*DefaultRouteMonitor),
	}
	m.resolver = NewNodeResolver(system, m)

	families := []networking.Family{networking.FamilyV4}
	if opts.EnableIPv6 {
		families = append(families, networking.FamilyV6)
	}

	for _, family := range families {
		monitor, err := NewDefaultRouteMonitor(family, system, opts.BurstGuard, m.defaultRouteChanged)
		if err != nil {
			for _, started := range m.monitors {
				started.Close()
			}
			return nil, err
		}
		m.monitors[family] = monitor
	}

	return m, nil
}

type recordEventType int

const (
	recordAdd recordEventType = iota
	recordDelete
)

// recordEvent is one step of a batch, kept so the batch can be undone.
type recordEvent struct {
	kind   recordEventType
	record RouteRecord
	// index is the position of the record in m.records when the step happened.
	index int
}

// AddRoutes installs routes in order. An existing route for the same network is replaced.
// If any route fails, every change made by this call is undone and the first error is
// returned.
func (m *RouteManager) AddRoutes(specs []RouteSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.ErrManagerClosed
	}

	var eventLog []recordEvent
	for _, spec := range specs {
		if err := m.addRouteLocked(spec, &eventLog); err != nil {
			m.undoEventsLocked(eventLog)
			return err
		}
	}
	return nil
}

// AddRoute installs one route. If the new route cannot be installed after an existing
// route for the same network was removed, the old route is restored.
func (m *RouteManager) AddRoute(spec RouteSpec) error {
	return m.AddRoutes([]RouteSpec{spec})
}

func (m *RouteManager) addRouteLocked(spec RouteSpec, eventLog *[]recordEvent) error {
	spec, err := normalizeSpec(spec)
	if err != nil {
		return err
	}

	node, err := m.resolver.Resolve(spec.Family(), spec.Node)
	if err != nil {
		return fmt.Errorf("route %s: %w", spec.Network, err)
	}

	index := len(m.records)
	if existing := m.findRecordLocked(spec.Network); existing >= 0 {
		old := m.records[existing]
		if err := m.deleteFromRouteTable(old.Registered); err != nil {
			return err
		}
		m.removeRecordLocked(existing)
		*eventLog = append(*eventLog, recordEvent{kind: recordDelete, record: old, index: existing})
		index = existing
	}

	record := RouteRecord{Spec: spec, Registered: newRegisteredRoute(spec.Network, node)}
	if err := m.system.Create(record.Registered.ForwardEntry()); err != nil {
		log.Errorf("Could not register route %s in routing table: %v", record.Registered, err)
		return err
	}
	m.insertRecordLocked(index, record)
	*eventLog = append(*eventLog, recordEvent{kind: recordAdd, record: record, index: index})

	log.Debugf("Added route %s (%s)", record.Registered, spec.Node)
	return nil
}

// DeleteRoutes removes the routes for the networks of specs. Networks that are not
// registered are skipped with a warning. If removing a route fails, routes already removed
// by this call are restored and the error is returned.
func (m *RouteManager) DeleteRoutes(specs []RouteSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.ErrManagerClosed
	}

	var eventLog []recordEvent
	for _, spec := range specs {
		if err := m.deleteRouteLocked(spec, &eventLog); err != nil {
			m.undoEventsLocked(eventLog)
			return err
		}
	}
	return nil
}

// DeleteRoute removes the route for spec.Network. Deleting an unregistered network succeeds.
func (m *RouteManager) DeleteRoute(spec RouteSpec) error {
	return m.DeleteRoutes([]RouteSpec{spec})
}

func (m *RouteManager) deleteRouteLocked(spec RouteSpec, eventLog *[]recordEvent) error {
	network := spec.Network.Masked()

	index := m.findRecordLocked(network)
	if index < 0 {
		log.Warnf("Attempting to delete route for %s which is not registered, ignoring", network)
		return nil
	}

	record := m.records[index]
	if err := m.deleteFromRouteTable(record.Registered); err != nil {
		return err
	}
	m.removeRecordLocked(index)
	*eventLog = append(*eventLog, recordEvent{kind: recordDelete, record: record, index: index})

	log.Debugf("Deleted route %s", record.Registered)
	return nil
}

// undoEventsLocked rewinds a batch by processing its events in reverse order. Failures
// are logged and do not stop the remaining steps.
func (m *RouteManager) undoEventsLocked(eventLog []recordEvent) {
	for i := len(eventLog) - 1; i >= 0; i-- {
		event := eventLog[i]

		switch event.kind {
		case recordAdd:
			index := m.findRecordLocked(event.record.Spec.Network)
			if index < 0 {
				log.Errorf("Internal state inconsistency in route manager: no record for %s", event.record.Spec.Network)
				continue
			}
			if err := m.deleteFromRouteTable(m.records[index].Registered); err != nil {
				log.Errorf("Failed to roll back route %s: %v", event.record.Registered, err)
				continue
			}
			m.removeRecordLocked(index)

		case recordDelete:
			if err := m.system.Create(event.record.Registered.ForwardEntry()); err != nil {
				log.Errorf("Failed to restore route %s during rollback: %v", event.record.Registered, err)
				continue
			}
			m.insertRecordLocked(event.index, event.record)
		}
	}
}

// RegisterDefaultRouteChangedCallback adds a callback for default route events of both
// families and returns a handle for unregistering it.
func (m *RouteManager) RegisterDefaultRouteChangedCallback(cb DefaultRouteChangedCallback) CallbackHandle {
	return m.callbacks.register(cb)
}

// UnregisterDefaultRouteChangedCallback removes a callback. Unknown handles are ignored
// with a warning.
func (m *RouteManager) UnregisterDefaultRouteChangedCallback(h CallbackHandle) {
	if !m.callbacks.unregister(h) {
		log.Warnf("Attempting to unregister unknown default route callback %s", h)
	}
}

// ClearRoutes deletes every owned route from the OS table and forgets all records while
// keeping the monitors running. Failures are logged and returned joined.
func (m *RouteManager) ClearRoutes() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.clearRoutesLocked()
}

func (m *RouteManager) clearRoutesLocked() error {
	var errs []error
	for _, record := range m.records {
		if err := m.deleteFromRouteTable(record.Registered); err != nil {
			log.Errorf("Failed to delete route %s while clearing applied routes: %v", record.Registered, err)
			errs = append(errs, err)
		}
	}
	m.records = nil
	return errors.Join(errs...)
}

// Routes returns a snapshot of the owned routes in installation order.
func (m *RouteManager) Routes() []RouteRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]RouteRecord(nil), m.records...)
}

// DefaultRoute returns the cached best default route of family.
func (m *RouteManager) DefaultRoute(family networking.Family) (ResolvedNode, bool) {
	monitor, ok := m.monitors[family]
	if !ok {
		return ResolvedNode{}, false
	}
	return monitor.BestRoute()
}

// RouteMTU returns the MTU of the interface carrying the best default route of family.
func (m *RouteManager) RouteMTU(family networking.Family) (int, error) {
	route, ok := m.DefaultRoute(family)
	if !ok {
		return 0, errors.New(errors.ErrCodeNoDefaultRoute, fmt.Sprintf("no %s default route found", family))
	}

	info, err := m.system.InterfaceByID(family, route.Interface)
	if err != nil {
		return 0, err
	}
	return info.MTU, nil
}

// Close stops the monitors and then deletes every owned route. Failures are logged.
// The manager cannot be used afterwards.
func (m *RouteManager) Close() {
	m.closeOnce.Do(func() {
		// Monitors first, so no refresh runs against routes being removed.
		for _, monitor := range m.monitors {
			monitor.Close()
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		m.closed = true
		if err := m.clearRoutesLocked(); err != nil {
			log.Errorf("Failed to remove all routes on shutdown: %v", err)
		}
	})
}

// defaultRouteChanged forwards event to callbacks and, on EventUpdated, moves routes with an
// unspecified node of that family to the new default route.
func (m *RouteManager) defaultRouteChanged(event DefaultRouteEvent) {
	m.callbacks.dispatch(event)

	if event.Type != EventUpdated {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	var affected []int
	for i, record := range m.records {
		if record.Spec.Node.Kind() == NodeUnspecified && record.Spec.Family() == event.Family {
			affected = append(affected, i)
		}
	}
	if len(affected) == 0 {
		return
	}

	log.Infof("Best default route has changed. Refreshing dependent routes")

	for _, i := range affected {
		m.refreshRecordLocked(i, event.Route)
	}
}

// refreshRecordLocked re-points one record at node. If the new route cannot be added the
// record and the installed route stay as they were.
func (m *RouteManager) refreshRecordLocked(i int, node ResolvedNode) {
	old := m.records[i].Registered
	updated := newRegisteredRoute(old.Network, node)
	if updated == old {
		return
	}

	// Both routes share destination and metric, so adding the new one replaces the old one
	// in place and the network is never left without a route.
	if err := m.system.Create(updated.ForwardEntry()); err != nil {
		log.Errorf("Failed to add route %s when refreshing existing routes: %v", updated, err)
		return
	}
	m.records[i].Registered = updated

	// Cleanup for tables that kept the old next hop next to the new one.
	if err := m.system.Delete(old.ForwardEntry()); err != nil {
		log.Errorf("Failed to delete route %s when refreshing existing routes: %v", old, err)
	}
}

func (m *RouteManager) deleteFromRouteTable(route RegisteredRoute) error {
	if err := m.system.Delete(route.ForwardEntry()); err != nil {
		log.Errorf("Failed to delete route %s from routing table: %v", route, err)
		return err
	}
	return nil
}

func (m *RouteManager) findRecordLocked(network netip.Prefix) int {
	for i, record := range m.records {
		if record.Spec.Network == network {
			return i
		}
	}
	return -1
}

func (m *RouteManager) removeRecordLocked(i int) {
	m.records = append(m.records[:i:i], m.records[i+1:]...)
}

func (m *RouteManager) insertRecordLocked(i int, record RouteRecord) {
	if i < 0 || i > len(m.records) {
		i = len(m.records)
	}
	m.records = append(m.records[:i:i], append([]RouteRecord{record}, m.records[i:]...)...)
}

// normalizeSpec masks the network and rejects specs that cannot be resolved.
func normalizeSpec(spec RouteSpec) (RouteSpec, error) {
	if !spec.Network.IsValid() {
		return spec, errors.NewValidationError("invalid network", nil)
	}
	spec.Network = netip.PrefixFrom(spec.Network.Addr().Unmap(), spec.Network.Bits()).Masked()
	if !spec.Network.IsValid() {
		return spec, errors.NewValidationError(fmt.Sprintf("invalid network %s", spec.Network), nil)
	}

	if spec.Node.Gateway.IsValid() {
		gw := spec.Node.Gateway.Unmap()
		if gw.IsUnspecified() {
			return spec, errors.NewValidationError(fmt.Sprintf("route %s: gateway must not be unspecified", spec.Network), nil)
		}
		if networking.FamilyOf(gw) != spec.Family() {
			return spec, errors.NewValidationError(
				fmt.Sprintf("route %s: gateway %s has a different address family", spec.Network, gw), nil)
		}
		spec.Node.Gateway = gw
	}
	return spec, nil
}
