package routing

import (
	"sync"

	"github.com/maksimkurb/tunroute/src/internal/burstguard"
	"github.com/maksimkurb/tunroute/src/internal/errors"
	"github.com/maksimkurb/tunroute/src/internal/log"
	"github.com/maksimkurb/tunroute/src/internal/networking"
)

// DefaultRouteMonitor tracks the best default route of one address family.
//
// OS notifications are funneled into a BurstGuard; when it fires the best default route is
// recomputed and compared with the cached one. The callback receives EventUpdated when the
// route appears or changes, EventRemoved when it disappears and EventUpdatedDetails when
// the same route was touched by a notification about its interface.
type DefaultRouteMonitor struct {
	family   networking.Family
	routes   networking.RouteTable
	ifaces   networking.InterfaceTable
	callback func(DefaultRouteEvent)

	mu             sync.Mutex
	bestRoute      *ResolvedNode
	refreshCurrent bool

	guard     *burstguard.BurstGuard
	subs      []networking.Subscription
	closeOnce sync.Once
}

// NewDefaultRouteMonitor subscribes to OS changes for family and computes the initial best
// default route. No event is emitted for the initial state.
func NewDefaultRouteMonitor(
	family networking.Family,
	system networking.System,
	cfg burstguard.Config,
	callback func(DefaultRouteEvent),
) (*DefaultRouteMonitor, error) {
	m := &DefaultRouteMonitor{
		family:   family,
		routes:   system,
		ifaces:   system,
		callback: callback,
	}
	m.guard = burstguard.New(cfg, m.evaluateRoutes)

	if err := m.subscribe(system); err != nil {
		m.Close()
		return nil, err
	}

	// Subscribe first so that a change racing with the initial query is not lost.
	best, err := BestDefaultRoute(family, m.routes, m.ifaces)
	if err != nil {
		m.Close()
		return nil, errors.NewRouteTableError("failed to determine initial "+family.String()+" default route", err)
	}

	m.mu.Lock()
	m.bestRoute = best
	m.mu.Unlock()

	if best != nil {
		log.Infof("Initial %s default route: %s", family, best)
	} else {
		log.Infof("No %s default route at startup", family)
	}
	return m, nil
}

func (m *DefaultRouteMonitor) subscribe(notifier networking.ChangeNotifier) error {
	sub, err := notifier.SubscribeRouteChanges(m.family, m.onRouteChange)
	if err != nil {
		return err
	}
	m.subs = append(m.subs, sub)

	sub, err = notifier.SubscribeInterfaceChanges(m.family, m.onInterfaceChange)
	if err != nil {
		return err
	}
	m.subs = append(m.subs, sub)

	sub, err = notifier.SubscribeAddressChanges(m.family, m.onAddressChange)
	if err != nil {
		return err
	}
	m.subs = append(m.subs, sub)

	return nil
}

// Family returns the monitored address family.
func (m *DefaultRouteMonitor) Family() networking.Family {
	return m.family
}

// BestRoute returns the cached best default route.
func (m *DefaultRouteMonitor) BestRoute() (ResolvedNode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bestRoute == nil {
		return ResolvedNode{}, false
	}
	return *m.bestRoute, true
}

// Close unsubscribes from OS notifications, cancels a pending evaluation and waits for an
// in-flight one. It must not be called from the callback.
func (m *DefaultRouteMonitor) Close() {
	m.closeOnce.Do(func() {
		for _, sub := range m.subs {
			if err := sub.Close(); err != nil {
				log.Warnf("Failed to close %s change subscription: %v", m.family, err)
			}
		}
		m.subs = nil
		m.guard.Stop()
	})
}

// Only default routes with a gateway can change the best default route.
func (m *DefaultRouteMonitor) onRouteChange(change networking.RouteChange) {
	if change.Type == networking.NotifyResync {
		m.guard.Trigger()
		return
	}
	if !change.Entry.IsDefault() || !change.Entry.HasGateway() {
		return
	}
	m.updateRefreshFlag(change.Entry.Interface)
	m.guard.Trigger()
}

func (m *DefaultRouteMonitor) onInterfaceChange(change networking.InterfaceChange) {
	if change.Type == networking.NotifyResync {
		m.guard.Trigger()
		return
	}
	m.updateRefreshFlag(change.Interface)
	m.guard.Trigger()
}

func (m *DefaultRouteMonitor) onAddressChange(change networking.AddressChange) {
	if change.Type == networking.NotifyResync {
		m.guard.Trigger()
		return
	}
	m.updateRefreshFlag(change.Interface)
	m.guard.Trigger()
}

func (m *DefaultRouteMonitor) updateRefreshFlag(iface networking.InterfaceID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bestRoute != nil && m.bestRoute.Interface == iface {
		m.refreshCurrent = true
	}
}

// evaluateRoutes runs on the burst guard goroutine, never concurrently with itself.
func (m *DefaultRouteMonitor) evaluateRoutes() {
	m.mu.Lock()
	refresh := m.refreshCurrent
	m.refreshCurrent = false
	m.mu.Unlock()

	current, err := BestDefaultRoute(m.family, m.routes, m.ifaces)

	m.mu.Lock()
	if err != nil {
		m.mu.Unlock()
		log.Errorf("Failed to evaluate %s default route, keeping the previous one: %v", m.family, err)
		return
	}

	event, changed := m.transitionLocked(current, refresh)
	m.mu.Unlock()

	if changed {
		log.Debugf("%v", event)
		m.callback(event)
	}
}

func (m *DefaultRouteMonitor) transitionLocked(current *ResolvedNode, refresh bool) (DefaultRouteEvent, bool) {
	previous := m.bestRoute

	switch {
	case previous == nil && current == nil:
		return DefaultRouteEvent{}, false

	case previous == nil:
		m.bestRoute = current
		return DefaultRouteEvent{Type: EventUpdated, Family: m.family, Route: *current}, true

	case current == nil:
		m.bestRoute = nil
		return DefaultRouteEvent{Type: EventRemoved, Family: m.family}, true

	case *previous != *current:
		m.bestRoute = current
		return DefaultRouteEvent{Type: EventUpdated, Family: m.family, Route: *current}, true

	case refresh:
		return DefaultRouteEvent{Type: EventUpdatedDetails, Family: m.family, Route: *current}, true
	}

	return DefaultRouteEvent{}, false
}
