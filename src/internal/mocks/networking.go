// Package mocks provides in-memory implementations of the OS adapters for tests.
package mocks

import (
	"fmt"
	"net/netip"
	"sync"

	"github.com/maksimkurb/tunroute/src/internal/errors"
	"github.com/maksimkurb/tunroute/src/internal/networking"
)

// FakeSystem is an in-memory networking.System.
//
// It keeps one forwarding table per family and a list of interfaces. Create and Delete
// mutate the table and notify route subscribers synchronously, like the kernel would.
// Tests can inject failures through the *Func hooks and simulate topology changes with
// SetDefaultRoute, RemoveDefaultRoute and the Fire* helpers.
type FakeSystem struct {
	// CreateFunc is called by Create before the table is modified. A non-nil error aborts.
	CreateFunc func(entry networking.ForwardEntry) error

	// DeleteFunc is called by Delete before the table is modified. A non-nil error aborts.
	DeleteFunc func(entry networking.ForwardEntry) error

	// ForwardTableFunc replaces ForwardTable if not nil
	ForwardTableFunc func(family networking.Family) ([]networking.ForwardEntry, error)

	// InterfacesFunc replaces Interfaces if not nil
	InterfacesFunc func(family networking.Family) ([]networking.InterfaceInfo, error)

	// SubscribeErr is returned by every Subscribe* method if not nil
	SubscribeErr error

	mu         sync.Mutex
	tables     map[networking.Family][]networking.ForwardEntry
	interfaces []networking.InterfaceInfo
	nextSub    int
	routeSubs  map[int]routeSub
	ifaceSubs  map[int]ifaceSub
	addrSubs   map[int]addrSub

	// Track calls for verification in tests
	CreateCalls int
	DeleteCalls int
}

type routeSub struct {
	family networking.Family
	cb     func(networking.RouteChange)
}

type ifaceSub struct {
	family networking.Family
	cb     func(networking.InterfaceChange)
}

type addrSub struct {
	family networking.Family
	cb     func(networking.AddressChange)
}

var _ networking.System = (*FakeSystem)(nil)

// NewFakeSystem creates an empty FakeSystem.
func NewFakeSystem() *FakeSystem {
	return &FakeSystem{
		tables:    make(map[networking.Family][]networking.ForwardEntry),
		routeSubs: make(map[int]routeSub),
		ifaceSubs: make(map[int]ifaceSub),
		addrSubs:  make(map[int]addrSub),
	}
}

// AddInterface registers an interface. Gateways may mix families.
func (f *FakeSystem) AddInterface(info networking.InterfaceInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.interfaces {
		if f.interfaces[i].ID == info.ID {
			f.interfaces[i] = info
			return
		}
	}
	f.interfaces = append(f.interfaces, info)
}

// UpdateInterface applies fn to the interface with the given id and returns whether it existed.
func (f *FakeSystem) UpdateInterface(id networking.InterfaceID, fn func(info *networking.InterfaceInfo)) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.interfaces {
		if f.interfaces[i].ID == id {
			fn(&f.interfaces[i])
			return true
		}
	}
	return false
}

// Entries returns a copy of the forwarding table for family.
func (f *FakeSystem) Entries(family networking.Family) []networking.ForwardEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]networking.ForwardEntry(nil), f.tables[family]...)
}

// EntriesFor returns the entries whose destination equals prefix.
func (f *FakeSystem) EntriesFor(prefix netip.Prefix) []networking.ForwardEntry {
	family := networking.FamilyOfPrefix(prefix)

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []networking.ForwardEntry
	for _, e := range f.tables[family] {
		if e.Destination == prefix {
			out = append(out, e)
		}
	}
	return out
}

// InsertEntry puts an entry into the table without notifying subscribers.
func (f *FakeSystem) InsertEntry(entry networking.ForwardEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertLocked(entry, sameKey)
}

// SetDefaultRoute replaces every gatewayed default route of family with one via gateway
// on iface and notifies route subscribers of the removal and the addition.
func (f *FakeSystem) SetDefaultRoute(family networking.Family, iface networking.InterfaceID, gateway netip.Addr, metric uint32) {
	entry := networking.ForwardEntry{
		Destination: family.DefaultPrefix(),
		Interface:   iface,
		Gateway:     gateway,
		Metric:      metric,
	}

	f.mu.Lock()
	removed := f.removeDefaultsLocked(family)
	f.upsertLocked(entry, sameKey)
	f.mu.Unlock()

	for _, e := range removed {
		f.FireRouteChange(networking.RouteChange{Type: networking.NotifyDelete, Entry: e})
	}
	f.FireRouteChange(networking.RouteChange{Type: networking.NotifyAdd, Entry: entry})
}

// RemoveDefaultRoute removes every gatewayed default route of family and notifies subscribers.
func (f *FakeSystem) RemoveDefaultRoute(family networking.Family) {
	f.mu.Lock()
	removed := f.removeDefaultsLocked(family)
	f.mu.Unlock()

	for _, e := range removed {
		f.FireRouteChange(networking.RouteChange{Type: networking.NotifyDelete, Entry: e})
	}
}

func (f *FakeSystem) removeDefaultsLocked(family networking.Family) []networking.ForwardEntry {
	var kept, removed []networking.ForwardEntry
	for _, e := range f.tables[family] {
		if e.IsDefault() && e.HasGateway() {
			removed = append(removed, e)
		} else {
			kept = append(kept, e)
		}
	}
	f.tables[family] = kept
	return removed
}

func sameKey(a, b networking.ForwardEntry) bool {
	return a.Destination == b.Destination && a.Interface == b.Interface && a.Gateway == b.Gateway
}

// sameRouteKey matches the kernel's route identity in a single table: destination and priority.
func sameRouteKey(a, b networking.ForwardEntry) bool {
	return a.Destination == b.Destination && a.Metric == b.Metric
}

// matchesDelete reports whether a delete request for want removes e. The next hop has to
// match too, so deleting a replaced route leaves its replacement alone.
func matchesDelete(e, want networking.ForwardEntry) bool {
	return sameKey(e, want) && e.Metric == want.Metric
}

func (f *FakeSystem) upsertLocked(entry networking.ForwardEntry, same func(a, b networking.ForwardEntry) bool) {
	family := entry.Family()
	for i, e := range f.tables[family] {
		if same(e, entry) {
			f.tables[family][i] = entry
			return
		}
	}
	f.tables[family] = append(f.tables[family], entry)
}

// ForwardTable implements networking.RouteTable.
func (f *FakeSystem) ForwardTable(family networking.Family) ([]networking.ForwardEntry, error) {
	if f.ForwardTableFunc != nil {
		return f.ForwardTableFunc(family)
	}
	return f.Entries(family), nil
}

// Create implements networking.RouteTable.
func (f *FakeSystem) Create(entry networking.ForwardEntry) error {
	f.mu.Lock()
	f.CreateCalls++
	hook := f.CreateFunc
	f.mu.Unlock()

	if hook != nil {
		if err := hook(entry); err != nil {
			return errors.NewRouteTableError(fmt.Sprintf("failed to add route [%v]", entry), err)
		}
	}

	f.mu.Lock()
	f.upsertLocked(entry, sameRouteKey)
	f.mu.Unlock()

	f.FireRouteChange(networking.RouteChange{Type: networking.NotifyAdd, Entry: entry})
	return nil
}

// Delete implements networking.RouteTable. Missing entries are not an error.
func (f *FakeSystem) Delete(entry networking.ForwardEntry) error {
	f.mu.Lock()
	f.DeleteCalls++
	hook := f.DeleteFunc
	f.mu.Unlock()

	if hook != nil {
		if err := hook(entry); err != nil {
			return errors.NewRouteTableError(fmt.Sprintf("failed to delete route [%v]", entry), err)
		}
	}

	family := entry.Family()
	found := false

	f.mu.Lock()
	for i, e := range f.tables[family] {
		if matchesDelete(e, entry) {
			f.tables[family] = append(f.tables[family][:i:i], f.tables[family][i+1:]...)
			found = true
			break
		}
	}
	f.mu.Unlock()

	if found {
		f.FireRouteChange(networking.RouteChange{Type: networking.NotifyDelete, Entry: entry})
	}
	return nil
}

// Interfaces implements networking.InterfaceTable.
func (f *FakeSystem) Interfaces(family networking.Family) ([]networking.InterfaceInfo, error) {
	if f.InterfacesFunc != nil {
		return f.InterfacesFunc(family)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]networking.InterfaceInfo, 0, len(f.interfaces))
	for _, info := range f.interfaces {
		out = append(out, forFamily(info, family))
	}
	return out, nil
}

// InterfaceByID implements networking.InterfaceTable.
func (f *FakeSystem) InterfaceByID(family networking.Family, id networking.InterfaceID) (networking.InterfaceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, info := range f.interfaces {
		if info.ID == id {
			return forFamily(info, family), nil
		}
	}
	return networking.InterfaceInfo{}, errors.New(errors.ErrCodeDeviceNameNotFound,
		fmt.Sprintf("no interface with id %s", id))
}

// InterfaceIDByAlias implements networking.InterfaceTable.
func (f *FakeSystem) InterfaceIDByAlias(alias string) (networking.InterfaceID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, info := range f.interfaces {
		if info.Name == alias {
			return info.ID, nil
		}
	}
	return 0, errors.New(errors.ErrCodeDeviceNameNotFound, fmt.Sprintf("no interface named %q", alias))
}

func forFamily(info networking.InterfaceInfo, family networking.Family) networking.InterfaceInfo {
	var gateways []netip.Addr
	for _, gw := range info.Gateways {
		if networking.FamilyOf(gw) == family {
			gateways = append(gateways, gw)
		}
	}
	info.Gateways = gateways
	return info
}

// SubscribeRouteChanges implements networking.ChangeNotifier.
func (f *FakeSystem) SubscribeRouteChanges(family networking.Family, cb func(networking.RouteChange)) (networking.Subscription, error) {
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.routeSubs[id] = routeSub{family: family, cb: cb}
	return &fakeSubscription{close: func() { f.unsubscribe(id) }}, nil
}

// SubscribeInterfaceChanges implements networking.ChangeNotifier.
func (f *FakeSystem) SubscribeInterfaceChanges(family networking.Family, cb func(networking.InterfaceChange)) (networking.Subscription, error) {
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.ifaceSubs[id] = ifaceSub{family: family, cb: cb}
	return &fakeSubscription{close: func() { f.unsubscribe(id) }}, nil
}

// SubscribeAddressChanges implements networking.ChangeNotifier.
func (f *FakeSystem) SubscribeAddressChanges(family networking.Family, cb func(networking.AddressChange)) (networking.Subscription, error) {
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.addrSubs[id] = addrSub{family: family, cb: cb}
	return &fakeSubscription{close: func() { f.unsubscribe(id) }}, nil
}

func (f *FakeSystem) unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.routeSubs, id)
	delete(f.ifaceSubs, id)
	delete(f.addrSubs, id)
}

// SubscriptionCount returns the number of open subscriptions.
func (f *FakeSystem) SubscriptionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.routeSubs) + len(f.ifaceSubs) + len(f.addrSubs)
}

// FireRouteChange delivers change synchronously to route subscribers of its family.
func (f *FakeSystem) FireRouteChange(change networking.RouteChange) {
	f.fireRouteChange(change.Entry.Family(), change)
}

// FireResync tells route subscribers of family that notifications may have been lost, like a
// restored netlink subscription does.
func (f *FakeSystem) FireResync(family networking.Family) {
	f.fireRouteChange(family, networking.RouteChange{Type: networking.NotifyResync})
}

func (f *FakeSystem) fireRouteChange(family networking.Family, change networking.RouteChange) {
	f.mu.Lock()
	var cbs []func(networking.RouteChange)
	for _, s := range f.routeSubs {
		if s.family == family {
			cbs = append(cbs, s.cb)
		}
	}
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(change)
	}
}

// FireInterfaceChange delivers change synchronously to interface subscribers of family.
func (f *FakeSystem) FireInterfaceChange(family networking.Family, change networking.InterfaceChange) {
	f.mu.Lock()
	var cbs []func(networking.InterfaceChange)
	for _, s := range f.ifaceSubs {
		if s.family == family {
			cbs = append(cbs, s.cb)
		}
	}
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(change)
	}
}

// FireAddressChange delivers change synchronously to address subscribers of its family.
func (f *FakeSystem) FireAddressChange(change networking.AddressChange) {
	family := networking.FamilyOf(change.Address)

	f.mu.Lock()
	var cbs []func(networking.AddressChange)
	for _, s := range f.addrSubs {
		if s.family == family {
			cbs = append(cbs, s.cb)
		}
	}
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(change)
	}
}

type fakeSubscription struct {
	once  sync.Once
	close func()
}

func (s *fakeSubscription) Close() error {
	s.once.Do(s.close)
	return nil
}
