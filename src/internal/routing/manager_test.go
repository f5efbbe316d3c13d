package routing

import (
	stderrors "errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maksimkurb/tunroute/src/internal/errors"
	"github.com/maksimkurb/tunroute/src/internal/networking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteManager_AddRouteInstallsResolvedEntry(t *testing.T) {
	tests := []struct {
		name string
		spec RouteSpec
		want networking.ForwardEntry
	}{
		{
			name: "unspecified follows default route",
			spec: RouteSpec{Network: prefix("10.0.0.0/8")},
			want: networking.ForwardEntry{Destination: prefix("10.0.0.0/8"), Interface: ethID, Gateway: ethGateway},
		},
		{
			name: "device is on-link",
			spec: RouteSpec{Network: prefix("0.0.0.0/1"), Node: DeviceNode("wg0")},
			want: networking.ForwardEntry{Destination: prefix("0.0.0.0/1"), Interface: wgID},
		},
		{
			name: "encoded device id",
			spec: RouteSpec{Network: prefix("128.0.0.0/1"), Node: DeviceNode("?0000000000000005")},
			want: networking.ForwardEntry{Destination: prefix("128.0.0.0/1"), Interface: wgID},
		},
		{
			name: "device and gateway",
			spec: RouteSpec{Network: prefix("172.16.0.0/12"), Node: DeviceGatewayNode("eth0", lanGateway)},
			want: networking.ForwardEntry{Destination: prefix("172.16.0.0/12"), Interface: ethID, Gateway: lanGateway},
		},
		{
			name: "gateway",
			spec: RouteSpec{Network: prefix("198.51.100.0/24"), Node: GatewayNode(wlanGateway)},
			want: networking.ForwardEntry{Destination: prefix("198.51.100.0/24"), Interface: wlanID, Gateway: wlanGateway},
		},
		{
			name: "network is masked",
			spec: RouteSpec{Network: prefix("10.1.2.3/8")},
			want: networking.ForwardEntry{Destination: prefix("10.0.0.0/8"), Interface: ethID, Gateway: ethGateway},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := newTopology()
			m := newTestManager(t, sys)

			require.NoError(t, m.AddRoute(tt.spec))

			assert.Equal(t, []networking.ForwardEntry{tt.want}, sys.EntriesFor(tt.want.Destination))
			require.Len(t, m.Routes(), 1)
			assert.Equal(t, tt.want.Destination, m.Routes()[0].Registered.Network)
		})
	}
}

func TestRouteManager_LastWriteWins(t *testing.T) {
	sys := newTopology()
	m := newTestManager(t, sys)
	network := prefix("10.0.0.0/8")

	require.NoError(t, m.AddRoutes([]RouteSpec{
		{Network: network},
		{Network: network, Node: DeviceNode("wg0")},
	}))
	require.NoError(t, m.AddRoutes([]RouteSpec{{Network: network, Node: GatewayNode(wlanGateway)}}))

	assert.Equal(t, []networking.ForwardEntry{
		{Destination: network, Interface: wlanID, Gateway: wlanGateway},
	}, sys.EntriesFor(network))

	records := m.Routes()
	require.Len(t, records, 1)
	assert.Equal(t, NodeByGateway, records[0].Spec.Node.Kind())
}

func TestRouteManager_DeleteRoundTrip(t *testing.T) {
	sys := newTopology()
	m := newTestManager(t, sys)

	require.NoError(t, m.AddRoutes([]RouteSpec{
		{Network: prefix("10.0.0.0/8")},
		{Network: prefix("192.0.2.0/24"), Node: DeviceNode("wg0")},
	}))
	require.Len(t, m.Routes(), 2)

	require.NoError(t, m.DeleteRoute(RouteSpec{Network: prefix("10.0.0.0/8")}))

	assert.Empty(t, sys.EntriesFor(prefix("10.0.0.0/8")))
	assert.Len(t, sys.EntriesFor(prefix("192.0.2.0/24")), 1)
	require.Len(t, m.Routes(), 1)
	assert.Equal(t, prefix("192.0.2.0/24"), m.Routes()[0].Spec.Network)
}

func TestRouteManager_DeleteUnregisteredIsNoop(t *testing.T) {
	logs := captureLogs(t)
	sys := newTopology()
	m := newTestManager(t, sys)
	before := sys.Entries(networking.FamilyV4)

	require.NoError(t, m.DeleteRoute(RouteSpec{Network: prefix("10.0.0.0/8")}))
	require.NoError(t, m.DeleteRoutes([]RouteSpec{{Network: prefix("10.0.0.0/8")}}))

	assert.Equal(t, before, sys.Entries(networking.FamilyV4))
	assert.Zero(t, sys.DeleteCalls)
	assert.True(t, logs.Contains("[WRN]"))
	assert.True(t, logs.Contains("not registered"))
}

func TestRouteManager_DeleteRouteAlreadyGoneFromTable(t *testing.T) {
	sys := newTopology()
	m := newTestManager(t, sys)
	network := prefix("10.0.0.0/8")

	require.NoError(t, m.AddRoute(RouteSpec{Network: network}))
	// Removed behind our back.
	require.NoError(t, sys.Delete(sys.EntriesFor(network)[0]))

	require.NoError(t, m.DeleteRoute(RouteSpec{Network: network}))
	assert.Empty(t, m.Routes())
}

func TestRouteManager_BatchAtomicityOnResolutionFailure(t *testing.T) {
	sys := newTopology()
	m := newTestManager(t, sys)

	require.NoError(t, m.AddRoutes([]RouteSpec{
		{Network: prefix("10.0.0.0/8")},
		{Network: prefix("192.0.2.0/24"), Node: DeviceNode("wg0")},
	}))
	tableBefore := sys.Entries(networking.FamilyV4)
	recordsBefore := m.Routes()

	err := m.AddRoutes([]RouteSpec{
		{Network: prefix("198.51.100.0/24"), Node: DeviceNode("wg0")},
		{Network: prefix("10.0.0.0/8"), Node: GatewayNode(wlanGateway)},
		{Network: prefix("203.0.113.0/24"), Node: DeviceNode("eth9")},
		{Network: prefix("100.64.0.0/10")},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDeviceNameNotFound)
	assert.ElementsMatch(t, tableBefore, sys.Entries(networking.FamilyV4))
	assert.Equal(t, recordsBefore, m.Routes())
}

func TestRouteManager_BatchAtomicityOnCreateFailure(t *testing.T) {
	sys := newTopology()
	m := newTestManager(t, sys)

	require.NoError(t, m.AddRoute(RouteSpec{Network: prefix("10.0.0.0/8")}))
	tableBefore := sys.Entries(networking.FamilyV4)
	recordsBefore := m.Routes()

	sys.CreateFunc = func(entry networking.ForwardEntry) error {
		if entry.Destination == prefix("203.0.113.0/24") {
			return stderrors.New("network is unreachable")
		}
		return nil
	}

	err := m.AddRoutes([]RouteSpec{
		{Network: prefix("198.51.100.0/24"), Node: DeviceNode("wg0")},
		{Network: prefix("10.0.0.0/8"), Node: DeviceNode("wg0")},
		{Network: prefix("203.0.113.0/24"), Node: DeviceNode("wg0")},
	})

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRouteTable, errors.CodeOf(err))
	assert.ElementsMatch(t, tableBefore, sys.Entries(networking.FamilyV4))
	assert.Equal(t, recordsBefore, m.Routes())
}

func TestRouteManager_RollbackContinuesPastFailures(t *testing.T) {
	logs := captureLogs(t)
	sys := newTopology()
	m := newTestManager(t, sys)

	stuck := prefix("198.51.100.0/24")
	sys.CreateFunc = func(entry networking.ForwardEntry) error {
		if entry.Destination == prefix("203.0.113.0/24") {
			return stderrors.New("network is unreachable")
		}
		return nil
	}
	sys.DeleteFunc = func(entry networking.ForwardEntry) error {
		if entry.Destination == stuck {
			return stderrors.New("operation not permitted")
		}
		return nil
	}

	err := m.AddRoutes([]RouteSpec{
		{Network: stuck, Node: DeviceNode("wg0")},
		{Network: prefix("192.0.2.0/24"), Node: DeviceNode("wg0")},
		{Network: prefix("203.0.113.0/24"), Node: DeviceNode("wg0")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network is unreachable", "the triggering error is returned")

	assert.True(t, logs.Contains("Failed to roll back route"))
	// The later entry was still rolled back.
	assert.Empty(t, sys.EntriesFor(prefix("192.0.2.0/24")))
	// The one that could not be removed is still owned.
	assert.Len(t, sys.EntriesFor(stuck), 1)
	require.Len(t, m.Routes(), 1)
	assert.Equal(t, stuck, m.Routes()[0].Spec.Network)
}

func TestRouteManager_AddRouteRestoresEvictedRoute(t *testing.T) {
	sys := newTopology()
	m := newTestManager(t, sys)
	network := prefix("10.0.0.0/8")

	require.NoError(t, m.AddRoute(RouteSpec{Network: network}))
	recordsBefore := m.Routes()

	sys.CreateFunc = func(entry networking.ForwardEntry) error {
		if entry.Interface == wgID {
			return stderrors.New("no buffer space available")
		}
		return nil
	}

	err := m.AddRoute(RouteSpec{Network: network, Node: DeviceNode("wg0")})
	require.Error(t, err)

	assert.Equal(t, []networking.ForwardEntry{
		{Destination: network, Interface: ethID, Gateway: ethGateway},
	}, sys.EntriesFor(network))
	assert.Equal(t, recordsBefore, m.Routes())
}

func TestRouteManager_DeleteRoutesRollsBack(t *testing.T) {
	sys := newTopology()
	m := newTestManager(t, sys)

	require.NoError(t, m.AddRoutes([]RouteSpec{
		{Network: prefix("10.0.0.0/8")},
		{Network: prefix("192.0.2.0/24"), Node: DeviceNode("wg0")},
	}))
	tableBefore := sys.Entries(networking.FamilyV4)
	recordsBefore := m.Routes()

	sys.DeleteFunc = func(entry networking.ForwardEntry) error {
		if entry.Destination == prefix("192.0.2.0/24") {
			return stderrors.New("operation not permitted")
		}
		return nil
	}

	err := m.DeleteRoutes([]RouteSpec{{Network: prefix("10.0.0.0/8")}, {Network: prefix("192.0.2.0/24")}})
	require.Error(t, err)
	assert.ElementsMatch(t, tableBefore, sys.Entries(networking.FamilyV4))
	assert.Equal(t, recordsBefore, m.Routes())
}

func TestRouteManager_ValidationErrors(t *testing.T) {
	sys := newTopology()
	m := newTestManager(t, sys)

	tests := []struct {
		name string
		spec RouteSpec
	}{
		{name: "invalid network", spec: RouteSpec{}},
		{name: "gateway family mismatch", spec: RouteSpec{Network: prefix("10.0.0.0/8"), Node: GatewayNode(netip.MustParseAddr("fe80::1"))}},
		{name: "unspecified gateway", spec: RouteSpec{Network: prefix("10.0.0.0/8"), Node: GatewayNode(netip.IPv4Unspecified())}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.AddRoute(tt.spec)
			assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
			assert.Zero(t, sys.CreateCalls)
		})
	}
}

func TestRouteManager_NoDefaultRoute(t *testing.T) {
	sys := newTopology()
	sys.RemoveDefaultRoute(networking.FamilyV4)
	m := newTestManager(t, sys)

	err := m.AddRoute(RouteSpec{Network: prefix("10.0.0.0/8")})
	assert.ErrorIs(t, err, errors.ErrNoDefaultRoute)

	err = m.AddRoute(RouteSpec{Network: prefix("2001:db8::/32")})
	assert.ErrorIs(t, err, errors.ErrNoDefaultRoute, "ipv6 monitoring is disabled")

	_, err = m.RouteMTU(networking.FamilyV4)
	assert.ErrorIs(t, err, errors.ErrNoDefaultRoute)
	assert.Zero(t, sys.CreateCalls)
}

func TestRouteManager_RouteMTU(t *testing.T) {
	sys := newTopology()
	m := newTestManager(t, sys)

	mtu, err := m.RouteMTU(networking.FamilyV4)
	require.NoError(t, err)
	assert.Equal(t, 1500, mtu)
}

func TestRouteManager_ClearRoutesKeepsMonitoring(t *testing.T) {
	sys := newTopology()
	m := newTestManager(t, sys)

	require.NoError(t, m.AddRoutes([]RouteSpec{
		{Network: prefix("10.0.0.0/8")},
		{Network: prefix("192.0.2.0/24"), Node: DeviceNode("wg0")},
	}))

	require.NoError(t, m.ClearRoutes())
	assert.Empty(t, m.Routes())
	assert.Empty(t, sys.EntriesFor(prefix("10.0.0.0/8")))
	assert.Empty(t, sys.EntriesFor(prefix("192.0.2.0/24")))
	assert.Equal(t, 3, sys.SubscriptionCount())

	require.NoError(t, m.AddRoute(RouteSpec{Network: prefix("10.0.0.0/8")}))
}

func TestRouteManager_ClearRoutesReportsFailures(t *testing.T) {
	sys := newTopology()
	m := newTestManager(t, sys)

	require.NoError(t, m.AddRoute(RouteSpec{Network: prefix("10.0.0.0/8")}))
	sys.DeleteFunc = func(networking.ForwardEntry) error { return stderrors.New("operation not permitted") }

	err := m.ClearRoutes()
	assert.Equal(t, errors.ErrCodeRouteTable, errors.CodeOf(err))
	assert.Empty(t, m.Routes())
}

func TestRouteManager_Close(t *testing.T) {
	logs := captureLogs(t)
	sys := newTopology()
	m, err := NewRouteManager(sys, Options{BurstGuard: fastBurst, EnableIPv6: true})
	require.NoError(t, err)
	assert.Equal(t, 6, sys.SubscriptionCount())

	require.NoError(t, m.AddRoutes([]RouteSpec{
		{Network: prefix("10.0.0.0/8")},
		{Network: prefix("192.0.2.0/24"), Node: DeviceNode("wg0")},
		{Network: prefix("198.51.100.0/24"), Node: DeviceNode("wg0")},
	}))
	sys.DeleteFunc = func(entry networking.ForwardEntry) error {
		if entry.Destination == prefix("192.0.2.0/24") {
			return stderrors.New("operation not permitted")
		}
		return nil
	}

	m.Close()
	m.Close()

	assert.Zero(t, sys.SubscriptionCount())
	assert.Empty(t, sys.EntriesFor(prefix("10.0.0.0/8")))
	assert.Empty(t, sys.EntriesFor(prefix("198.51.100.0/24")))
	assert.True(t, logs.Contains("[ERR]"))

	assert.ErrorIs(t, m.AddRoute(RouteSpec{Network: prefix("10.0.0.0/8")}), errors.ErrManagerClosed)
	assert.ErrorIs(t, m.DeleteRoute(RouteSpec{Network: prefix("10.0.0.0/8")}), errors.ErrManagerClosed)
}

func TestRouteManager_NewFailsWhenMonitorFails(t *testing.T) {
	sys := newTopology()
	sys.SubscribeErr = errors.NewSubscribeError("denied", nil)

	_, err := NewRouteManager(sys, Options{BurstGuard: fastBurst, EnableIPv6: true})
	require.Error(t, err)
	assert.Zero(t, sys.SubscriptionCount())
}

func TestRouteManager_DefaultRouteReactivity(t *testing.T) {
	logs := captureLogs(t)
	sys := newTopology()
	m := newTestManager(t, sys)

	followed := prefix("10.0.0.0/8")
	pinned := prefix("198.51.100.0/24")
	pinnedGateway := lanGateway

	require.NoError(t, m.AddRoutes([]RouteSpec{
		{Network: followed},
		{Network: pinned, Node: GatewayNode(pinnedGateway)},
	}))
	assert.Equal(t, []networking.ForwardEntry{
		{Destination: followed, Interface: ethID, Gateway: ethGateway},
	}, sys.EntriesFor(followed))

	var createdOnEmpty, deletedBeforeCreate, deletedOld atomic.Bool
	sys.CreateFunc = func(entry networking.ForwardEntry) error {
		if entry.Destination == followed && len(sys.EntriesFor(followed)) == 0 {
			createdOnEmpty.Store(true)
		}
		return nil
	}
	sys.DeleteFunc = func(entry networking.ForwardEntry) error {
		if entry.Destination != followed {
			return nil
		}
		deletedOld.Store(entry.Interface == ethID)
		got := sys.EntriesFor(followed)
		if len(got) == 0 || got[0].Interface != wlanID {
			deletedBeforeCreate.Store(true)
		}
		return nil
	}

	sys.SetDefaultRoute(networking.FamilyV4, wlanID, wlanGateway, 100)

	want := []networking.ForwardEntry{{Destination: followed, Interface: wlanID, Gateway: wlanGateway}}
	require.Eventually(t, func() bool {
		got := sys.EntriesFor(followed)
		return len(got) == 1 && got[0] == want[0] && deletedOld.Load()
	}, time.Second, 5*time.Millisecond)

	assert.False(t, createdOnEmpty.Load(), "network must not be left without a route")
	assert.False(t, deletedBeforeCreate.Load(), "old route must be removed only after the new one is in place")
	assert.Equal(t, []networking.ForwardEntry{
		{Destination: pinned, Interface: ethID, Gateway: pinnedGateway},
	}, sys.EntriesFor(pinned))
	assert.True(t, logs.Contains("Best default route has changed. Refreshing dependent routes"))

	records := m.Routes()
	require.Len(t, records, 2)
	assert.Equal(t, wlanID, records[0].Registered.Interface)
	assert.Equal(t, ethID, records[1].Registered.Interface)
}

func TestRouteManager_RefreshFailureKeepsPreviousRoute(t *testing.T) {
	logs := captureLogs(t)
	sys := newTopology()
	m := newTestManager(t, sys)

	first, second := prefix("10.0.0.0/8"), prefix("100.64.0.0/10")
	require.NoError(t, m.AddRoutes([]RouteSpec{{Network: first}, {Network: second}}))

	sys.CreateFunc = func(entry networking.ForwardEntry) error {
		if entry.Destination == first && entry.Interface == wlanID {
			return stderrors.New("no buffer space available")
		}
		return nil
	}
	var deletedFirst atomic.Bool
	sys.DeleteFunc = func(entry networking.ForwardEntry) error {
		if entry.Destination == first {
			deletedFirst.Store(true)
		}
		return nil
	}
	sys.SetDefaultRoute(networking.FamilyV4, wlanID, wlanGateway, 100)

	require.Eventually(t, func() bool {
		got := sys.EntriesFor(second)
		return len(got) == 1 && got[0].Interface == wlanID
	}, time.Second, 5*time.Millisecond)

	assert.True(t, logs.Contains("Failed to add route 10.0.0.0/8 via 192.168.2.1 dev 3 metric 0 when refreshing existing routes"))
	assert.False(t, deletedFirst.Load(), "installed route must stay when its replacement fails")
	assert.Equal(t, []networking.ForwardEntry{
		{Destination: first, Interface: ethID, Gateway: ethGateway},
	}, sys.EntriesFor(first))

	records := m.Routes()
	require.Len(t, records, 2)
	assert.Equal(t, ethID, records[0].Registered.Interface)
	assert.Equal(t, wlanID, records[1].Registered.Interface)
}

func TestRouteManager_RemovedEventLeavesRoutes(t *testing.T) {
	sys := newTopology()
	m := newTestManager(t, sys)

	rec := &eventRecorder{}
	m.RegisterDefaultRouteChangedCallback(rec.record)

	require.NoError(t, m.AddRoute(RouteSpec{Network: prefix("10.0.0.0/8")}))
	sys.RemoveDefaultRoute(networking.FamilyV4)

	require.Eventually(t, func() bool {
		last, ok := rec.last()
		return ok && last.Type == EventRemoved
	}, time.Second, 5*time.Millisecond)

	assert.Len(t, sys.EntriesFor(prefix("10.0.0.0/8")), 1)
	_, ok := m.DefaultRoute(networking.FamilyV4)
	assert.False(t, ok)
}

func TestRouteManager_Callbacks(t *testing.T) {
	logs := captureLogs(t)
	sys := newTopology()
	m := newTestManager(t, sys)

	first, second := &eventRecorder{}, &eventRecorder{}
	h1 := m.RegisterDefaultRouteChangedCallback(first.record)
	m.RegisterDefaultRouteChangedCallback(func(DefaultRouteEvent) { panic("listener bug") })
	m.RegisterDefaultRouteChangedCallback(second.record)
	assert.NotEqual(t, h1.String(), "")

	sys.SetDefaultRoute(networking.FamilyV4, wlanID, wlanGateway, 100)
	require.Eventually(t, func() bool { return len(second.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, DefaultRouteEvent{
		Type:   EventUpdated,
		Family: networking.FamilyV4,
		Route:  ResolvedNode{Interface: wlanID, Gateway: wlanGateway},
	}, first.snapshot()[0])
	assert.True(t, logs.Contains("listener bug"))

	m.UnregisterDefaultRouteChangedCallback(h1)
	m.UnregisterDefaultRouteChangedCallback(h1)
	assert.True(t, logs.Contains("unknown default route callback"))

	sys.SetDefaultRoute(networking.FamilyV4, ethID, ethGateway, 100)
	require.Eventually(t, func() bool { return len(second.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Len(t, first.snapshot(), 1)
}

func TestRouteManager_CallbackMayReenterRegistration(t *testing.T) {
	sys := newTopology()
	m := newTestManager(t, sys)

	registered := make(chan CallbackHandle, 1)
	var self CallbackHandle
	self = m.RegisterDefaultRouteChangedCallback(func(DefaultRouteEvent) {
		m.UnregisterDefaultRouteChangedCallback(self)
		registered <- m.RegisterDefaultRouteChangedCallback(func(DefaultRouteEvent) {})
	})

	sys.SetDefaultRoute(networking.FamilyV4, wlanID, wlanGateway, 100)

	select {
	case <-registered:
	case <-time.After(time.Second):
		t.Fatal("callback did not complete; registration from a callback deadlocked")
	}
	assert.Equal(t, 1, m.callbacks.count())
}

func TestRouteManager_EndToEnd(t *testing.T) {
	sys := newTopology()
	m := newTestManager(t, sys)
	network := prefix("10.0.0.0/8")

	// (a) unspecified route follows (eth0, gw1)
	require.NoError(t, m.AddRoute(RouteSpec{Network: network}))
	require.Equal(t, ethID, sys.EntriesFor(network)[0].Interface)

	// (d) a gateway-bound route added concurrently with the change
	gw3 := netip.MustParseAddr("192.168.3.1")
	sys.AddInterface(networking.InterfaceInfo{
		ID: 4, Name: "eth1", Index: 4, MTU: 1500, Up: true, Connected: true,
		IPv4Enabled: true, Gateways: []netip.Addr{gw3},
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		// (b) the default route moves to (wlan0, gw2)
		sys.SetDefaultRoute(networking.FamilyV4, wlanID, wlanGateway, 100)
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, m.AddRoute(RouteSpec{Network: prefix("203.0.113.0/24"), Node: GatewayNode(gw3)}))
	}()
	wg.Wait()

	// (c) within a debounce window the old entry is replaced by the new one
	require.Eventually(t, func() bool {
		got := sys.EntriesFor(network)
		return len(got) == 1 && got[0].Interface == wlanID && got[0].Gateway == wlanGateway
	}, 200*time.Millisecond, 5*time.Millisecond)

	assert.Equal(t, []networking.ForwardEntry{
		{Destination: prefix("203.0.113.0/24"), Interface: 4, Gateway: gw3},
	}, sys.EntriesFor(prefix("203.0.113.0/24")))
}

func TestRouteManager_ConcurrentUse(t *testing.T) {
	sys := newTopology()
	m := newTestManager(t, sys)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			network := netip.PrefixFrom(netip.AddrFrom4([4]byte{10, byte(i), 0, 0}), 16)
			for j := 0; j < 20; j++ {
				assert.NoError(t, m.AddRoute(RouteSpec{Network: network}))
				if j%2 == 0 {
					assert.NoError(t, m.DeleteRoute(RouteSpec{Network: network}))
				}
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 10; j++ {
			if j%2 == 0 {
				sys.SetDefaultRoute(networking.FamilyV4, wlanID, wlanGateway, 100)
			} else {
				sys.SetDefaultRoute(networking.FamilyV4, ethID, ethGateway, 100)
			}
			time.Sleep(3 * time.Millisecond)
		}
	}()
	wg.Wait()

	require.Eventually(t, func() bool {
		best, ok := m.DefaultRoute(networking.FamilyV4)
		if !ok {
			return false
		}
		for _, r := range m.Routes() {
			if r.Registered.Interface != best.Interface {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)

	assert.Len(t, m.Routes(), 8)
	for _, r := range m.Routes() {
		assert.Len(t, sys.EntriesFor(r.Spec.Network), 1)
	}
}
