package routing

import (
	"bytes"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maksimkurb/tunroute/src/internal/burstguard"
	"github.com/maksimkurb/tunroute/src/internal/log"
	"github.com/maksimkurb/tunroute/src/internal/mocks"
	"github.com/maksimkurb/tunroute/src/internal/networking"
	"github.com/stretchr/testify/require"
)

const (
	ethID  networking.InterfaceID = 2
	wlanID networking.InterfaceID = 3
	wgID   networking.InterfaceID = 5
)

var (
	ethGateway  = netip.MustParseAddr("192.168.1.1")
	wlanGateway = netip.MustParseAddr("192.168.2.1")
	lanGateway  = netip.MustParseAddr("192.168.1.254")

	fastBurst = burstguard.Config{BufferPeriod: 10 * time.Millisecond, LongestBufferPeriod: 50 * time.Millisecond}
)

// newTopology returns a system with eth0 carrying the IPv4 default route, a connected
// wlan0 with its own gateway and a wireguard tunnel.
func newTopology() *mocks.FakeSystem {
	sys := mocks.NewFakeSystem()
	sys.AddInterface(networking.InterfaceInfo{
		ID: 1, Name: "lo", Index: 1, MTU: 65536, Up: true, Connected: true, Loopback: true,
		IPv4Enabled: true, IPv6Enabled: true,
	})
	sys.AddInterface(networking.InterfaceInfo{
		ID: ethID, Name: "eth0", Index: 2, MTU: 1500, Up: true, Connected: true,
		IPv4Enabled: true, Gateways: []netip.Addr{ethGateway, lanGateway},
	})
	sys.AddInterface(networking.InterfaceInfo{
		ID: wlanID, Name: "wlan0", Index: 3, MTU: 1400, Up: true, Connected: true,
		IPv4Enabled: true, Gateways: []netip.Addr{wlanGateway},
	})
	sys.AddInterface(networking.InterfaceInfo{
		ID: wgID, Name: "wg0", Index: 5, MTU: 1380, Up: true, Connected: true, Virtual: true,
		IPv4Enabled: true, IPv6Enabled: true,
	})
	sys.InsertEntry(networking.ForwardEntry{
		Destination: networking.FamilyV4.DefaultPrefix(),
		Interface:   ethID,
		Gateway:     ethGateway,
		Metric:      100,
	})
	sys.InsertEntry(networking.ForwardEntry{
		Destination: networking.FamilyV4.DefaultPrefix(),
		Interface:   wlanID,
		Gateway:     wlanGateway,
		Metric:      600,
	})
	return sys
}

func newTestManager(t *testing.T, sys *mocks.FakeSystem) *RouteManager {
	t.Helper()
	m, err := NewRouteManager(sys, Options{BurstGuard: fastBurst})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func prefix(s string) netip.Prefix {
	return netip.MustParsePrefix(s)
}

// syncBuffer collects log output written from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Contains(s string) bool {
	return strings.Contains(b.String(), s)
}

func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	restore := log.SetOutput(buf, buf)
	t.Cleanup(restore)
	return buf
}

// eventRecorder collects default route events.
type eventRecorder struct {
	mu     sync.Mutex
	events []DefaultRouteEvent
}

func (r *eventRecorder) record(e DefaultRouteEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) snapshot() []DefaultRouteEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DefaultRouteEvent(nil), r.events...)
}

func (r *eventRecorder) last() (DefaultRouteEvent, bool) {
	events := r.snapshot()
	if len(events) == 0 {
		return DefaultRouteEvent{}, false
	}
	return events[len(events)-1], true
}
