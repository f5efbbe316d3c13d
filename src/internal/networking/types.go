package networking

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Family is an IP address family.
type Family int

const (
	FamilyV4 Family = 4
	FamilyV6 Family = 6
)

// Families lists the supported address families in evaluation order.
var Families = []Family{FamilyV4, FamilyV6}

func (f Family) String() string {
	switch f {
	case FamilyV4:
		return "ipv4"
	case FamilyV6:
		return "ipv6"
	default:
		return "family(" + strconv.Itoa(int(f)) + ")"
	}
}

// Valid reports whether f is FamilyV4 or FamilyV6.
func (f Family) Valid() bool {
	return f == FamilyV4 || f == FamilyV6
}

// FamilyOf returns the family of addr. IPv4-mapped IPv6 addresses count as IPv4.
func FamilyOf(addr netip.Addr) Family {
	if addr.Unmap().Is4() {
		return FamilyV4
	}
	return FamilyV6
}

// FamilyOfPrefix returns the family of a destination prefix.
func FamilyOfPrefix(p netip.Prefix) Family {
	return FamilyOf(p.Addr())
}

// ParseFamily accepts "4", "6", "ipv4" and "ipv6".
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "4", "ipv4", "inet":
		return FamilyV4, nil
	case "6", "ipv6", "inet6":
		return FamilyV6, nil
	}
	return 0, fmt.Errorf("unknown address family %q", s)
}

// DefaultPrefix returns 0.0.0.0/0 or ::/0.
func (f Family) DefaultPrefix() netip.Prefix {
	if f == FamilyV6 {
		return netip.PrefixFrom(netip.IPv6Unspecified(), 0)
	}
	return netip.PrefixFrom(netip.IPv4Unspecified(), 0)
}

// InterfaceID is a stable OS-assigned interface handle, distinct from its alias.
type InterfaceID uint64

const encodedIDPrefix = "?"

// Encode renders the id in its alias-independent string form, "?" + 16 hex digits.
func (id InterfaceID) Encode() string {
	return fmt.Sprintf("%s%016x", encodedIDPrefix, uint64(id))
}

func (id InterfaceID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseEncodedInterfaceID parses the output of InterfaceID.Encode.
func ParseEncodedInterfaceID(s string) (InterfaceID, bool) {
	if len(s) != len(encodedIDPrefix)+16 || !strings.HasPrefix(s, encodedIDPrefix) {
		return 0, false
	}
	v, err := strconv.ParseUint(s[len(encodedIDPrefix):], 16, 64)
	if err != nil {
		return 0, false
	}
	return InterfaceID(v), true
}

// ForwardEntry is one row of the OS forwarding table.
type ForwardEntry struct {
	Destination netip.Prefix
	Interface   InterfaceID
	// Gateway is the next hop. The zero value means on-link.
	Gateway netip.Addr
	Metric  uint32
}

// Family returns the address family of the destination.
func (e ForwardEntry) Family() Family {
	return FamilyOfPrefix(e.Destination)
}

// HasGateway reports whether the entry goes through a router rather than on-link.
func (e ForwardEntry) HasGateway() bool {
	return e.Gateway.IsValid() && !e.Gateway.IsUnspecified()
}

// IsDefault reports whether the destination has prefix length zero.
func (e ForwardEntry) IsDefault() bool {
	return e.Destination.IsValid() && e.Destination.Bits() == 0
}

func (e ForwardEntry) String() string {
	via := "on-link"
	if e.HasGateway() {
		via = e.Gateway.String()
	}
	return fmt.Sprintf("%s via %s dev %s metric %d", e.Destination, via, e.Interface, e.Metric)
}

// InterfaceInfo describes one network interface for a given address family.
type InterfaceInfo struct {
	ID    InterfaceID
	Name  string
	Index int
	MTU   int
	// Metric is the interface cost added to route metrics. Always 0 on Linux.
	Metric uint32
	// Up is the administrative state.
	Up bool
	// Connected is the operational state: carrier present and able to pass traffic.
	Connected bool
	Loopback  bool
	// Virtual marks tunnels, bridges and other software interfaces that never carry
	// the physical default route.
	Virtual     bool
	IPv4Enabled bool
	IPv6Enabled bool
	// Gateways are the next hops of routes through this interface.
	Gateways []netip.Addr
}

// Enabled reports whether the interface is configured for f.
func (i InterfaceInfo) Enabled(f Family) bool {
	if f == FamilyV6 {
		return i.IPv6Enabled
	}
	return i.IPv4Enabled
}

// HasGateway reports whether gw is among the interface's gateways.
func (i InterfaceInfo) HasGateway(gw netip.Addr) bool {
	gw = gw.Unmap()
	for _, g := range i.Gateways {
		if g.Unmap() == gw {
			return true
		}
	}
	return false
}

// NotificationType tags an OS change notification.
type NotificationType int

const (
	NotifyAdd NotificationType = iota
	NotifyDelete
	NotifyParameterChange
	// NotifyResync carries no change. Notifications may have been lost before it, so the
	// receiver has to re-read OS state.
	NotifyResync
)

func (t NotificationType) String() string {
	switch t {
	case NotifyAdd:
		return "add"
	case NotifyDelete:
		return "delete"
	case NotifyParameterChange:
		return "parameter-change"
	case NotifyResync:
		return "resync"
	default:
		return "unknown"
	}
}

// RouteChange reports an added, removed or modified forwarding entry.
type RouteChange struct {
	Type  NotificationType
	Entry ForwardEntry
}

// InterfaceChange reports a change of interface state.
type InterfaceChange struct {
	Type      NotificationType
	Interface InterfaceID
}

// AddressChange reports a unicast address change on an interface.
type AddressChange struct {
	Type      NotificationType
	Interface InterfaceID
	Address   netip.Addr
}
