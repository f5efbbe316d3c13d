package routing

import (
	"fmt"
	"net/netip"

	"github.com/maksimkurb/tunroute/src/internal/networking"
)

// NodeKind tells how a NodeSpec is resolved.
type NodeKind int

const (
	// NodeUnspecified follows the best default route of the network's family.
	NodeUnspecified NodeKind = iota
	// NodeByDevice routes on-link through a named interface.
	NodeByDevice
	// NodeByDeviceAndGateway routes through a named interface and a given gateway.
	NodeByDeviceAndGateway
	// NodeByGateway routes through whichever interface reaches the gateway.
	NodeByGateway
)

func (k NodeKind) String() string {
	switch k {
	case NodeUnspecified:
		return "unspecified"
	case NodeByDevice:
		return "device"
	case NodeByDeviceAndGateway:
		return "device+gateway"
	case NodeByGateway:
		return "gateway"
	default:
		return "unknown"
	}
}

// NodeSpec is the requested next hop of a route. The zero value is unspecified.
type NodeSpec struct {
	// Device is an interface alias or an encoded interface id ("?" + 16 hex digits).
	Device  string
	Gateway netip.Addr
}

// DeviceNode returns a node bound to an interface with an on-link gateway.
func DeviceNode(device string) NodeSpec {
	return NodeSpec{Device: device}
}

// DeviceGatewayNode returns a node bound to an interface and a gateway.
func DeviceGatewayNode(device string, gateway netip.Addr) NodeSpec {
	return NodeSpec{Device: device, Gateway: gateway}
}

// GatewayNode returns a node bound to a gateway.
func GatewayNode(gateway netip.Addr) NodeSpec {
	return NodeSpec{Gateway: gateway}
}

// Kind returns how the node is resolved.
func (n NodeSpec) Kind() NodeKind {
	hasGateway := n.Gateway.IsValid()
	switch {
	case n.Device != "" && hasGateway:
		return NodeByDeviceAndGateway
	case n.Device != "":
		return NodeByDevice
	case hasGateway:
		return NodeByGateway
	default:
		return NodeUnspecified
	}
}

func (n NodeSpec) String() string {
	switch n.Kind() {
	case NodeByDevice:
		return "dev " + n.Device
	case NodeByDeviceAndGateway:
		return fmt.Sprintf("dev %s via %s", n.Device, n.Gateway)
	case NodeByGateway:
		return "via " + n.Gateway.String()
	default:
		return "default"
	}
}

// RouteSpec is a route as requested by a caller.
type RouteSpec struct {
	Network netip.Prefix
	Node    NodeSpec
}

// Family returns the address family of the network.
func (s RouteSpec) Family() networking.Family {
	return networking.FamilyOfPrefix(s.Network)
}

func (s RouteSpec) String() string {
	return fmt.Sprintf("%s %s", s.Network, s.Node)
}

// ResolvedNode is a concrete next hop. A zero Gateway means on-link.
type ResolvedNode struct {
	Interface networking.InterfaceID
	Gateway   netip.Addr
}

func (n ResolvedNode) String() string {
	if !n.Gateway.IsValid() {
		return fmt.Sprintf("dev %s", n.Interface)
	}
	return fmt.Sprintf("dev %s via %s", n.Interface, n.Gateway)
}

// RegisteredRoute is what is installed in the OS table for a RouteSpec.
type RegisteredRoute struct {
	Network   netip.Prefix
	Interface networking.InterfaceID
	Gateway   netip.Addr
}

func newRegisteredRoute(network netip.Prefix, node ResolvedNode) RegisteredRoute {
	return RegisteredRoute{Network: network, Interface: node.Interface, Gateway: node.Gateway}
}

// ForwardEntry returns the OS forwarding table row for the route.
func (r RegisteredRoute) ForwardEntry() networking.ForwardEntry {
	return networking.ForwardEntry{
		Destination: r.Network,
		Interface:   r.Interface,
		Gateway:     r.Gateway,
	}
}

func (r RegisteredRoute) String() string {
	return r.ForwardEntry().String()
}

// RouteRecord pairs a requested route with what was installed for it.
type RouteRecord struct {
	Spec       RouteSpec
	Registered RegisteredRoute
}

// EventType classifies a default route change.
type EventType int

const (
	// EventUpdated means the best default route is new or different.
	EventUpdated EventType = iota
	// EventUpdatedDetails means the same route was affected by an interface or address change.
	EventUpdatedDetails
	// EventRemoved means there is no longer a default route.
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventUpdated:
		return "updated"
	case EventUpdatedDetails:
		return "updated-details"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// DefaultRouteEvent is delivered when the best default route of a family changes.
type DefaultRouteEvent struct {
	Type   EventType
	Family networking.Family
	// Route is the new best default route. It is zero for EventRemoved.
	Route ResolvedNode
}

func (e DefaultRouteEvent) String() string {
	if e.Type == EventRemoved {
		return fmt.Sprintf("%s default route removed", e.Family)
	}
	return fmt.Sprintf("%s default route %s: %s", e.Family, e.Type, e.Route)
}
