package routing

import (
	"cmp"
	"fmt"
	"net/netip"
	"slices"

	"github.com/maksimkurb/tunroute/src/internal/errors"
	"github.com/maksimkurb/tunroute/src/internal/log"
	"github.com/maksimkurb/tunroute/src/internal/networking"
)

// DefaultRouteProvider exposes the live best default route per family.
type DefaultRouteProvider interface {
	DefaultRoute(family networking.Family) (ResolvedNode, bool)
}

// NodeResolver turns a NodeSpec into a concrete interface and gateway.
type NodeResolver struct {
	ifaces   networking.InterfaceTable
	defaults DefaultRouteProvider
}

// NewNodeResolver creates a resolver. defaults answers unspecified nodes.
func NewNodeResolver(ifaces networking.InterfaceTable, defaults DefaultRouteProvider) *NodeResolver {
	return &NodeResolver{ifaces: ifaces, defaults: defaults}
}

// Resolve resolves node for a network of the given family.
//
// There are four cases:
//   - unspecified: the best default route of family, or ErrNoDefaultRoute
//   - device: the named interface with an on-link gateway, or ErrDeviceNameNotFound
//   - device and gateway: the named interface with the gateway taken verbatim
//   - gateway: the enabled interface that has the gateway, or ErrDeviceGatewayNotFound
func (r *NodeResolver) Resolve(family networking.Family, node NodeSpec) (ResolvedNode, error) {
	switch node.Kind() {
	case NodeUnspecified:
		route, ok := r.defaults.DefaultRoute(family)
		if !ok {
			log.Errorf("Unable to determine details of %s default route", family)
			return ResolvedNode{}, errors.New(errors.ErrCodeNoDefaultRoute,
				fmt.Sprintf("no %s default route found", family))
		}
		return route, nil

	case NodeByDevice, NodeByDeviceAndGateway:
		id, err := r.interfaceIDFromName(family, node.Device)
		if err != nil {
			return ResolvedNode{}, err
		}
		return ResolvedNode{Interface: id, Gateway: node.Gateway}, nil

	default:
		id, err := r.interfaceIDFromGateway(node.Gateway)
		if err != nil {
			return ResolvedNode{}, err
		}
		return ResolvedNode{Interface: id, Gateway: node.Gateway}, nil
	}
}

// interfaceIDFromName accepts an alias or an encoded interface id.
func (r *NodeResolver) interfaceIDFromName(family networking.Family, name string) (networking.InterfaceID, error) {
	if id, ok := networking.ParseEncodedInterfaceID(name); ok {
		if _, err := r.ifaces.InterfaceByID(family, id); err != nil {
			log.Errorf("Unable to find interface for encoded id %q: %v", name, err)
			return 0, err
		}
		return id, nil
	}

	id, err := r.ifaces.InterfaceIDByAlias(name)
	if err != nil {
		log.Errorf("Unable to derive interface id from interface alias %q: %v", name, err)
		return 0, err
	}
	return id, nil
}

// interfaceIDFromGateway picks the enabled interface of the gateway's family that lists it
// among its gateways. The lowest interface metric wins; ties go to the lowest index.
func (r *NodeResolver) interfaceIDFromGateway(gateway netip.Addr) (networking.InterfaceID, error) {
	family := networking.FamilyOf(gateway)

	infos, err := r.ifaces.Interfaces(family)
	if err != nil {
		return 0, err
	}

	var matches []networking.InterfaceInfo
	for _, info := range infos {
		if info.Enabled(family) && info.HasGateway(gateway) {
			matches = append(matches, info)
		}
	}

	if len(matches) == 0 {
		log.Errorf("Unable to find network adapter with gateway %s", gateway)
		return 0, errors.New(errors.ErrCodeDeviceGatewayNotFound,
			fmt.Sprintf("no interface has gateway %s", gateway))
	}

	best := slices.MinFunc(matches, func(a, b networking.InterfaceInfo) int {
		if c := cmp.Compare(a.Metric, b.Metric); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
	return best.ID, nil
}
