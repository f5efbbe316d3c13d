//go:build linux

package networking

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/maksimkurb/tunroute/src/internal/errors"
	"github.com/maksimkurb/tunroute/src/internal/log"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// netlinkHandle mirrors the *netlink.Handle methods used by NetlinkSystem.
type netlinkHandle interface {
	// Routes
	RouteListFiltered(family int, filter *netlink.Route, filterMask uint64) ([]netlink.Route, error)
	RouteAdd(route *netlink.Route) error
	RouteReplace(route *netlink.Route) error
	RouteDel(route *netlink.Route) error

	// Links
	LinkList() ([]netlink.Link, error)
	LinkByName(name string) (netlink.Link, error)
	LinkByIndex(index int) (netlink.Link, error)
	AddrList(link netlink.Link, family int) ([]netlink.Addr, error)

	// Cleanup
	Close()
}

var _ netlinkHandle = (*netlink.Handle)(nil)

// virtualLinkTypes are link kinds that never carry the physical default route.
var virtualLinkTypes = map[string]bool{
	"tuntap":    true,
	"tun":       true,
	"wireguard": true,
	"veth":      true,
	"bridge":    true,
	"dummy":     true,
	"vxlan":     true,
	"gre":       true,
	"gretap":    true,
	"ip6gre":    true,
	"ipip":      true,
	"ip6tnl":    true,
	"sit":       true,
	"vti":       true,
	"macvlan":   true,
	"macvtap":   true,
	"ipvlan":    true,
	"ifb":       true,
	"vrf":       true,
	"geneve":    true,
}

// NetlinkSystem implements System on top of rtnetlink.
type NetlinkSystem struct {
	handle netlinkHandle

	routeSubscribe func(ch chan<- netlink.RouteUpdate, done <-chan struct{}, options netlink.RouteSubscribeOptions) error
	linkSubscribe  func(ch chan<- netlink.LinkUpdate, done <-chan struct{}, options netlink.LinkSubscribeOptions) error
	addrSubscribe  func(ch chan<- netlink.AddrUpdate, done <-chan struct{}, options netlink.AddrSubscribeOptions) error
}

var _ System = (*NetlinkSystem)(nil)

// NewNetlinkSystem opens a netlink handle in the current network namespace.
func NewNetlinkSystem() (*NetlinkSystem, error) {
	h, err := netlink.NewHandle(unix.NETLINK_ROUTE)
	if err != nil {
		return nil, errors.NewInternalError("failed to open netlink handle", err)
	}
	return newNetlinkSystem(h), nil
}

func newNetlinkSystem(h netlinkHandle) *NetlinkSystem {
	return &NetlinkSystem{
		handle:         h,
		routeSubscribe: netlink.RouteSubscribeWithOptions,
		linkSubscribe:  netlink.LinkSubscribeWithOptions,
		addrSubscribe:  netlink.AddrSubscribeWithOptions,
	}
}

// NewSystem returns the platform System.
func NewSystem() (System, error) {
	return NewNetlinkSystem()
}

// Close releases the netlink handle. Subscriptions must be closed separately.
func (s *NetlinkSystem) Close() {
	s.handle.Close()
}

func mainTableFilter() (*netlink.Route, uint64) {
	return &netlink.Route{Table: unix.RT_TABLE_MAIN}, netlink.RT_FILTER_TABLE
}

// ForwardTable implements RouteTable.
func (s *NetlinkSystem) ForwardTable(family Family) ([]ForwardEntry, error) {
	filter, mask := mainTableFilter()
	routes, err := s.handle.RouteListFiltered(family.netlinkFamily(), filter, mask)
	if err != nil {
		return nil, errors.NewRouteTableError(fmt.Sprintf("failed to list %s routes", family), err)
	}

	var entries []ForwardEntry
	for _, r := range routes {
		entries = append(entries, entriesFromRoute(family, r)...)
	}
	return entries, nil
}

// Create implements RouteTable. An existing route with the same key is replaced.
func (s *NetlinkSystem) Create(entry ForwardEntry) error {
	ipr := BuildRoute(entry)
	log.Debugf("Adding IP route [%v]", ipr)

	err := s.handle.RouteAdd(ipr.Route)
	if errors.Is(err, unix.EEXIST) {
		log.Debugf("IP route [%v] already exists, replacing it", ipr)
		err = s.handle.RouteReplace(ipr.Route)
	}
	if err != nil {
		return errors.NewRouteTableError(fmt.Sprintf("failed to add route [%v]", ipr), err)
	}
	return nil
}

// Delete implements RouteTable. A route that is already gone is not an error.
func (s *NetlinkSystem) Delete(entry ForwardEntry) error {
	ipr := BuildRoute(entry)
	// Match routes regardless of who installed them.
	ipr.Protocol = 0
	log.Debugf("Deleting IP route [%v]", ipr)

	if err := s.handle.RouteDel(ipr.Route); err != nil {
		if errors.Is(err, unix.ESRCH) || errors.Is(err, unix.ENOENT) {
			log.Debugf("IP route [%v] does not exist", ipr)
			return nil
		}
		return errors.NewRouteTableError(fmt.Sprintf("failed to delete route [%v]", ipr), err)
	}
	return nil
}

// Interfaces implements InterfaceTable.
func (s *NetlinkSystem) Interfaces(family Family) ([]InterfaceInfo, error) {
	links, err := s.handle.LinkList()
	if err != nil {
		return nil, errors.NewInterfaceError("failed to list links", err)
	}

	gateways, err := s.gatewaysByLink(family, nil)
	if err != nil {
		return nil, err
	}

	infos := make([]InterfaceInfo, 0, len(links))
	for _, link := range links {
		infos = append(infos, s.interfaceInfo(link, gateways[link.Attrs().Index]))
	}
	return infos, nil
}

// InterfaceByID implements InterfaceTable.
func (s *NetlinkSystem) InterfaceByID(family Family, id InterfaceID) (InterfaceInfo, error) {
	link, err := s.handle.LinkByIndex(int(id))
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return InterfaceInfo{}, errors.New(errors.ErrCodeDeviceNameNotFound,
				fmt.Sprintf("no interface with index %d", id))
		}
		return InterfaceInfo{}, errors.NewInterfaceError(fmt.Sprintf("failed to get link %d", id), err)
	}

	gateways, err := s.gatewaysByLink(family, link)
	if err != nil {
		return InterfaceInfo{}, err
	}
	return s.interfaceInfo(link, gateways[link.Attrs().Index]), nil
}

// InterfaceIDByAlias implements InterfaceTable.
func (s *NetlinkSystem) InterfaceIDByAlias(alias string) (InterfaceID, error) {
	link, err := s.handle.LinkByName(alias)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return 0, errors.New(errors.ErrCodeDeviceNameNotFound,
				fmt.Sprintf("no interface named %q", alias))
		}
		return 0, errors.NewInterfaceError(fmt.Sprintf("failed to get link %q", alias), err)
	}
	return InterfaceID(link.Attrs().Index), nil
}

// gatewaysByLink collects distinct next hops of main-table routes per link index.
// When link is non-nil only its routes are listed.
func (s *NetlinkSystem) gatewaysByLink(family Family, link netlink.Link) (map[int][]netip.Addr, error) {
	filter, mask := mainTableFilter()
	if link != nil {
		filter.LinkIndex = link.Attrs().Index
		mask |= netlink.RT_FILTER_OIF
	}

	routes, err := s.handle.RouteListFiltered(family.netlinkFamily(), filter, mask)
	if err != nil {
		return nil, errors.NewRouteTableError(fmt.Sprintf("failed to list %s routes", family), err)
	}

	result := make(map[int][]netip.Addr)
	for _, r := range routes {
		for _, e := range entriesFromRoute(family, r) {
			if !e.HasGateway() {
				continue
			}
			idx := int(e.Interface)
			if !containsAddr(result[idx], e.Gateway) {
				result[idx] = append(result[idx], e.Gateway)
			}
		}
	}
	return result, nil
}

func (s *NetlinkSystem) interfaceInfo(link netlink.Link, gateways []netip.Addr) InterfaceInfo {
	attrs := link.Attrs()

	info := InterfaceInfo{
		ID:        InterfaceID(attrs.Index),
		Name:      attrs.Name,
		Index:     attrs.Index,
		MTU:       attrs.MTU,
		Up:        attrs.Flags&net.FlagUp != 0,
		Loopback:  attrs.Flags&net.FlagLoopback != 0,
		Virtual:   virtualLinkTypes[link.Type()],
		Gateways:  gateways,
		Connected: attrs.OperState == netlink.OperUp ||
			(attrs.OperState == netlink.OperUnknown && attrs.RawFlags&unix.IFF_RUNNING != 0),
	}

	if addrs, err := s.handle.AddrList(link, netlink.FAMILY_V4); err != nil {
		log.Warnf("Failed to list IPv4 addresses of %s: %v", attrs.Name, err)
	} else {
		info.IPv4Enabled = len(addrs) > 0
	}
	if addrs, err := s.handle.AddrList(link, netlink.FAMILY_V6); err != nil {
		log.Warnf("Failed to list IPv6 addresses of %s: %v", attrs.Name, err)
	} else {
		info.IPv6Enabled = len(addrs) > 0
	}

	return info
}

func containsAddr(addrs []netip.Addr, addr netip.Addr) bool {
	for _, a := range addrs {
		if a == addr {
			return true
		}
	}
	return false
}
