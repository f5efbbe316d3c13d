//go:build linux

package networking

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// IpRoute is a netlink route owned by the route manager.
type IpRoute struct {
	*netlink.Route
}

func (r *IpRoute) String() string {
	to := "default"
	if r.Dst != nil {
		to = r.Dst.String()
	}

	via := "on-link"
	if len(r.Gw) > 0 && !r.Gw.IsUnspecified() {
		via = r.Gw.String()
	}

	return fmt.Sprintf("table %d: dst=%s via %s (idx=%d) [metric:%d]",
		r.Table, to, via, r.LinkIndex, r.Priority)
}

func (f Family) netlinkFamily() int {
	if f == FamilyV6 {
		return netlink.FAMILY_V6
	}
	return netlink.FAMILY_V4
}

// BuildRoute converts a forwarding entry into a static unicast route of the main table.
func BuildRoute(entry ForwardEntry) *IpRoute {
	ipr := netlink.Route{}

	ipr.Table = unix.RT_TABLE_MAIN
	ipr.Type = unix.RTN_UNICAST
	ipr.Protocol = netlink.RouteProtocol(unix.RTPROT_STATIC)
	ipr.Family = entry.Family().netlinkFamily()
	ipr.LinkIndex = int(entry.Interface)
	ipr.Priority = int(entry.Metric)
	ipr.Dst = ipNetFromPrefix(entry.Destination)
	if entry.HasGateway() {
		ipr.Gw = net.IP(entry.Gateway.Unmap().AsSlice())
		ipr.Scope = netlink.SCOPE_UNIVERSE
	} else {
		ipr.Scope = netlink.SCOPE_LINK
	}

	return &IpRoute{&ipr}
}

// entriesFromRoute converts a kernel route into forwarding entries, one per next hop.
// Routes that are not plain unicast are skipped.
func entriesFromRoute(family Family, r netlink.Route) []ForwardEntry {
	if r.Type != 0 && r.Type != unix.RTN_UNICAST {
		return nil
	}

	dst := prefixFromIPNet(family, r.Dst)
	if !dst.IsValid() {
		return nil
	}

	if len(r.MultiPath) == 0 {
		return []ForwardEntry{{
			Destination: dst,
			Interface:   InterfaceID(r.LinkIndex),
			Gateway:     addrFromIP(r.Gw),
			Metric:      uint32(r.Priority),
		}}
	}

	entries := make([]ForwardEntry, 0, len(r.MultiPath))
	for _, hop := range r.MultiPath {
		entries = append(entries, ForwardEntry{
			Destination: dst,
			Interface:   InterfaceID(hop.LinkIndex),
			Gateway:     addrFromIP(hop.Gw),
			Metric:      uint32(r.Priority),
		})
	}
	return entries
}

// prefixFromIPNet treats a nil destination as the default route of family.
func prefixFromIPNet(family Family, n *net.IPNet) netip.Prefix {
	if n == nil {
		return family.DefaultPrefix()
	}
	addr, ok := netip.AddrFromSlice(n.IP)
	if !ok {
		return netip.Prefix{}
	}
	ones, _ := n.Mask.Size()
	return netip.PrefixFrom(addr.Unmap(), ones).Masked()
}

func ipNetFromPrefix(p netip.Prefix) *net.IPNet {
	addr := p.Masked().Addr().Unmap()
	return &net.IPNet{
		IP:   net.IP(addr.AsSlice()),
		Mask: net.CIDRMask(p.Bits(), addr.BitLen()),
	}
}

func addrFromIP(ip net.IP) netip.Addr {
	if len(ip) == 0 {
		return netip.Addr{}
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}
