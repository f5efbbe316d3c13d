// Package networking provides the operating-system adapters used by the route manager.
//
// The package exposes three narrow capabilities:
//
//   - RouteTable: list, create and delete entries of the main forwarding table
//   - InterfaceTable: enumerate interfaces with their state, metric and gateways
//   - ChangeNotifier: subscribe to route, interface and unicast address changes
//
// System combines all three. On Linux it is implemented by NetlinkSystem on top of
// github.com/vishvananda/netlink; other platforms get a stub that refuses to start.
//
// # Interface identifiers
//
// Interfaces are addressed by InterfaceID, a stable OS handle (the link index on Linux).
// Human aliases may contain characters that are awkward to pass around, so an id can also
// be written as "?" followed by 16 hex digits:
//
//	id := networking.InterfaceID(3)
//	id.Encode() // "?0000000000000003"
//
//	parsed, ok := networking.ParseEncodedInterfaceID("?0000000000000003")
//
// # Subscriptions
//
// Subscribe* methods return a Subscription. Closing it stops delivery; no callback runs
// after Close returns.
package networking
