// Package routing keeps client-requested networks routed through the right next hop.
//
// RouteManager owns every route it installs. Routes are added and removed in batches;
// if any route in a batch fails, everything the batch already did is undone in reverse
// order. A route whose node is unspecified follows the live default route: one
// DefaultRouteMonitor per address family watches the OS for route, link and address
// changes, debounces them with a burstguard.BurstGuard and re-evaluates the best
// default route. When it changes, dependent routes are moved to the new next hop and
// registered callbacks are notified.
//
// # Example Usage
//
//	sys, err := networking.NewSystem()
//	if err != nil {
//	    log.Fatalf("%v", err)
//	}
//
//	mgr, err := routing.NewRouteManager(sys, routing.Options{EnableIPv6: true})
//	if err != nil {
//	    log.Fatalf("%v", err)
//	}
//	defer mgr.Close()
//
//	err = mgr.AddRoutes([]routing.RouteSpec{
//	    {Network: netip.MustParsePrefix("10.0.0.0/8")},
//	    {Network: netip.MustParsePrefix("192.0.2.0/24"), Node: routing.DeviceNode("wg0")},
//	})
//
// Callbacks run on monitor goroutines. They may register or unregister callbacks, but
// must not call Close.
package routing
