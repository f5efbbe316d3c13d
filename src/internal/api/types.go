package api

import (
	"github.com/maksimkurb/tunroute/src/internal/config"
	"github.com/maksimkurb/tunroute/src/internal/routing"
)

// DataResponse wraps successful responses with a "data" field.
type DataResponse struct {
	Data interface{} `json:"data"`
}

// RouteInfo describes a route owned by the route manager.
type RouteInfo struct {
	Network string `json:"network"`
	// Node is how the route was requested: "default", "device", "device+gateway" or "gateway".
	Node    string `json:"node"`
	Device  string `json:"device,omitempty"`
	Gateway string `json:"gateway,omitempty"`
	// Installed is the next hop currently in the OS route table.
	Installed NextHopInfo `json:"installed"`
}

// NextHopInfo is a resolved next hop.
type NextHopInfo struct {
	Interface     string `json:"interface"` // encoded interface id
	InterfaceName string `json:"interface_name,omitempty"`
	Gateway       string `json:"gateway,omitempty"`
}

// RoutesResponse returns all routes owned by the route manager.
type RoutesResponse struct {
	Routes []RouteInfo `json:"routes"`
}

// AddRoutesRequest installs routes. The batch is applied atomically.
type AddRoutesRequest struct {
	Routes []*config.RouteConfig `json:"routes"`
}

// DeleteRoutesRequest removes the routes for the given networks.
type DeleteRoutesRequest struct {
	Networks []string `json:"networks"`
}

// DefaultRouteInfo is the best default route of one address family.
type DefaultRouteInfo struct {
	Family  string       `json:"family"`
	Present bool         `json:"present"`
	Route   *NextHopInfo `json:"route,omitempty"`
}

// DefaultRoutesResponse returns the best default route per family.
type DefaultRoutesResponse struct {
	DefaultRoutes []DefaultRouteInfo `json:"default_routes"`
}

// DefaultRouteEventInfo is sent over the events stream.
type DefaultRouteEventInfo struct {
	Type   string       `json:"type"`
	Family string       `json:"family"`
	Route  *NextHopInfo `json:"route,omitempty"`
}

// MTUResponse returns the MTU of the interface carrying the default route.
type MTUResponse struct {
	Family string `json:"family"`
	MTU    int    `json:"mtu"`
}

// HealthCheckResponse contains health check results.
type HealthCheckResponse struct {
	Healthy bool                   `json:"healthy"`
	Checks  map[string]CheckResult `json:"checks"`
}

// CheckResult is the result of a single health check.
type CheckResult struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

func nodeName(kind routing.NodeKind) string {
	switch kind {
	case routing.NodeByDevice:
		return "device"
	case routing.NodeByDeviceAndGateway:
		return "device+gateway"
	case routing.NodeByGateway:
		return "gateway"
	default:
		return "default"
	}
}
