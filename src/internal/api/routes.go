package api

import (
	"fmt"
	"net/http"
	"net/netip"

	"github.com/maksimkurb/tunroute/src/internal/config"
	"github.com/maksimkurb/tunroute/src/internal/routing"
)

// GetRoutes returns the routes owned by the route manager in installation order.
// GET /api/v1/routes
func (h *Handler) GetRoutes(w http.ResponseWriter, r *http.Request) {
	records := h.routes.Routes()

	response := RoutesResponse{Routes: make([]RouteInfo, 0, len(records))}
	for _, record := range records {
		response.Routes = append(response.Routes, h.routeInfo(record))
	}

	writeJSONData(w, response)
}

// AddRoutes installs a batch of routes. Either every route is installed or none is.
// POST /api/v1/routes
func (h *Handler) AddRoutes(w http.ResponseWriter, r *http.Request) {
	var req AddRoutesRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteInvalidRequest(w, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Routes) == 0 {
		WriteInvalidRequest(w, "At least one route is required")
		return
	}

	if err := config.ValidateRoutes(req.Routes); err != nil {
		WriteRouteError(w, err)
		return
	}

	specs := make([]routing.RouteSpec, 0, len(req.Routes))
	for _, route := range req.Routes {
		spec, err := route.RouteSpec()
		if err != nil {
			WriteInvalidRequest(w, err.Error())
			return
		}
		specs = append(specs, spec)
	}

	if err := h.routes.AddRoutes(specs); err != nil {
		WriteRouteError(w, err)
		return
	}

	h.GetRoutes(w, r)
}

// DeleteRoutes removes the routes for a batch of networks. Unknown networks are ignored.
// DELETE /api/v1/routes
func (h *Handler) DeleteRoutes(w http.ResponseWriter, r *http.Request) {
	var req DeleteRoutesRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteInvalidRequest(w, "Invalid request body: "+err.Error())
		return
	}

	specs := make([]routing.RouteSpec, 0, len(req.Networks))
	for i, network := range req.Networks {
		prefix, err := netip.ParsePrefix(network)
		if err != nil {
			WriteValidationError(w, "Route validation failed", map[string]interface{}{
				fmt.Sprintf("networks.%d", i): err.Error(),
			})
			return
		}
		specs = append(specs, routing.RouteSpec{Network: prefix.Masked()})
	}

	if err := h.routes.DeleteRoutes(specs); err != nil {
		WriteRouteError(w, err)
		return
	}

	writeNoContent(w)
}

func (h *Handler) routeInfo(record routing.RouteRecord) RouteInfo {
	info := RouteInfo{
		Network: record.Spec.Network.String(),
		Node:    nodeName(record.Spec.Node.Kind()),
		Device:  record.Spec.Node.Device,
	}
	if record.Spec.Node.Gateway.IsValid() {
		info.Gateway = record.Spec.Node.Gateway.String()
	}

	var gateway string
	if record.Registered.Gateway.IsValid() {
		gateway = record.Registered.Gateway.String()
	}
	info.Installed = h.nextHop(record.Spec.Family(), record.Registered.Interface, gateway)

	return info
}
