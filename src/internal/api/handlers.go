package api

import (
	"encoding/json"
	"net/http"

	"github.com/maksimkurb/tunroute/src/internal/networking"
	"github.com/maksimkurb/tunroute/src/internal/routing"
)

// RouteService is the part of the route manager used by the API.
// *routing.RouteManager implements it.
type RouteService interface {
	AddRoutes(specs []routing.RouteSpec) error
	DeleteRoutes(specs []routing.RouteSpec) error
	Routes() []routing.RouteRecord
	DefaultRoute(family networking.Family) (routing.ResolvedNode, bool)
	RouteMTU(family networking.Family) (int, error)
	RegisterDefaultRouteChangedCallback(cb routing.DefaultRouteChangedCallback) routing.CallbackHandle
	UnregisterDefaultRouteChangedCallback(h routing.CallbackHandle)
}

var _ RouteService = (*routing.RouteManager)(nil)

// Handler manages all API endpoints and dependencies.
type Handler struct {
	routes     RouteService
	interfaces networking.InterfaceTable
	families   []networking.Family
}

// NewHandler creates a new API handler. families lists the address families whose
// default routes are monitored.
func NewHandler(routes RouteService, interfaces networking.InterfaceTable, families []networking.Family) *Handler {
	return &Handler{
		routes:     routes,
		interfaces: interfaces,
		families:   families,
	}
}

// nextHop describes a resolved next hop, adding the interface name when it can be found.
func (h *Handler) nextHop(family networking.Family, id networking.InterfaceID, gateway string) NextHopInfo {
	info := NextHopInfo{Interface: id.Encode(), Gateway: gateway}
	if iface, err := h.interfaces.InterfaceByID(family, id); err == nil {
		info.InterfaceName = iface.Name
	}
	return info
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(DataResponse{Data: data})
}

// writeJSONData writes a successful JSON response with data.
func writeJSONData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, data)
}

// writeNoContent writes a 204 No Content response.
func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// decodeJSON decodes JSON from the request body.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
