package api

import (
	"fmt"
	"net/http"

	"github.com/maksimkurb/tunroute/src/internal/log"
	"github.com/maksimkurb/tunroute/src/internal/networking"
	"github.com/maksimkurb/tunroute/src/internal/routing"
)

// GetDefaultRoutes returns the cached best default route of every monitored family.
// GET /api/v1/default-routes
func (h *Handler) GetDefaultRoutes(w http.ResponseWriter, r *http.Request) {
	response := DefaultRoutesResponse{DefaultRoutes: make([]DefaultRouteInfo, 0, len(h.families))}

	for _, family := range h.families {
		info := DefaultRouteInfo{Family: family.String()}
		if route, ok := h.routes.DefaultRoute(family); ok {
			hop := h.resolvedNextHop(family, route)
			info.Present = true
			info.Route = &hop
		}
		response.DefaultRoutes = append(response.DefaultRoutes, info)
	}

	writeJSONData(w, response)
}

// GetMTU returns the MTU of the interface carrying the best default route.
// GET /api/v1/mtu?family=4
func (h *Handler) GetMTU(w http.ResponseWriter, r *http.Request) {
	family := networking.FamilyV4
	if value := r.URL.Query().Get("family"); value != "" {
		parsed, err := networking.ParseFamily(value)
		if err != nil {
			WriteInvalidRequest(w, err.Error())
			return
		}
		family = parsed
	}

	mtu, err := h.routes.RouteMTU(family)
	if err != nil {
		WriteRouteError(w, err)
		return
	}

	writeJSONData(w, MTUResponse{Family: family.String(), MTU: mtu})
}

// StreamEvents streams default route changes as server-sent events until the client
// disconnects.
// GET /api/v1/events
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteInternalError(w, "Streaming not supported")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	events := make(chan routing.DefaultRouteEvent, 16)
	handle := h.routes.RegisterDefaultRouteChangedCallback(func(event routing.DefaultRouteEvent) {
		select {
		case events <- event:
		default:
			log.Warnf("Dropping default route event for slow API client: %s", event)
		}
	})
	defer h.routes.UnregisterDefaultRouteChangedCallback(handle)

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-events:
			if err := writeEvent(w, "default-route-changed", h.eventInfo(event)); err != nil {
				log.Debugf("Event stream closed: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) eventInfo(event routing.DefaultRouteEvent) DefaultRouteEventInfo {
	info := DefaultRouteEventInfo{Type: event.Type.String(), Family: event.Family.String()}
	if event.Type != routing.EventRemoved {
		hop := h.resolvedNextHop(event.Family, event.Route)
		info.Route = &hop
	}
	return info
}

func (h *Handler) resolvedNextHop(family networking.Family, node routing.ResolvedNode) NextHopInfo {
	var gateway string
	if node.Gateway.IsValid() {
		gateway = node.Gateway.String()
	}
	return h.nextHop(family, node.Interface, gateway)
}
