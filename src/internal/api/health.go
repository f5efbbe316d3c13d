package api

import (
	"fmt"
	"net/http"
)

// CheckHealth reports whether every monitored family has a default route.
// GET /health
func (h *Handler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthCheckResponse{
		Healthy: true,
		Checks:  make(map[string]CheckResult),
	}

	for _, family := range h.families {
		name := family.String() + "_default_route"

		route, ok := h.routes.DefaultRoute(family)
		if !ok {
			response.Healthy = false
			response.Checks[name] = CheckResult{
				Passed:  false,
				Message: fmt.Sprintf("No %s default route", family),
			}
			continue
		}

		response.Checks[name] = CheckResult{
			Passed:  true,
			Message: fmt.Sprintf("Default route: %s", route),
		}
	}

	response.Checks["owned_routes"] = CheckResult{
		Passed:  true,
		Message: fmt.Sprintf("%d route(s) installed", len(h.routes.Routes())),
	}

	writeJSONData(w, response)
}
