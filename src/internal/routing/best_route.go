package routing

import (
	"cmp"
	"slices"

	"github.com/maksimkurb/tunroute/src/internal/networking"
)

type defaultCandidate struct {
	entry     networking.ForwardEntry
	connected bool
	metric    uint64
}

// BestDefaultRoute returns the default route the OS would use for family, or nil if
// there is none.
//
// The selection process follows these rules:
//  1. Only entries with prefix length zero and a gateway are considered
//  2. Entries on loopback, virtual or unknown interfaces are skipped
//  3. Connected interfaces win over disconnected ones
//  4. Among those, the lowest route metric plus interface metric wins; ties keep OS order
//  5. A winner that is not connected is rejected
func BestDefaultRoute(family networking.Family, routes networking.RouteTable, ifaces networking.InterfaceTable) (*ResolvedNode, error) {
	entries, err := routes.ForwardTable(family)
	if err != nil {
		return nil, err
	}

	var defaults []networking.ForwardEntry
	for _, e := range entries {
		if e.IsDefault() && e.HasGateway() {
			defaults = append(defaults, e)
		}
	}
	if len(defaults) == 0 {
		return nil, nil
	}

	infos, err := ifaces.Interfaces(family)
	if err != nil {
		return nil, err
	}
	byID := make(map[networking.InterfaceID]networking.InterfaceInfo, len(infos))
	for _, info := range infos {
		byID[info.ID] = info
	}

	candidates := make([]defaultCandidate, 0, len(defaults))
	for _, e := range defaults {
		info, ok := byID[e.Interface]
		if !ok || info.Loopback || info.Virtual {
			continue
		}
		candidates = append(candidates, defaultCandidate{
			entry:     e,
			connected: info.Up && info.Connected,
			metric:    uint64(e.Metric) + uint64(info.Metric),
		})
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	slices.SortStableFunc(candidates, func(a, b defaultCandidate) int {
		if a.connected != b.connected {
			if a.connected {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.metric, b.metric)
	})

	best := candidates[0]
	if !best.connected {
		return nil, nil
	}
	return &ResolvedNode{Interface: best.entry.Interface, Gateway: best.entry.Gateway}, nil
}
