package ordermanager

import (
	"sort"

	"github.com/fusionswap/relayer/internal/types"
)

// indexes holds the derived-data lookups by maker, by resolver and by
// status (spec.md §4.5). The earliest-timelock ordering is not kept here;
// Manager.EarliestTimelocks computes it on demand. Caller holds m.mu for all
// mutating calls; these are not separately locked.
type indexes struct {
	byMaker    map[string]map[string]bool
	byResolver map[string]map[string]bool
	byStatus   map[string]map[string]bool
}

func newIndexes() indexes {
	return indexes{
		byMaker:    make(map[string]map[string]bool),
		byResolver: make(map[string]map[string]bool),
		byStatus:   make(map[string]map[string]bool),
	}
}

func (ix *indexes) add(s *types.SwapState) {
	addTo(ix.byMaker, s.Maker, s.OrderID)
	if s.Resolver != "" {
		addTo(ix.byResolver, s.Resolver, s.OrderID)
	}
	addTo(ix.byStatus, string(s.Status), s.OrderID)
}

func (ix *indexes) remove(s *types.SwapState) {
	removeFrom(ix.byMaker, s.Maker, s.OrderID)
	if s.Resolver != "" {
		removeFrom(ix.byResolver, s.Resolver, s.OrderID)
	}
	removeFrom(ix.byStatus, string(s.Status), s.OrderID)
}

func addTo(m map[string]map[string]bool, key, orderID string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]bool)
		m[key] = set
	}
	set[orderID] = true
}

func removeFrom(m map[string]map[string]bool, key, orderID string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, orderID)
	if len(set) == 0 {
		delete(m, key)
	}
}

func snapshot(m map[string]map[string]bool, key string) []string {
	set, ok := m[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (ix *indexes) byMakerSnapshot(maker string) []string { return snapshot(ix.byMaker, maker) }
func (ix *indexes) byResolverSnapshot(resolver string) []string {
	return snapshot(ix.byResolver, resolver)
}
func (ix *indexes) byStatusSnapshot(status types.SwapStatus) []string {
	return snapshot(ix.byStatus, string(status))
}
