package anomaly

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// ctxCheckInterval is how many DFS steps run between context checks.
const ctxCheckInterval = 1024

// circularReferences enumerates elementary cycles of the valid reference
// subgraph. Each cycle is rooted at its smallest node: the search from
// start s only enters nodes ordered after s, so a cycle is found exactly
// once, from its minimum.
func (d *Detector) circularReferences(ctx context.Context, s *snapshot) ([]Anomaly, error) {
	n := s.g.Len()
	succ := make([][]int, n)
	for i := range n {
		for _, e := range s.g.Outgoing(i) {
			if e.Hierarchy() || !e.Valid() || e.To == i {
				continue
			}
			succ[i] = append(succ[i], e.To)
		}
		slices.Sort(succ[i])
		succ[i] = slices.Compact(succ[i])
	}

	var (
		cycles [][]int
		path   []int
		onPath = make([]bool, n)
		steps  int
		capped bool
		err    error
	)
	var visit func(start, v int)
	visit = func(start, v int) {
		if capped || err != nil {
			return
		}
		if steps++; steps%ctxCheckInterval == 0 {
			if err = ctx.Err(); err != nil {
				return
			}
		}
		onPath[v] = true
		path = append(path, v)
		for _, w := range succ[v] {
			switch {
			case w < start || capped:
			case w == start:
				cycles = append(cycles, slices.Clone(path))
				if len(cycles) >= d.maxCycles {
					capped = true
				}
			case !onPath[w]:
				visit(start, w)
			}
		}
		path = path[:len(path)-1]
		onPath[v] = false
	}

	for start := 0; start < n && !capped && err == nil; start++ {
		visit(start, start)
	}
	if err != nil {
		return nil, err
	}
	if capped {
		d.log.Warn("cycle enumeration stopped at limit", "max_cycles", d.maxCycles)
	}

	out := make([]Anomaly, 0, len(cycles))
	for _, c := range cycles {
		ids := make([]string, len(c))
		for j, i := range c {
			ids[j] = s.ids[i].String()
		}
		sev := Medium
		if len(c) == 2 {
			sev = Low
		}
		out = append(out, Anomaly{
			Kind:        KindCircularReference,
			Location:    Location{From: ids[0], To: ids[len(ids)-1]},
			Severity:    sev,
			Description: fmt.Sprintf("Circular reference among %d topics: %s -> %s", len(ids), strings.Join(ids, " -> "), ids[0]),
			AffectedIDs: ids,
		})
	}
	return out, nil
}
