package flow

import (
	"fmt"
	"strings"

	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
)

// topoSort orders nodes so that every provider of a field runs before the
// nodes requiring it. Ties keep the input order. A node never depends on
// itself.
func topoSort(nodes []*plannedStep) ([]*plannedStep, error) {
	providers := make(map[string][]int)
	for i, n := range nodes {
		for _, f := range n.desc.Provides {
			providers[f] = append(providers[f], i)
		}
	}

	indegree := make([]int, len(nodes))
	dependents := make([][]int, len(nodes))
	for i, n := range nodes {
		seen := make(map[int]struct{})
		for _, f := range n.desc.Requires {
			for _, j := range providers[f] {
				if j == i {
					continue
				}
				if _, ok := seen[j]; ok {
					continue
				}
				seen[j] = struct{}{}
				dependents[j] = append(dependents[j], i)
				indegree[i]++
			}
		}
	}

	done := make([]bool, len(nodes))
	ordered := make([]*plannedStep, 0, len(nodes))
	for len(ordered) < len(nodes) {
		next := -1
		for i := range nodes {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var stuck []string
			for i, n := range nodes {
				if !done[i] {
					stuck = append(stuck, n.step.Name)
				}
			}
			return nil, fmt.Errorf("%w: [%s]", pyerrors.ErrCyclicDependency, strings.Join(stuck, " "))
		}
		done[next] = true
		ordered = append(ordered, nodes[next])
		for _, d := range dependents[next] {
			indegree[d]--
		}
	}
	return ordered, nil
}
