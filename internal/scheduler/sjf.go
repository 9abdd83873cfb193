package scheduler

import "sort"

// shortestJobFirst orders by remaining time, stable for ties, and runs the
// dispatched process to completion.
type shortestJobFirst struct{}

func (shortestJobFirst) Policy() Policy { return PolicySJF }

func (shortestJobFirst) Reorder(queue []*Process) {
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].RemainingTime < queue[j].RemainingTime
	})
}

func (shortestJobFirst) SliceLength(p *Process, _ int) int {
	return p.RemainingTime
}
