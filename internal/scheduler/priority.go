package scheduler

import "sort"

// priorityOrder runs the lowest priority value first. Equal priorities keep
// their current queue order.
type priorityOrder struct{}

func (priorityOrder) Policy() Policy { return PolicyPriority }

func (priorityOrder) Reorder(queue []*Process) {
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].Priority < queue[j].Priority
	})
}

func (priorityOrder) SliceLength(p *Process, _ int) int {
	return p.RemainingTime
}
