package scheduler

// roundRobin keeps insertion order and caps every slice at the quantum.
type roundRobin struct{}

func (roundRobin) Policy() Policy { return PolicyRoundRobin }

func (roundRobin) Reorder([]*Process) {}

func (roundRobin) SliceLength(p *Process, quantum int) int {
	if quantum < p.RemainingTime {
		return quantum
	}
	return p.RemainingTime
}
