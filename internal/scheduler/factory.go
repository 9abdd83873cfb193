package scheduler

import (
	"fmt"
	"strings"

	"ossim/backend/internal/filesystem"
)

// ordering is the policy-specific half of the scheduler: how the ready queue
// is kept and how long a dispatched process runs.
type ordering interface {
	Policy() Policy
	Reorder(queue []*Process)
	SliceLength(p *Process, quantum int) int
}

func newOrdering(policy Policy) (ordering, error) {
	switch policy {
	case PolicyRoundRobin:
		return roundRobin{}, nil
	case PolicySJF:
		return shortestJobFirst{}, nil
	case PolicyPriority:
		return priorityOrder{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPolicy, policy)
	}
}

func ParsePolicy(name string) (Policy, error) {
	policy := Policy(strings.ToUpper(strings.TrimSpace(name)))
	if _, err := newOrdering(policy); err != nil {
		return "", err
	}
	return policy, nil
}

func GetAvailablePolicies() []Policy {
	return []Policy{PolicyRoundRobin, PolicySJF, PolicyPriority}
}

func GetDefaultConfig() Config {
	return Config{
		Policy:                PolicyRoundRobin,
		Quantum:               2,
		FileAccessProbability: 0.2,
		FileMode:              filesystem.ModeRead,
	}
}
