package phase

import (
	"fmt"
	"strings"

	"conveyor/internal/queue"
)

// Input describes one phase in a submission batch. PhaseNumber and
// DependsOnPhase may be left zero/nil, in which case the batch is numbered
// densely in input order with each phase depending on its predecessor.
type Input struct {
	Title          string
	Body           string
	References     []string
	PhaseNumber    int
	DependsOnPhase *int
}

// normalizeBatch fills in implicit numbering and validates the batch:
// dense 1-based phase numbers and backward-only dependencies. Nothing is
// persisted when validation fails.
func normalizeBatch(parentTaskID string, inputs []Input) ([]Input, error) {
	if strings.TrimSpace(parentTaskID) == "" {
		return nil, fmt.Errorf("%w: parent task id is required", queue.ErrValidation)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: batch must contain at least one phase", queue.ErrValidation)
	}

	explicit := false
	for _, input := range inputs {
		if input.PhaseNumber != 0 {
			explicit = true
			break
		}
	}

	normalized := make([]Input, len(inputs))
	copy(normalized, inputs)

	if !explicit {
		for i := range normalized {
			normalized[i].PhaseNumber = i + 1
			if i > 0 && normalized[i].DependsOnPhase == nil {
				dep := i
				normalized[i].DependsOnPhase = &dep
			}
		}
	}

	seen := make(map[int]struct{}, len(normalized))
	for _, input := range normalized {
		if strings.TrimSpace(input.Title) == "" {
			return nil, fmt.Errorf("%w: phase %d is missing a title", queue.ErrValidation, input.PhaseNumber)
		}
		n := input.PhaseNumber
		if n < 1 || n > len(normalized) {
			return nil, fmt.Errorf("%w: phase number %d outside dense range 1..%d", queue.ErrValidation, n, len(normalized))
		}
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("%w: duplicate phase number %d", queue.ErrValidation, n)
		}
		seen[n] = struct{}{}
	}

	for _, input := range normalized {
		dep := input.DependsOnPhase
		if dep == nil {
			continue
		}
		if *dep >= input.PhaseNumber {
			return nil, fmt.Errorf("%w: phase %d dependency %d must point backward", queue.ErrValidation, input.PhaseNumber, *dep)
		}
		if _, ok := seen[*dep]; !ok {
			return nil, fmt.Errorf("%w: phase %d depends on unknown phase %d", queue.ErrValidation, input.PhaseNumber, *dep)
		}
	}

	return normalized, nil
}
