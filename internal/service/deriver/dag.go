package deriver

import (
	"sort"

	"isi-import/internal/domain"
)

// RequiredDependencyKind is the migration dependency kind that orders jobs.
const RequiredDependencyKind = "required"

// ResolveExecutionOrder computes a topological ordering of derived jobs
// using Kahn's algorithm over their required migration dependencies.
// Returns levels of job IDs where each level only depends on earlier levels.
// Dependencies on jobs outside the given set are external and ignored.
// Returns an error on self dependencies and cycles.
func ResolveExecutionOrder(jobs []domain.DerivedJob) ([][]string, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(jobs))
	dependents := make(map[string][]string) // dep ID → IDs of jobs that require it

	for _, j := range jobs {
		inDegree[j.ID] = 0
	}

	for _, j := range jobs {
		seen := make(map[string]struct{})
		for _, dep := range j.MigrationDependencies[RequiredDependencyKind] {
			if _, ok := inDegree[dep]; !ok {
				continue
			}
			if dep == j.ID {
				return nil, domain.ErrValidation("self dependency: %s", j.ID)
			}
			if _, dup := seen[dep]; dup {
				continue
			}
			seen[dep] = struct{}{}
			dependents[dep] = append(dependents[dep], j.ID)
			inDegree[j.ID]++
		}
	}

	var levels [][]string
	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	processed := 0
	for len(queue) > 0 {
		sort.Strings(queue)
		level := make([]string, len(queue))
		copy(level, queue)
		levels = append(levels, level)
		processed += len(level)

		var next []string
		for _, id := range queue {
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		queue = next
	}

	if processed != len(jobs) {
		var stuck []string
		for id, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, domain.ErrValidation("cycle detected in job dependencies: %v", stuck)
	}
	return levels, nil
}
