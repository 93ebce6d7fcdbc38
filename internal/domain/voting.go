package domain

import (
	"sort"

	"github.com/yuantus/backend/internal/domain/models"
	"github.com/yuantus/backend/pkg/constants"
)

// ResolveOutcome applies a voting policy to the completed tasks of an
// activity instance and returns the resolved outcome label.
//
// The caller guarantees no task is still Pending. Tasks are ordered into an
// explicit log by (completed_at, seq) before the policy runs, so resolution
// is deterministic regardless of how the rows were fetched.
//
// The second return value is false when the policy cannot produce an outcome
// (Unanimous with disagreeing votes); the caller treats that as a stall.
func ResolveOutcome(policy models.VotingPolicy, tasks []*models.Task) (string, bool) {
	log := orderedVoteLog(tasks)

	if len(log) == 0 {
		// No task recorded any outcome: fall through to the default path
		return constants.OutcomeDefault, true
	}

	switch policy {
	case models.VotingMajority:
		return majorityOutcome(log), true

	case models.VotingUnanimous:
		first := *log[0].Outcome
		for _, t := range log[1:] {
			if *t.Outcome != first {
				return "", false
			}
		}
		return first, true

	default: // FirstCompletedWins
		return *log[0].Outcome, true
	}
}

// orderedVoteLog filters tasks with a recorded outcome and sorts them by
// completion time, breaking ties on the creation sequence number.
func orderedVoteLog(tasks []*models.Task) []*models.Task {
	log := make([]*models.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Outcome != nil && *t.Outcome != "" {
			log = append(log, t)
		}
	}
	sort.SliceStable(log, func(i, j int) bool {
		a, b := log[i], log[j]
		switch {
		case a.CompletedAt == nil:
			return false
		case b.CompletedAt == nil:
			return true
		case !a.CompletedAt.Equal(*b.CompletedAt):
			return a.CompletedAt.Before(*b.CompletedAt)
		}
		return a.Seq < b.Seq
	})
	return log
}

// majorityOutcome returns the most frequent outcome in the log; ties go to
// the outcome whose first vote completed earliest.
func majorityOutcome(log []*models.Task) string {
	counts := make(map[string]int)
	for _, t := range log {
		counts[*t.Outcome]++
	}

	best := *log[0].Outcome
	for _, t := range log {
		outcome := *t.Outcome
		if counts[outcome] > counts[best] {
			best = outcome
		}
	}
	return best
}
