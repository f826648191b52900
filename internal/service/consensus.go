package service

import (
	"sort"

	"github.com/verdatum/lca-review-api/internal/models"
)

// ConsensusPolicy combines independent reviewer decisions into one
// authoritative outcome. Policies are pure: they never mutate state, which
// keeps the approval rule swappable without touching the state machine.
type ConsensusPolicy interface {
	Name() string
	Aggregate(task *models.ReviewTask, decisions []models.ReviewDecision) models.ConsensusOutcome
}

// PolicyFromName returns the policy for a configuration value, falling back
// to unanimity.
func PolicyFromName(name string) ConsensusPolicy {
	switch name {
	case "majority":
		return MajorityPolicy{}
	default:
		return UnanimousPolicy{}
	}
}

// UnanimousPolicy: every assigned reviewer must approve; a single rejection
// blocks immediately.
type UnanimousPolicy struct{}

func (UnanimousPolicy) Name() string { return "unanimous" }

func (UnanimousPolicy) Aggregate(task *models.ReviewTask, decisions []models.ReviewDecision) models.ConsensusOutcome {
	if reasons, rejected := collectRejections(decisions); rejected {
		return models.ConsensusOutcome{State: models.DecisionRejected, Reasons: reasons}
	}
	approved := 0
	for _, d := range decisions {
		if d.State == models.DecisionApproved {
			approved++
		}
	}
	if task != nil && approved >= len(task.ReviewerIDs) && len(task.ReviewerIDs) > 0 {
		return models.ConsensusOutcome{State: models.DecisionApproved}
	}
	return models.ConsensusOutcome{State: models.DecisionPending}
}

// MajorityPolicy: a strict majority of assigned reviewers approving
// publishes; any rejection still blocks. Rejection dominance keeps the
// aggregate monotonic under both policies.
type MajorityPolicy struct{}

func (MajorityPolicy) Name() string { return "majority" }

func (MajorityPolicy) Aggregate(task *models.ReviewTask, decisions []models.ReviewDecision) models.ConsensusOutcome {
	if reasons, rejected := collectRejections(decisions); rejected {
		return models.ConsensusOutcome{State: models.DecisionRejected, Reasons: reasons}
	}
	approved := 0
	for _, d := range decisions {
		if d.State == models.DecisionApproved {
			approved++
		}
	}
	if task != nil && len(task.ReviewerIDs) > 0 && approved*2 > len(task.ReviewerIDs) {
		return models.ConsensusOutcome{State: models.DecisionApproved}
	}
	return models.ConsensusOutcome{State: models.DecisionPending}
}

// collectRejections gathers rejection reasons ordered by reviewer id
// ascending and deduplicated, keeping the aggregate reproducible.
func collectRejections(decisions []models.ReviewDecision) ([]string, bool) {
	rejected := make([]models.ReviewDecision, 0, len(decisions))
	for _, d := range decisions {
		if d.State == models.DecisionRejected {
			rejected = append(rejected, d)
		}
	}
	if len(rejected) == 0 {
		return nil, false
	}
	sort.Slice(rejected, func(i, j int) bool {
		return rejected[i].ReviewerID < rejected[j].ReviewerID
	})
	reasons := make([]string, 0, len(rejected))
	seen := make(map[string]struct{}, len(rejected))
	for _, d := range rejected {
		if d.Reason == nil || *d.Reason == "" {
			continue
		}
		if _, dup := seen[*d.Reason]; dup {
			continue
		}
		seen[*d.Reason] = struct{}{}
		reasons = append(reasons, *d.Reason)
	}
	return reasons, true
}
