package orchestrator

import (
	"fmt"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
)

var validTransitions = map[domain.RunStatus][]domain.RunStatus{
	domain.RunPending: {
		domain.RunRunning,
		domain.RunFailed,   // no adapter, or the audit failed
		domain.RunTimedOut, // the audit or the wait for a renderer used up the budget
	},
	domain.RunRunning: {
		domain.RunSuccess,
		domain.RunFailed,
		domain.RunTimedOut,
	},
	domain.RunSuccess:  {},
	domain.RunFailed:   {},
	domain.RunTimedOut: {},
}

// ValidateTransition checks whether a run may move from one status to another.
func ValidateTransition(from, to domain.RunStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown run status: %s", from)
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return fmt.Errorf("invalid run transition from %s to %s", from, to)
}
