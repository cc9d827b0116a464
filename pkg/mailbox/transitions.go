package mailbox

import "github.com/quackhq/quack/pkg/models"

// transitions is the lifecycle table. A target status is reachable only
// from the sources listed here; everything else is a caller error.
var transitions = map[models.MessageStatus][]models.MessageStatus{
	models.StatusPending:    {models.StatusApproved, models.StatusFailed},
	models.StatusApproved:   {models.StatusInProgress, models.StatusFailed},
	models.StatusInProgress: {models.StatusCompleted, models.StatusFailed},
	models.StatusRead:       {models.StatusInProgress},
	models.StatusCompleted:  {},
	models.StatusFailed:     {models.StatusPending},
}

// CanTransition reports whether from → to is allowed by the lifecycle table.
func CanTransition(from, to models.MessageStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
