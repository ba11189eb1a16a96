package store

import "github.com/thiagoors/clinic-queue-system/internal/models"

const (
	ActionCall       = "call"
	ActionForward    = "forward"
	ActionCallSector = "call_sector"
	ActionComplete   = "complete"
	ActionCancel     = "cancel"
)

type guard struct {
	roles []string // empty = any authenticated caller
	from  []string
}

// Every protected transition is checked against this table before any state
// is touched. Cancellation stops at IN_SECTOR: once a patient is with a
// sector the visit is completed or abandoned, never cancelled.
var guards = map[string]guard{
	ActionCall: {
		roles: []string{models.RoleReceptionist, models.RoleAdmin},
		from:  []string{models.StatusWaitingReception},
	},
	ActionForward: {
		roles: []string{models.RoleReceptionist, models.RoleAdmin},
		from:  []string{models.StatusInReception},
	},
	ActionCallSector: {
		roles: []string{models.RoleDoctor, models.RoleAdmin},
		from:  []string{models.StatusWaitingSector},
	},
	ActionComplete: {
		from: []string{models.StatusInSector},
	},
	ActionCancel: {
		from: []string{models.StatusWaitingReception, models.StatusInReception, models.StatusWaitingSector},
	},
}

func RoleAllowed(action, role string) bool {
	g, ok := guards[action]
	if !ok {
		return false
	}
	if len(g.roles) == 0 {
		return role != ""
	}
	for _, allowed := range g.roles {
		if allowed == role {
			return true
		}
	}
	return false
}

func ValidTransition(action, fromStatus string) bool {
	g, ok := guards[action]
	if !ok {
		return false
	}
	for _, status := range g.from {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// SourceStatuses returns the statuses a ticket may be in for the action to
// apply, for use in conditional updates.
func SourceStatuses(action string) []string {
	g, ok := guards[action]
	if !ok {
		return nil
	}
	return append([]string(nil), g.from...)
}
