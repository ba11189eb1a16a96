package models

import "time"

type Ticket struct {
	TicketID         string     `json:"ticket_id"`
	TicketNumber     string     `json:"ticket_number"`
	Category         string     `json:"category"`
	IdentityFragment string     `json:"identity_fragment"`
	PatientName      string     `json:"patient_name,omitempty"`
	Status           string     `json:"status"`
	SectorID         *string    `json:"sector_id,omitempty"`
	SectorName       string     `json:"sector_name,omitempty"`
	CalledBy         *string    `json:"called_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CalledAt         *time.Time `json:"called_at,omitempty"`
	ForwardedAt      *time.Time `json:"forwarded_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

const (
	StatusWaitingReception = "WAITING_RECEPTION"
	StatusInReception      = "IN_RECEPTION"
	StatusWaitingSector    = "WAITING_SECTOR"
	StatusInSector         = "IN_SECTOR"
	StatusCompleted        = "COMPLETED"
	StatusCancelled        = "CANCELLED"
)

const (
	CategoryConsultation = "CONSULTATION"
	CategoryEmergency    = "EMERGENCY"
	CategoryPriority     = "PRIORITY"
)

// IdentityFragmentLength is the number of leading document digits a kiosk
// collects; the full document never enters the system.
const IdentityFragmentLength = 5

func ValidCategory(category string) bool {
	switch category {
	case CategoryConsultation, CategoryEmergency, CategoryPriority:
		return true
	default:
		return false
	}
}

// TicketPrefix maps a category to the letter its ticket numbers start with.
func TicketPrefix(category string) string {
	switch category {
	case CategoryConsultation:
		return "C"
	case CategoryEmergency:
		return "A"
	case CategoryPriority:
		return "P"
	default:
		return "G"
	}
}
