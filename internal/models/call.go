package models

import "time"

// Call is the immutable record behind the display board's recent-calls feed.
type Call struct {
	CallID     string    `json:"call_id"`
	TicketID   string    `json:"ticket_id"`
	UserID     string    `json:"user_id"`
	Message    string    `json:"message"`
	Type       string    `json:"type"`
	Desk       string    `json:"desk,omitempty"`
	Room       string    `json:"room,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Ticket     *Ticket   `json:"ticket,omitempty"`
	CallerName string    `json:"caller_name,omitempty"`
}

const (
	CallTypeReception = "RECEPTION"
	CallTypeSector    = "SECTOR"
)

type Stats struct {
	TotalTickets     int `json:"total_tickets"`
	WaitingReception int `json:"waiting_reception"`
	WaitingSector    int `json:"waiting_sector"`
	Completed        int `json:"completed"`
	InProgress       int `json:"in_progress"`
}
