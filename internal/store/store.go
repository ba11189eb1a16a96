package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/thiagoors/clinic-queue-system/internal/models"
)

// Principal is the authenticated caller resolved from a session. Desk is set
// for receptionists, SectorID for doctors bound to a sector.
type Principal struct {
	UserID   string
	Name     string
	Role     string
	Desk     string
	SectorID string
}

type CreateTicketInput struct {
	Category         string
	IdentityFragment string
	CreatedAt        time.Time
}

type TransitionInput struct {
	TicketID   string
	Caller     Principal
	OccurredAt time.Time
}

type ForwardInput struct {
	TicketID    string
	SectorID    string
	PatientName string
	Caller      Principal
	OccurredAt  time.Time
}

type TicketFilter struct {
	Status   string
	SectorID string
	Today    bool
}

type CallFilter struct {
	Type  string
	Limit int
}

type LoginInput struct {
	Email    string
	Password string
}

type LoginResult struct {
	SessionID string
	ExpiresAt time.Time
	User      models.User
}

type CreateSectorInput struct {
	Name string
	Room string
	Type string
}

type UpdateSectorInput struct {
	Name   *string
	Room   *string
	Type   *string
	Active *bool
}

type CreateUserInput struct {
	Name     string
	Email    string
	Password string
	Role     string
	Desk     string
	SectorID string
}

type UpdateUserInput struct {
	Name     *string
	Email    *string
	Password *string
	Role     *string
	Desk     *string
	SectorID *string
	Active   *bool
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Channel   string          `json:"channel"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type OutboxOffset struct {
	LastEventTime time.Time
	LastEventID   string
}

type TicketStore interface {
	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	CallTicket(ctx context.Context, input TransitionInput) (models.Ticket, models.Call, error)
	ForwardTicket(ctx context.Context, input ForwardInput) (models.Ticket, error)
	CallSector(ctx context.Context, input TransitionInput) (models.Ticket, models.Call, error)
	CompleteTicket(ctx context.Context, input TransitionInput) (models.Ticket, error)
	CancelTicket(ctx context.Context, input TransitionInput) (models.Ticket, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]models.Ticket, error)
	ListCalls(ctx context.Context, filter CallFilter) ([]models.Call, error)
	Stats(ctx context.Context) (models.Stats, error)

	ListSectors(ctx context.Context, activeOnly bool) ([]models.Sector, error)
	GetSector(ctx context.Context, sectorID string) (models.Sector, error)
	CreateSector(ctx context.Context, input CreateSectorInput) (models.Sector, error)
	UpdateSector(ctx context.Context, sectorID string, input UpdateSectorInput) (models.Sector, error)
	DeactivateSector(ctx context.Context, sectorID string) error

	ListUsers(ctx context.Context, role string, activeOnly bool) ([]models.User, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
	CreateUser(ctx context.Context, input CreateUserInput) (models.User, error)
	UpdateUser(ctx context.Context, userID string, input UpdateUserInput) (models.User, error)
	DeactivateUser(ctx context.Context, userID string) error

	Login(ctx context.Context, input LoginInput) (LoginResult, error)
	GetSession(ctx context.Context, sessionID string) (Principal, error)
}
