package store

import (
	"encoding/json"

	"github.com/thiagoors/clinic-queue-system/internal/models"
)

// Event types mirror what the waiting-room clients listen for. Each event
// carries the full current ticket, never a diff; call events also carry the
// call record.
const (
	EventTicketCreated   = "ticket-created"
	EventCallReception   = "call-reception"
	EventTicketForwarded = "ticket-forwarded"
	EventCallSector      = "call-sector"
	EventTicketCompleted = "ticket-completed"
	EventTicketUpdated   = "ticket-updated"
)

// Well-known channels. ChannelBroadcast reaches every connected client.
const (
	ChannelReception = "reception"
	ChannelDisplay   = "display"
	ChannelBroadcast = ""
)

func SectorChannel(sectorID string) string {
	return "sector-" + sectorID
}

type TicketEventPayload struct {
	Ticket models.Ticket `json:"ticket"`
}

type CallEventPayload struct {
	Call   models.Call   `json:"call"`
	Ticket models.Ticket `json:"ticket"`
}

func MarshalTicketEvent(ticket models.Ticket) (json.RawMessage, error) {
	return json.Marshal(TicketEventPayload{Ticket: ticket})
}

func MarshalCallEvent(call models.Call, ticket models.Ticket) (json.RawMessage, error) {
	return json.Marshal(CallEventPayload{Call: call, Ticket: ticket})
}
