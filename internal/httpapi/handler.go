package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/thiagoors/clinic-queue-system/internal/models"
	"github.com/thiagoors/clinic-queue-system/internal/store"
)

type Handler struct {
	store store.TicketStore
}

type createTicketRequest struct {
	Category         string `json:"category"`
	IdentityFragment string `json:"identity_fragment"`
}

type forwardRequest struct {
	SectorID    string `json:"sector_id"`
	PatientName string `json:"patient_name"`
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(store store.TicketStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/tickets", h.handleTickets)
	mux.HandleFunc("/api/tickets/", h.handleTicketByID)
	mux.HandleFunc("/api/calls", h.handleCalls)
	mux.HandleFunc("/api/calls/stats", h.handleStats)
	mux.HandleFunc("/api/sectors", h.handleSectors)
	mux.HandleFunc("/api/sectors/", h.handleSectorByID)
	mux.HandleFunc("/api/users", h.handleUsers)
	mux.HandleFunc("/api/users/", h.handleUserByID)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleTickets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreateTicket(w, r)
	case http.MethodGet:
		h.handleListTickets(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req createTicketRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Category = strings.TrimSpace(req.Category)
	req.IdentityFragment = strings.TrimSpace(req.IdentityFragment)

	if !models.ValidCategory(req.Category) {
		writeError(w, http.StatusBadRequest, "invalid_request", "category must be CONSULTATION, EMERGENCY, or PRIORITY")
		return
	}
	if !isValidIdentityFragment(req.IdentityFragment) {
		writeError(w, http.StatusBadRequest, "invalid_request", "identity_fragment must be exactly 5 digits")
		return
	}

	ticket, err := h.store.CreateTicket(r.Context(), store.CreateTicketInput{
		Category:         req.Category,
		IdentityFragment: req.IdentityFragment,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) handleListTickets(w http.ResponseWriter, r *http.Request) {
	if _, ok := principalFromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	filter := store.TicketFilter{
		Status:   strings.TrimSpace(r.URL.Query().Get("status")),
		SectorID: strings.TrimSpace(r.URL.Query().Get("sector_id")),
		Today:    r.URL.Query().Get("today") == "true",
	}

	tickets, err := h.store.ListTickets(r.Context(), filter)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

// handleTicketByID serves GET /api/tickets/{id} and the transition actions
// POST /api/tickets/{id}/{call|forward|call-sector|complete|cancel}.
func (h *Handler) handleTicketByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tickets/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch len(parts) {
	case 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGetTicket(w, r, parts[0])
	case 2:
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleTicketAction(w, r, parts[0], parts[1])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	if _, ok := principalFromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	if ticketID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "ticket id is required")
		return
	}

	ticket, err := h.store.GetTicket(r.Context(), ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleTicketAction(w http.ResponseWriter, r *http.Request, ticketID, action string) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	if ticketID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "ticket id is required")
		return
	}

	input := store.TransitionInput{
		TicketID:   ticketID,
		Caller:     principal,
		OccurredAt: time.Now().UTC(),
	}

	var ticket models.Ticket
	var err error
	switch action {
	case "call":
		ticket, _, err = h.store.CallTicket(r.Context(), input)
	case "forward":
		h.handleForward(w, r, ticketID, principal)
		return
	case "call-sector":
		ticket, _, err = h.store.CallSector(r.Context(), input)
	case "complete":
		ticket, err = h.store.CompleteTicket(r.Context(), input)
	case "cancel":
		ticket, err = h.store.CancelTicket(r.Context(), input)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleForward(w http.ResponseWriter, r *http.Request, ticketID string, principal store.Principal) {
	var req forwardRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.SectorID = strings.TrimSpace(req.SectorID)
	req.PatientName = strings.TrimSpace(req.PatientName)
	if req.SectorID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "sector_id is required")
		return
	}
	if req.PatientName == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "patient_name is required")
		return
	}

	ticket, err := h.store.ForwardTicket(r.Context(), store.ForwardInput{
		TicketID:    ticketID,
		SectorID:    req.SectorID,
		PatientName: req.PatientName,
		Caller:      principal,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	filter := store.CallFilter{Type: strings.TrimSpace(r.URL.Query().Get("type"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	calls, err := h.store.ListCalls(r.Context(), filter)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if calls == nil {
		calls = []models.Call{}
	}
	writeJSON(w, http.StatusOK, calls)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.store.Stats(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func isValidIdentityFragment(value string) bool {
	if len(value) != models.IdentityFragmentLength {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrSectorNotFound):
		return http.StatusNotFound, "sector_not_found", "sector not found"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "ticket state does not allow this action"
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden, "forbidden", "caller is not allowed to perform this action"
	case errors.Is(err, store.ErrAllocationFailed):
		return http.StatusServiceUnavailable, "allocation_failed", "could not allocate a ticket number, try again"
	case errors.Is(err, store.ErrEmailTaken):
		return http.StatusConflict, "email_taken", "email already registered"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid credentials"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
