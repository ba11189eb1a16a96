package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/thiagoors/clinic-queue-system/internal/models"
	"github.com/thiagoors/clinic-queue-system/internal/store"
)

type fakeStore struct {
	createFn           func(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error)
	getTicketFn        func(ctx context.Context, ticketID string) (models.Ticket, error)
	callFn             func(ctx context.Context, input store.TransitionInput) (models.Ticket, models.Call, error)
	forwardFn          func(ctx context.Context, input store.ForwardInput) (models.Ticket, error)
	callSectorFn       func(ctx context.Context, input store.TransitionInput) (models.Ticket, models.Call, error)
	completeFn         func(ctx context.Context, input store.TransitionInput) (models.Ticket, error)
	cancelFn           func(ctx context.Context, input store.TransitionInput) (models.Ticket, error)
	listTicketsFn      func(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error)
	listCallsFn        func(ctx context.Context, filter store.CallFilter) ([]models.Call, error)
	statsFn            func(ctx context.Context) (models.Stats, error)
	listSectorsFn      func(ctx context.Context, activeOnly bool) ([]models.Sector, error)
	getSectorFn        func(ctx context.Context, sectorID string) (models.Sector, error)
	createSectorFn     func(ctx context.Context, input store.CreateSectorInput) (models.Sector, error)
	updateSectorFn     func(ctx context.Context, sectorID string, input store.UpdateSectorInput) (models.Sector, error)
	deactivateSectorFn func(ctx context.Context, sectorID string) error
	listUsersFn        func(ctx context.Context, role string, activeOnly bool) ([]models.User, error)
	getUserFn          func(ctx context.Context, userID string) (models.User, error)
	createUserFn       func(ctx context.Context, input store.CreateUserInput) (models.User, error)
	updateUserFn       func(ctx context.Context, userID string, input store.UpdateUserInput) (models.User, error)
	deactivateUserFn   func(ctx context.Context, userID string) error
	loginFn            func(ctx context.Context, input store.LoginInput) (store.LoginResult, error)
	getSessionFn       func(ctx context.Context, token string) (store.Principal, error)
}

func (f fakeStore) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	if f.createFn == nil {
		return models.Ticket{}, nil
	}
	return f.createFn(ctx, input)
}

func (f fakeStore) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	if f.getTicketFn == nil {
		return models.Ticket{}, nil
	}
	return f.getTicketFn(ctx, ticketID)
}

func (f fakeStore) CallTicket(ctx context.Context, input store.TransitionInput) (models.Ticket, models.Call, error) {
	if f.callFn == nil {
		return models.Ticket{}, models.Call{}, nil
	}
	return f.callFn(ctx, input)
}

func (f fakeStore) ForwardTicket(ctx context.Context, input store.ForwardInput) (models.Ticket, error) {
	if f.forwardFn == nil {
		return models.Ticket{}, nil
	}
	return f.forwardFn(ctx, input)
}

func (f fakeStore) CallSector(ctx context.Context, input store.TransitionInput) (models.Ticket, models.Call, error) {
	if f.callSectorFn == nil {
		return models.Ticket{}, models.Call{}, nil
	}
	return f.callSectorFn(ctx, input)
}

func (f fakeStore) CompleteTicket(ctx context.Context, input store.TransitionInput) (models.Ticket, error) {
	if f.completeFn == nil {
		return models.Ticket{}, nil
	}
	return f.completeFn(ctx, input)
}

func (f fakeStore) CancelTicket(ctx context.Context, input store.TransitionInput) (models.Ticket, error) {
	if f.cancelFn == nil {
		return models.Ticket{}, nil
	}
	return f.cancelFn(ctx, input)
}

func (f fakeStore) ListTickets(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error) {
	if f.listTicketsFn == nil {
		return nil, nil
	}
	return f.listTicketsFn(ctx, filter)
}

func (f fakeStore) ListCalls(ctx context.Context, filter store.CallFilter) ([]models.Call, error) {
	if f.listCallsFn == nil {
		return nil, nil
	}
	return f.listCallsFn(ctx, filter)
}

func (f fakeStore) Stats(ctx context.Context) (models.Stats, error) {
	if f.statsFn == nil {
		return models.Stats{}, nil
	}
	return f.statsFn(ctx)
}

func (f fakeStore) ListSectors(ctx context.Context, activeOnly bool) ([]models.Sector, error) {
	if f.listSectorsFn == nil {
		return nil, nil
	}
	return f.listSectorsFn(ctx, activeOnly)
}

func (f fakeStore) GetSector(ctx context.Context, sectorID string) (models.Sector, error) {
	if f.getSectorFn == nil {
		return models.Sector{}, nil
	}
	return f.getSectorFn(ctx, sectorID)
}

func (f fakeStore) CreateSector(ctx context.Context, input store.CreateSectorInput) (models.Sector, error) {
	if f.createSectorFn == nil {
		return models.Sector{}, nil
	}
	return f.createSectorFn(ctx, input)
}

func (f fakeStore) UpdateSector(ctx context.Context, sectorID string, input store.UpdateSectorInput) (models.Sector, error) {
	if f.updateSectorFn == nil {
		return models.Sector{}, nil
	}
	return f.updateSectorFn(ctx, sectorID, input)
}

func (f fakeStore) DeactivateSector(ctx context.Context, sectorID string) error {
	if f.deactivateSectorFn == nil {
		return nil
	}
	return f.deactivateSectorFn(ctx, sectorID)
}

func (f fakeStore) ListUsers(ctx context.Context, role string, activeOnly bool) ([]models.User, error) {
	if f.listUsersFn == nil {
		return nil, nil
	}
	return f.listUsersFn(ctx, role, activeOnly)
}

func (f fakeStore) GetUser(ctx context.Context, userID string) (models.User, error) {
	if f.getUserFn == nil {
		return models.User{}, nil
	}
	return f.getUserFn(ctx, userID)
}

func (f fakeStore) CreateUser(ctx context.Context, input store.CreateUserInput) (models.User, error) {
	if f.createUserFn == nil {
		return models.User{}, nil
	}
	return f.createUserFn(ctx, input)
}

func (f fakeStore) UpdateUser(ctx context.Context, userID string, input store.UpdateUserInput) (models.User, error) {
	if f.updateUserFn == nil {
		return models.User{}, nil
	}
	return f.updateUserFn(ctx, userID, input)
}

func (f fakeStore) DeactivateUser(ctx context.Context, userID string) error {
	if f.deactivateUserFn == nil {
		return nil
	}
	return f.deactivateUserFn(ctx, userID)
}

func (f fakeStore) Login(ctx context.Context, input store.LoginInput) (store.LoginResult, error) {
	if f.loginFn == nil {
		return store.LoginResult{}, nil
	}
	return f.loginFn(ctx, input)
}

func (f fakeStore) GetSession(ctx context.Context, token string) (store.Principal, error) {
	if f.getSessionFn == nil {
		return store.Principal{}, store.ErrSessionNotFound
	}
	return f.getSessionFn(ctx, token)
}

func serveWithSession(st fakeStore, req *http.Request) *httptest.ResponseRecorder {
	h := NewHandler(st)
	resp := httptest.NewRecorder()
	SessionMiddleware(st)(h.Routes()).ServeHTTP(resp, req)
	return resp
}

func sessionFor(principal store.Principal) func(ctx context.Context, token string) (store.Principal, error) {
	return func(ctx context.Context, token string) (store.Principal, error) {
		if token != "valid-token" {
			return store.Principal{}, store.ErrSessionNotFound
		}
		return principal, nil
	}
}

func TestCreateTicketSuccess(t *testing.T) {
	st := fakeStore{
		createFn: func(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
			if input.Category != models.CategoryPriority {
				t.Fatalf("unexpected category %q", input.Category)
			}
			if input.IdentityFragment != "12345" {
				t.Fatalf("unexpected fragment %q", input.IdentityFragment)
			}
			return models.Ticket{
				TicketID:         "ticket-1",
				TicketNumber:     "P001",
				Category:         input.Category,
				IdentityFragment: input.IdentityFragment,
				Status:           models.StatusWaitingReception,
			}, nil
		},
	}

	body, _ := json.Marshal(map[string]string{
		"category":          "PRIORITY",
		"identity_fragment": "12345",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/tickets", bytes.NewReader(body))
	resp := serveWithSession(st, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}

	var ticket models.Ticket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ticket.TicketNumber != "P001" || ticket.Status != models.StatusWaitingReception {
		t.Fatalf("unexpected ticket response: %+v", ticket)
	}
}

func TestCreateTicketInvalidFragment(t *testing.T) {
	for _, fragment := range []string{"", "1234", "123456", "12a45"} {
		body, _ := json.Marshal(map[string]string{
			"category":          "CONSULTATION",
			"identity_fragment": fragment,
		})
		req := httptest.NewRequest(http.MethodPost, "/api/tickets", bytes.NewReader(body))
		resp := serveWithSession(fakeStore{}, req)

		if resp.Code != http.StatusBadRequest {
			t.Fatalf("fragment %q: expected status 400, got %d", fragment, resp.Code)
		}
	}
}

func TestCreateTicketInvalidCategory(t *testing.T) {
	body, _ := json.Marshal(map[string]string{
		"category":          "SURGERY",
		"identity_fragment": "12345",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/tickets", bytes.NewReader(body))
	resp := serveWithSession(fakeStore{}, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestListTicketsRequiresSession(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
	resp := serveWithSession(fakeStore{}, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestListTicketsPassesFilter(t *testing.T) {
	var captured store.TicketFilter
	st := fakeStore{
		getSessionFn: sessionFor(store.Principal{UserID: "u1", Role: models.RoleReceptionist}),
		listTicketsFn: func(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error) {
			captured = filter
			return []models.Ticket{{TicketID: "ticket-1"}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/tickets?status=WAITING_SECTOR&sector_id=s1&today=true", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	resp := serveWithSession(st, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if captured.Status != models.StatusWaitingSector || captured.SectorID != "s1" || !captured.Today {
		t.Fatalf("unexpected filter: %+v", captured)
	}
}

func TestCallTicketConflict(t *testing.T) {
	st := fakeStore{
		getSessionFn: sessionFor(store.Principal{UserID: "u1", Role: models.RoleReceptionist}),
		callFn: func(ctx context.Context, input store.TransitionInput) (models.Ticket, models.Call, error) {
			return models.Ticket{}, models.Call{}, store.ErrInvalidTransition
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/ticket-1/call", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	resp := serveWithSession(st, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}

	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error.Code != "invalid_transition" {
		t.Fatalf("unexpected error code %q", body.Error.Code)
	}
}

func TestCallTicketSuccess(t *testing.T) {
	st := fakeStore{
		getSessionFn: sessionFor(store.Principal{UserID: "u1", Name: "Ana", Role: models.RoleReceptionist}),
		callFn: func(ctx context.Context, input store.TransitionInput) (models.Ticket, models.Call, error) {
			if input.TicketID != "ticket-1" {
				t.Fatalf("unexpected ticket id %q", input.TicketID)
			}
			if input.Caller.UserID != "u1" {
				t.Fatalf("unexpected caller %+v", input.Caller)
			}
			return models.Ticket{TicketID: "ticket-1", Status: models.StatusInReception}, models.Call{}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/ticket-1/call", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	resp := serveWithSession(st, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestForwardRequiresFields(t *testing.T) {
	st := fakeStore{
		getSessionFn: sessionFor(store.Principal{UserID: "u1", Role: models.RoleReceptionist}),
	}

	body, _ := json.Marshal(map[string]string{"sector_id": "s1"})
	req := httptest.NewRequest(http.MethodPost, "/api/tickets/ticket-1/forward", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer valid-token")
	resp := serveWithSession(st, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestForwardSuccess(t *testing.T) {
	st := fakeStore{
		getSessionFn: sessionFor(store.Principal{UserID: "u1", Role: models.RoleReceptionist}),
		forwardFn: func(ctx context.Context, input store.ForwardInput) (models.Ticket, error) {
			if input.SectorID != "s1" || input.PatientName != "Maria Silva" {
				t.Fatalf("unexpected input: %+v", input)
			}
			return models.Ticket{TicketID: input.TicketID, Status: models.StatusWaitingSector}, nil
		},
	}

	body, _ := json.Marshal(map[string]string{
		"sector_id":    "s1",
		"patient_name": "Maria Silva",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/tickets/ticket-1/forward", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer valid-token")
	resp := serveWithSession(st, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestCallSectorForbidden(t *testing.T) {
	st := fakeStore{
		getSessionFn: sessionFor(store.Principal{UserID: "u1", Role: models.RoleDoctor}),
		callSectorFn: func(ctx context.Context, input store.TransitionInput) (models.Ticket, models.Call, error) {
			return models.Ticket{}, models.Call{}, store.ErrForbidden
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/ticket-1/call-sector", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	resp := serveWithSession(st, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

func TestTicketActionUnknown(t *testing.T) {
	st := fakeStore{
		getSessionFn: sessionFor(store.Principal{UserID: "u1", Role: models.RoleAdmin}),
	}

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/ticket-1/escalate", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	resp := serveWithSession(st, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestCallsFeedPublic(t *testing.T) {
	st := fakeStore{
		listCallsFn: func(ctx context.Context, filter store.CallFilter) ([]models.Call, error) {
			if filter.Type != models.CallTypeReception {
				t.Fatalf("unexpected type %q", filter.Type)
			}
			if filter.Limit != 10 {
				t.Fatalf("unexpected limit %d", filter.Limit)
			}
			return []models.Call{{CallID: "call-1"}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/calls?type=RECEPTION&limit=10", nil)
	resp := serveWithSession(st, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestCallsRejectsBadLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/calls?limit=abc", nil)
	resp := serveWithSession(fakeStore{}, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestStatsPublic(t *testing.T) {
	st := fakeStore{
		statsFn: func(ctx context.Context) (models.Stats, error) {
			return models.Stats{TotalTickets: 12, WaitingReception: 3, InProgress: 2}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/calls/stats", nil)
	resp := serveWithSession(st, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var stats models.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.TotalTickets != 12 || stats.WaitingReception != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSectorsListPublic(t *testing.T) {
	st := fakeStore{
		listSectorsFn: func(ctx context.Context, activeOnly bool) ([]models.Sector, error) {
			if !activeOnly {
				t.Fatal("expected active-only listing by default")
			}
			return []models.Sector{{SectorID: "s1", Name: "Cardiologia"}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sectors", nil)
	resp := serveWithSession(st, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestCreateSectorRequiresAdmin(t *testing.T) {
	st := fakeStore{
		getSessionFn: sessionFor(store.Principal{UserID: "u1", Role: models.RoleReceptionist}),
	}

	body, _ := json.Marshal(map[string]string{"name": "Ortopedia"})
	req := httptest.NewRequest(http.MethodPost, "/api/sectors", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer valid-token")
	resp := serveWithSession(st, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

func TestCreateSectorAsAdmin(t *testing.T) {
	st := fakeStore{
		getSessionFn: sessionFor(store.Principal{UserID: "u1", Role: models.RoleAdmin}),
		createSectorFn: func(ctx context.Context, input store.CreateSectorInput) (models.Sector, error) {
			return models.Sector{SectorID: "s1", Name: input.Name}, nil
		},
	}

	body, _ := json.Marshal(map[string]string{"name": "Ortopedia", "room": "Sala 3"})
	req := httptest.NewRequest(http.MethodPost, "/api/sectors", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer valid-token")
	resp := serveWithSession(st, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}
}

func TestDeactivateSector(t *testing.T) {
	deactivated := ""
	st := fakeStore{
		getSessionFn: sessionFor(store.Principal{UserID: "u1", Role: models.RoleAdmin}),
		deactivateSectorFn: func(ctx context.Context, sectorID string) error {
			deactivated = sectorID
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/sectors/s1", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	resp := serveWithSession(st, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.Code)
	}
	if deactivated != "s1" {
		t.Fatalf("expected sector s1 deactivated, got %q", deactivated)
	}
}

func TestCreateUserValidatesRole(t *testing.T) {
	st := fakeStore{
		getSessionFn: sessionFor(store.Principal{UserID: "u1", Role: models.RoleAdmin}),
	}

	body, _ := json.Marshal(map[string]string{
		"name":     "Novo",
		"email":    "novo@clinic.local",
		"password": "secret1",
		"role":     "NURSE",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/users", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer valid-token")
	resp := serveWithSession(st, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestCreateUserEmailTaken(t *testing.T) {
	st := fakeStore{
		getSessionFn: sessionFor(store.Principal{UserID: "u1", Role: models.RoleAdmin}),
		createUserFn: func(ctx context.Context, input store.CreateUserInput) (models.User, error) {
			return models.User{}, store.ErrEmailTaken
		},
	}

	body, _ := json.Marshal(map[string]string{
		"name":     "Novo",
		"email":    "novo@clinic.local",
		"password": "secret1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/users", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer valid-token")
	resp := serveWithSession(st, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestLoginSuccess(t *testing.T) {
	st := fakeStore{
		loginFn: func(ctx context.Context, input store.LoginInput) (store.LoginResult, error) {
			if input.Email != "ana@clinic.local" {
				t.Fatalf("unexpected email %q", input.Email)
			}
			return store.LoginResult{
				SessionID: "session-token",
				User:      models.User{UserID: "u1", Name: "Ana", Role: models.RoleReceptionist},
			}, nil
		},
	}

	body, _ := json.Marshal(map[string]string{
		"email":    "Ana@clinic.local",
		"password": "secret1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	resp := serveWithSession(st, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var result loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Token != "session-token" || result.User.UserID != "u1" {
		t.Fatalf("unexpected login response: %+v", result)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	st := fakeStore{
		loginFn: func(ctx context.Context, input store.LoginInput) (store.LoginResult, error) {
			return store.LoginResult{}, store.ErrInvalidCredentials
		},
	}

	body, _ := json.Marshal(map[string]string{
		"email":    "ana@clinic.local",
		"password": "wrong",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	resp := serveWithSession(st, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestMeReturnsPrincipal(t *testing.T) {
	st := fakeStore{
		getSessionFn: sessionFor(store.Principal{UserID: "u1", Name: "Ana", Role: models.RoleReceptionist, Desk: "Guichê 2"}),
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	resp := serveWithSession(st, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var principal store.Principal
	if err := json.NewDecoder(resp.Body).Decode(&principal); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if principal.UserID != "u1" || principal.Desk != "Guichê 2" {
		t.Fatalf("unexpected principal: %+v", principal)
	}
}

func TestMeWithoutToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	resp := serveWithSession(fakeStore{}, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}

	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error.Message != "missing session" {
		t.Fatalf("unexpected error message %q", body.Error.Message)
	}
}

func TestStaleTokenRejected(t *testing.T) {
	st := fakeStore{
		getSessionFn: sessionFor(store.Principal{UserID: "u1", Role: models.RoleReceptionist}),
	}

	// A presented token that no longer resolves is an authentication failure,
	// not an anonymous request, even on an otherwise public endpoint.
	for _, path := range []string{"/api/auth/me", "/api/calls"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer expired-token")
		resp := serveWithSession(st, req)

		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected status 401, got %d", path, resp.Code)
		}

		var body errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("%s: decode response: %v", path, err)
		}
		if body.Error.Message != "invalid session" {
			t.Fatalf("%s: unexpected error message %q", path, body.Error.Message)
		}
	}
}
