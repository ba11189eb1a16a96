package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/thiagoors/clinic-queue-system/internal/models"
	"github.com/thiagoors/clinic-queue-system/internal/store"
)

type createSectorRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Room string `json:"room"`
}

type updateSectorRequest struct {
	Name   *string `json:"name"`
	Type   *string `json:"type"`
	Room   *string `json:"room"`
	Active *bool   `json:"active"`
}

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Desk     string `json:"desk"`
	SectorID string `json:"sector_id"`
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
	Desk     *string `json:"desk"`
	SectorID *string `json:"sector_id"`
	Active   *bool   `json:"active"`
}

func (h *Handler) handleSectors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleListSectors(w, r)
	case http.MethodPost:
		h.handleCreateSector(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleListSectors(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"

	sectors, err := h.store.ListSectors(r.Context(), activeOnly)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if sectors == nil {
		sectors = []models.Sector{}
	}
	writeJSON(w, http.StatusOK, sectors)
}

func (h *Handler) handleCreateSector(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req createSectorRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	sector, err := h.store.CreateSector(r.Context(), store.CreateSectorInput{
		Name: req.Name,
		Type: strings.TrimSpace(req.Type),
		Room: strings.TrimSpace(req.Room),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, sector)
}

func (h *Handler) handleSectorByID(w http.ResponseWriter, r *http.Request) {
	sectorID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sectors/"), "/")
	if sectorID == "" || strings.Contains(sectorID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if _, ok := principalFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		sector, err := h.store.GetSector(r.Context(), sectorID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, sector)
	case http.MethodPatch:
		h.handleUpdateSector(w, r, sectorID)
	case http.MethodDelete:
		if !h.requireAdmin(w, r) {
			return
		}
		if err := h.store.DeactivateSector(r.Context(), sectorID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleUpdateSector(w http.ResponseWriter, r *http.Request, sectorID string) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req updateSectorRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if req.Name == nil && req.Type == nil && req.Room == nil && req.Active == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "no fields to update")
		return
	}

	sector, err := h.store.UpdateSector(r.Context(), sectorID, store.UpdateSectorInput{
		Name:   req.Name,
		Type:   req.Type,
		Room:   req.Room,
		Active: req.Active,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, sector)
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		role := strings.TrimSpace(r.URL.Query().Get("role"))
		if role != "" && !models.ValidRole(role) {
			writeError(w, http.StatusBadRequest, "invalid_request", "role must be ADMIN, RECEPTIONIST, or DOCTOR")
			return
		}
		users, err := h.store.ListUsers(r.Context(), role, r.URL.Query().Get("all") != "true")
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		if users == nil {
			users = []models.User{}
		}
		writeJSON(w, http.StatusOK, users)
	case http.MethodPost:
		h.handleCreateUser(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Role = strings.TrimSpace(req.Role)

	if req.Name == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name and email are required")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "invalid_request", "password must be at least 6 characters")
		return
	}
	if req.Role != "" && !models.ValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "invalid_request", "role must be ADMIN, RECEPTIONIST, or DOCTOR")
		return
	}

	user, err := h.store.CreateUser(r.Context(), store.CreateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		Desk:     strings.TrimSpace(req.Desk),
		SectorID: strings.TrimSpace(req.SectorID),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleUserByID(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	userID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/users/"), "/")
	if userID == "" || strings.Contains(userID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, err := h.store.GetUser(r.Context(), userID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPatch:
		h.handleUpdateUser(w, r, userID)
	case http.MethodDelete:
		if err := h.store.DeactivateUser(r.Context(), userID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request, userID string) {
	var req updateUserRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if req.Role != nil && !models.ValidRole(*req.Role) {
		writeError(w, http.StatusBadRequest, "invalid_request", "role must be ADMIN, RECEPTIONIST, or DOCTOR")
		return
	}
	if req.Password != nil && len(*req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "invalid_request", "password must be at least 6 characters")
		return
	}

	user, err := h.store.UpdateUser(r.Context(), userID, store.UpdateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		Desk:     req.Desk,
		SectorID: req.SectorID,
		Active:   req.Active,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return false
	}
	if principal.Role != models.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden", "admin role required")
		return false
	}
	return true
}
