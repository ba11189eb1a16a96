package models

import "time"

type User struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Desk      string    `json:"desk,omitempty"`
	SectorID  *string   `json:"sector_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	RoleAdmin        = "ADMIN"
	RoleReceptionist = "RECEPTIONIST"
	RoleDoctor       = "DOCTOR"
)

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleReceptionist, RoleDoctor:
		return true
	default:
		return false
	}
}
