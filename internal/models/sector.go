package models

import "time"

type Sector struct {
	SectorID  string    `json:"sector_id"`
	Name      string    `json:"name"`
	Room      string    `json:"room"`
	Type      string    `json:"type"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
