package model

import "time"

// Room is registry metadata for an active room. PlayerCount is a display
// cache refreshed from live transport occupancy; occupancy readings from the
// hub are authoritative and this field is never used for decisions.
type Room struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"createdAt"`
	Creator        string    `json:"creator"`
	LastActivity   time.Time `json:"lastActivity"`
	PlayerCount    int       `json:"playerCount"`
	GameInProgress bool      `json:"gameInProgress"`
	Empty          bool      `json:"empty"`
	EmptyTime      time.Time `json:"emptyTime,omitzero"`
}
