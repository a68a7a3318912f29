package store

import "time"

type Room struct {
	ID           string
	Title        string
	CreatorID    string
	CreatorEmail string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccessEntry is one row of a room's access map. Capabilities is the raw
// stored token list; role evaluation happens above the store.
type AccessEntry struct {
	RoomID       string
	Email        string
	Capabilities []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
