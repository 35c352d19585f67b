package domain

import "time"

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

func StatusOf(online bool) Status {
	if online {
		return StatusOnline
	}
	return StatusOffline
}

// StatusRecord is the coarse status field mirrored to storage.
// The registry stays the source of truth.
type StatusRecord struct {
	UserID    UserID
	Status    Status
	UpdatedAt time.Time
}
