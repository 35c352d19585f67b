package domain

import "time"

// PersistedMessage is a chat message as stored by the message repository.
// It is owned by persistence and only referenced by the router.
type PersistedMessage struct {
	ID        MessageID
	Content   string
	AuthorID  UserID
	Target    Target
	Lang      string
	CreatedAt time.Time
}
