// Package domain contains core concepts of the chat system.
// No runtime, network, or storage logic should be added here.
package domain

import "strconv"

// UserID identifies an account. Issued by the identity collaborator.
type UserID int64

func (u UserID) String() string {
	return strconv.FormatInt(int64(u), 10)
}

// MessageID is assigned by the message repository at write time.
// Ids are strictly increasing and are the only reconciliation key clients use.
type MessageID uint64

// ConnID identifies one live transport connection.
type ConnID string
