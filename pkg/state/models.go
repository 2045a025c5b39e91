package state

import (
	"strconv"

	"github.com/google/uuid"
)

// Identity is the caller bound to a connection for its whole lifetime.
// It is a plain value and is copied freely.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// FallbackIdentity is attached to connections that present no credential, or
// an invalid one, while the resolver runs fail-open.
var FallbackIdentity = Identity{ID: 999, Username: "test_user", Role: RoleUser}

const (
	userRoomPrefix     = "user_"
	locationRoomPrefix = "room_"
)

// UserRoom names the implicit per-identity room every session joins on connect.
func UserRoom(id int64) string {
	return userRoomPrefix + strconv.FormatInt(id, 10)
}

// LocationRoom names an explicit room joined by client request.
func LocationRoom(location string) string {
	return locationRoomPrefix + location
}

// Member is anything the registry can hold and deliver to. Sessions
// implement it; Send must never block.
type Member interface {
	ID() uuid.UUID
	Identity() Identity
	Send(event string, payload any) error
}
