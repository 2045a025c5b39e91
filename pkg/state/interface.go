package state

import (
	"github.com/google/uuid"
)

type Registry interface {
	// --- Connection Lifecycle ---
	Register(m Member) error
	Deregister(id uuid.UUID)
	Lookup(id uuid.UUID) (Member, bool)
	ConnectionCount() int
	Members() []Member

	// --- Room & Membership Management ---
	// adds a member to a room, creating the room if it doesn't exist.
	// Joining a room twice is a no-op.
	Join(m Member, room string)
	// Leaving a room the member never joined is a no-op.
	Leave(m Member, room string)
	// removes the member from every room it belongs to.
	DropAll(m Member)
	MembersOf(room string) []Member
	RoomsOf(id uuid.UUID) []string
	RoomCount() int

	// Broadcast calls fn once for each member of room while holding the
	// registry read lock, so the set visited is a consistent snapshot.
	// fn must not block and must not call back into the registry.
	// Returns the number of members visited.
	Broadcast(room string, fn func(Member)) int
}
