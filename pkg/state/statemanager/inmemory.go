package statemanager

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/a-essam23/socket-gateway/pkg/state"
	"github.com/google/uuid"
)

var ErrAlreadyRegistered = errors.New("member is already registered")

// InMemoryManager is the single-process room registry. One RWMutex guards
// every map so that joins, leaves, drop-alls and broadcast snapshots are
// totally ordered.
type InMemoryManager struct {
	members     map[uuid.UUID]state.Member
	rooms       map[string]map[uuid.UUID]state.Member
	memberRooms map[uuid.UUID]map[string]struct{}

	mu sync.RWMutex

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		members:     make(map[uuid.UUID]state.Member),
		rooms:       make(map[string]map[uuid.UUID]state.Member),
		memberRooms: make(map[uuid.UUID]map[string]struct{}),
		logger:      logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Registry.
var _ state.Registry = (*InMemoryManager)(nil)

// --- Connection Lifecycle ---

func (m *InMemoryManager) Register(member state.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := member.ID()
	if _, exists := m.members[id]; exists {
		return ErrAlreadyRegistered
	}
	m.members[id] = member
	m.memberRooms[id] = make(map[string]struct{})
	m.logger.Debug("Member registered", slog.String("connID", id.String()))
	return nil
}

// Deregister drops every membership and forgets the member. Joins issued
// for it afterwards are ignored.
func (m *InMemoryManager) Deregister(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.members[id]; !ok {
		// already deregistered
		return
	}
	m.dropAllLocked(id)
	delete(m.members, id)
	delete(m.memberRooms, id)
	m.logger.Debug("Member deregistered", slog.String("connID", id.String()))
}

func (m *InMemoryManager) Lookup(id uuid.UUID) (state.Member, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	member, ok := m.members[id]
	return member, ok
}

func (m *InMemoryManager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.members)
}

func (m *InMemoryManager) Members() []state.Member {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := make([]state.Member, 0, len(m.members))
	for _, member := range m.members {
		members = append(members, member)
	}
	return members
}

// --- Room & Membership Management ---

func (m *InMemoryManager) Join(member state.Member, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := member.ID()
	joined, ok := m.memberRooms[id]
	if !ok {
		m.logger.Debug("Ignoring join for unregistered member",
			slog.String("connID", id.String()),
			slog.String("roomID", roomID),
		)
		return
	}
	if _, exists := joined[roomID]; exists {
		return
	}

	room, exists := m.rooms[roomID]
	if !exists {
		room = make(map[uuid.UUID]state.Member)
		m.rooms[roomID] = room
	}
	room[id] = member
	joined[roomID] = struct{}{}

	m.logger.Debug("Member joined room", slog.String("connID", id.String()), slog.String("roomID", roomID))
}

func (m *InMemoryManager) Leave(member state.Member, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := member.ID()
	if joined, ok := m.memberRooms[id]; ok {
		delete(joined, roomID)
	}
	m.removeFromRoomLocked(id, roomID)
}

func (m *InMemoryManager) DropAll(member state.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropAllLocked(member.ID())
}

func (m *InMemoryManager) dropAllLocked(id uuid.UUID) {
	joined := m.memberRooms[id]
	for roomID := range joined {
		m.removeFromRoomLocked(id, roomID)
	}
	if joined != nil {
		m.memberRooms[id] = make(map[string]struct{})
	}
}

func (m *InMemoryManager) removeFromRoomLocked(id uuid.UUID, roomID string) {
	room, ok := m.rooms[roomID]
	if !ok {
		return
	}
	if _, member := room[id]; !member {
		return
	}
	delete(room, id)

	// For memory hygiene, remove the room if it's now empty.
	if len(room) == 0 {
		delete(m.rooms, roomID)
		m.logger.Debug("Removed empty room", slog.String("roomID", roomID))
	}
	m.logger.Debug("Member left room", slog.String("connID", id.String()), slog.String("roomID", roomID))
}

func (m *InMemoryManager) MembersOf(roomID string) []state.Member {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room := m.rooms[roomID]
	members := make([]state.Member, 0, len(room))
	for _, member := range room {
		members = append(members, member)
	}
	return members
}

func (m *InMemoryManager) RoomsOf(id uuid.UUID) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	joined := m.memberRooms[id]
	rooms := make([]string, 0, len(joined))
	for roomID := range joined {
		rooms = append(rooms, roomID)
	}
	return rooms
}

func (m *InMemoryManager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

func (m *InMemoryManager) Broadcast(roomID string, fn func(state.Member)) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room := m.rooms[roomID]
	for _, member := range room {
		fn(member)
	}
	return len(room)
}
