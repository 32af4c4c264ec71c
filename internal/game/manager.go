package game

import (
	"sort"
	"sync"

	"gridkeep/internal/logging"
)

// RoomManager owns the id -> room registry. Rooms are created on first
// reference and live until disposed.
type RoomManager struct {
	mu    sync.Mutex
	rooms map[string]*Room
	deps  RoomDeps
}

func NewRoomManager(deps RoomDeps) *RoomManager {
	return &RoomManager{
		rooms: make(map[string]*Room),
		deps:  deps,
	}
}

// GetOrCreate returns the room for gameID, creating it with opts on first
// use. Options only apply at creation; later callers get the room as-is.
func (m *RoomManager) GetOrCreate(opts RoomOptions) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rooms[opts.GameID]; ok {
		return r, nil
	}

	r, err := CreateRoom(opts, m.deps)
	if err != nil {
		return nil, err
	}
	m.rooms[opts.GameID] = r
	return r, nil
}

// Get returns an existing room, or nil.
func (m *RoomManager) Get(gameID string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[gameID]
}

// RoomInfo is the listing view of one room.
type RoomInfo struct {
	GameID       string `json:"gameId"`
	Private      bool   `json:"private"`
	Participants int    `json:"participants"`
	Online       int    `json:"online"`
	Phase        string `json:"phase"`
}

// List snapshots every room's listing info in stable id order.
func (m *RoomManager) List() []RoomInfo {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return out
}

// Dispose removes and disposes one room.
func (m *RoomManager) Dispose(gameID string) {
	m.mu.Lock()
	r, ok := m.rooms[gameID]
	delete(m.rooms, gameID)
	m.mu.Unlock()

	if ok {
		r.Dispose()
	}
}

// DisposeAll tears down every room. Used at shutdown.
func (m *RoomManager) DisposeAll() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for id, r := range m.rooms {
		rooms = append(rooms, r)
		delete(m.rooms, id)
	}
	m.mu.Unlock()

	for _, r := range rooms {
		r.Dispose()
	}
	logging.L().Infof("🛑 All rooms disposed (%d)", len(rooms))
}

// Info returns the room's listing view.
func (r *Room) Info() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomInfo{
		GameID:       r.GameID,
		Private:      r.private,
		Participants: len(r.players),
		Online:       len(r.clients),
		Phase:        r.phase,
	}
}
