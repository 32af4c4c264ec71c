// Package game is the authoritative session core: rooms, participants, the
// command queue, match flow and snapshot persistence.
package game

import (
	"gridkeep/internal/world"
)

// Location is a discrete grid position on one dungeon level.
type Location struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	Level int `json:"level"`
}

// Player is one identity's representation inside a room. Created on first
// join under an identity; kept (offline) across disconnects so position and
// selection survive a reconnect. Destroyed only with the room.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	CurrentLocation Location  `json:"currentLocation"`
	LastLocation    Location  `json:"lastLocation"`
	BlocksMovement  bool      `json:"blocksMovement"`
	Glyph           string    `json:"glyph"`
	Color           world.RGB `json:"-"`

	Online bool `json:"online"`

	// Advisory presence telemetry, mirrored from the tracker. Never gates
	// gameplay.
	Status    string  `json:"status"`
	LatencyMs float64 `json:"latencyMs"`
	NetTier   string  `json:"netTier"`

	// Match-flow selection state.
	Faction  string `json:"faction"`
	ClassKey string `json:"classKey"`
	Loadout  string `json:"loadout"`
	Ready    bool   `json:"ready"`
}

var playerGlyphs = []string{"@", "&", "%", "$", "8", "0", "Q", "W"}

var playerColors = []world.RGB{
	{255, 107, 107}, {78, 205, 196}, {69, 183, 209}, {150, 206, 180},
	{255, 234, 167}, {253, 121, 168}, {0, 184, 148}, {108, 92, 231},
	{253, 203, 110}, {225, 112, 85}, {0, 206, 201}, {223, 230, 233},
}

// NewPlayer creates a participant at the given spawn location.
func NewPlayer(id, name string, spawn Location, ordinal int) *Player {
	return &Player{
		ID:              id,
		Name:            name,
		CurrentLocation: spawn,
		LastLocation:    spawn,
		BlocksMovement:  true,
		Glyph:           playerGlyphs[ordinal%len(playerGlyphs)],
		Color:           playerColors[ordinal%len(playerColors)],
		Online:          true,
	}
}

// SelectionComplete reports whether faction, class and loadout are all chosen.
func (p *Player) SelectionComplete() bool {
	return p.Faction != "" && p.ClassKey != "" && p.Loadout != ""
}

// Entity is an opaque non-player world object (monster, treasure) carried
// through snapshots for a future gameplay layer.
type Entity struct {
	ID       string   `json:"id"`
	Glyph    string   `json:"glyph"`
	Location Location `json:"location"`
}
