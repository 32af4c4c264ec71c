package game

import (
	"encoding/json"

	"gridkeep/internal/world"
)

// SnapshotVersion tags the persisted layout.
const SnapshotVersion = 1

// SnapshotPlayer is a participant's durable slice of state.
type SnapshotPlayer struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Ready           bool     `json:"ready"`
	Online          bool     `json:"online"`
	Faction         string   `json:"faction"`
	ClassKey        string   `json:"classKey"`
	Loadout         string   `json:"loadout"`
	Glyph           string   `json:"glyph"`
	BlocksMovement  bool     `json:"blocksMovement"`
	CurrentLocation Location `json:"currentLocation"`
	LastLocation    Location `json:"lastLocation"`
}

// SnapshotV1 is the versioned, fully-deserializable copy of room state. It
// is a deep clone: nothing in it aliases live room structures.
type SnapshotV1 struct {
	Version           int                  `json:"version"`
	DungeonMap        string               `json:"dungeonMap"`
	CharacterColorMap map[string]world.RGB `json:"characterColorMap"`
	Monsters          []Entity             `json:"monsters"`
	Treasures         []Entity             `json:"treasures"`
	Players           []SnapshotPlayer     `json:"players"`
	PlayerColors      map[string]world.RGB `json:"playerColors"`
	Log               []string             `json:"log"`
}

// Marshal encodes the snapshot for the durable store.
func (s *SnapshotV1) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSnapshot decodes a stored snapshot blob.
func UnmarshalSnapshot(data []byte) (*SnapshotV1, error) {
	var s SnapshotV1
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Snapshot captures current room state. Pure read; never fails — the worst
// case is a partial snapshot, which still beats skipping the autosave.
func (r *Room) Snapshot() *SnapshotV1 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() *SnapshotV1 {
	snap := &SnapshotV1{
		Version:           SnapshotVersion,
		DungeonMap:        r.grid.String(),
		CharacterColorMap: make(map[string]world.RGB, len(r.palette)),
		Monsters:          append([]Entity(nil), r.monsters...),
		Treasures:         append([]Entity(nil), r.treasures...),
		PlayerColors:      make(map[string]world.RGB, len(r.players)),
		Log:               r.log.Tail(r.cfg.LogLines),
	}
	for glyph, rgb := range r.palette {
		snap.CharacterColorMap[glyph] = rgb
	}
	for _, p := range r.sortedPlayersLocked() {
		snap.Players = append(snap.Players, SnapshotPlayer{
			ID:              p.ID,
			Name:            p.Name,
			Ready:           p.Ready,
			Online:          p.Online,
			Faction:         p.Faction,
			ClassKey:        p.ClassKey,
			Loadout:         p.Loadout,
			Glyph:           p.Glyph,
			BlocksMovement:  p.BlocksMovement,
			CurrentLocation: p.CurrentLocation,
			LastLocation:    p.LastLocation,
		})
		snap.PlayerColors[p.ID] = p.Color
	}
	return snap
}

// restoreLocked repopulates terrain, palette and log from a snapshot (each
// only when present) and merges restored participants that no live join has
// claimed. Restored participants come back offline: occupancy registration
// waits for their reconnect. Returns the number merged.
func (r *Room) restoreLocked(snap *SnapshotV1) int {
	if snap.DungeonMap != "" {
		r.grid = world.ParseGrid(snap.DungeonMap)
	}
	if len(snap.CharacterColorMap) > 0 {
		p := make(world.Palette, len(snap.CharacterColorMap))
		for glyph, rgb := range snap.CharacterColorMap {
			p[glyph] = rgb
		}
		r.palette = p
	}
	if len(snap.Log) > 0 {
		r.log.Replace(snap.Log)
	}
	if len(snap.Monsters) > 0 {
		r.monsters = append([]Entity(nil), snap.Monsters...)
	}
	if len(snap.Treasures) > 0 {
		r.treasures = append([]Entity(nil), snap.Treasures...)
	}

	merged := 0
	for _, sp := range snap.Players {
		if _, live := r.players[sp.ID]; live {
			continue // a live join wins over the restore
		}
		p := &Player{
			ID:              sp.ID,
			Name:            sp.Name,
			Ready:           sp.Ready,
			Online:          false,
			Faction:         sp.Faction,
			ClassKey:        sp.ClassKey,
			Loadout:         sp.Loadout,
			Glyph:           sp.Glyph,
			BlocksMovement:  sp.BlocksMovement,
			CurrentLocation: sp.CurrentLocation,
			LastLocation:    sp.LastLocation,
		}
		if rgb, ok := snap.PlayerColors[sp.ID]; ok {
			p.Color = rgb
		}
		r.players[sp.ID] = p
		r.joinOrdinal++
		merged++
	}
	return merged
}
