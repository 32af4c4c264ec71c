package game

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gridkeep/internal/protocol"
	"gridkeep/internal/world"
)

// applyCommandLocked routes one drained command. A command that fails to
// apply never stops the rest of the tick's drain.
func (r *Room) applyCommandLocked(cmd Command) {
	p, ok := r.players[cmd.ParticipantID]
	if !ok {
		return // left between enqueue and drain
	}

	switch cmd.Type {
	case protocol.CmdMove:
		var mp protocol.MovePayload
		if err := json.Unmarshal(cmd.Data, &mp); err != nil {
			return
		}
		r.applyMoveLocked(p, mp.Direction)

	case protocol.CmdSelectFaction:
		r.applySelectFactionLocked(p, selectionKey(cmd.Data))

	case protocol.CmdSelectClass:
		r.applySelectClassLocked(p, selectionKey(cmd.Data))

	case protocol.CmdSelectLoadout:
		r.applySelectLoadoutLocked(p, selectionKey(cmd.Data))

	case protocol.CmdSetReady:
		var rp protocol.ReadyPayload
		if err := json.Unmarshal(cmd.Data, &rp); err != nil {
			return
		}
		r.applySetReadyLocked(p, rp.Ready)

	case protocol.CmdStartGame:
		r.applyStartGameLocked(p)

	case protocol.CmdCancelCountdown:
		r.applyCancelCountdownLocked(p)

	case protocol.CmdSay:
		var sp protocol.SayPayload
		if err := json.Unmarshal(cmd.Data, &sp); err != nil {
			return
		}
		r.log.Append(fmt.Sprintf("%s: %s", p.Name, sp.Text))
		r.broadcastLocked(protocol.TypeLog, protocol.LogMsg{Lines: r.log.Tail(20)})
	}
	// Unknown types never reach here; ingress validation drops them.
}

func selectionKey(data json.RawMessage) string {
	var sp protocol.SelectPayload
	if err := json.Unmarshal(data, &sp); err != nil {
		return ""
	}
	return sp.Key
}

var moveDeltas = map[string][2]int{
	"up":    {0, -1},
	"down":  {0, 1},
	"left":  {-1, 0},
	"right": {1, 0},
}

// applyMoveLocked accepts a move iff the terrain is walkable and the cell is
// not held by another entity. Occupancy is updated transactionally; the
// refreshed view fans out only to the mover's level.
func (r *Room) applyMoveLocked(p *Player, direction string) {
	delta, ok := moveDeltas[direction]
	if !ok {
		return
	}

	from := p.CurrentLocation
	to := Location{X: from.X + delta[0], Y: from.Y + delta[1], Level: from.Level}

	if !r.grid.Walkable(to.X, to.Y) {
		r.log.Append(fmt.Sprintf("%s bumps into a wall.", p.Name))
		return
	}
	if occ, taken := r.occupancy.OccupantAt(to.Level, to.X, to.Y); taken && occ != p.ID {
		r.log.Append(fmt.Sprintf("%s bumps into %s.", p.Name, r.nameOfLocked(occ)))
		return
	}

	p.LastLocation = from
	p.CurrentLocation = to
	if p.BlocksMovement {
		r.occupancy.Move(p.ID, from, to)
	}
	r.log.Append(fmt.Sprintf("%s moves to (%d, %d).", p.Name, to.X, to.Y))

	r.broadcastLevelLocked(to.Level)
}

func (r *Room) nameOfLocked(pid string) string {
	if other, ok := r.players[pid]; ok {
		return other.Name
	}
	return "something"
}

// broadcastLocked sends to every live connection in the room.
func (r *Room) broadcastLocked(msgType string, payload any) {
	for _, c := range r.clients {
		c.Send(msgType, payload)
	}
}

// broadcastLevelLocked pushes refreshed map views to connections whose
// participant shares the level. Other levels neither see nor pay for it.
func (r *Room) broadcastLevelLocked(level int) {
	colors := r.positionColorsLocked(level)
	for pid, c := range r.clients {
		p, ok := r.players[pid]
		if !ok || p.CurrentLocation.Level != level {
			continue
		}
		c.Send(protocol.TypeDungeonMap, r.composeMapForLocked(p))
		c.Send(protocol.TypePositionColorMap, colors)
	}
}

// composeMapForLocked overlays entities on the terrain for the viewer's
// level. The terrain itself is immutable; overlays are composited per call.
func (r *Room) composeMapForLocked(viewer *Player) string {
	level := viewer.CurrentLocation.Level
	rows := strings.Split(r.grid.String(), "\n")
	cells := make([][]byte, len(rows))
	for y, row := range rows {
		cells[y] = []byte(row)
	}

	put := func(loc Location, glyph string) {
		if loc.Level != level || glyph == "" {
			return
		}
		if loc.Y >= 0 && loc.Y < len(cells) && loc.X >= 0 && loc.X < len(cells[loc.Y]) {
			cells[loc.Y][loc.X] = glyph[0]
		}
	}

	for _, m := range r.monsters {
		put(m.Location, m.Glyph)
	}
	for _, t := range r.treasures {
		put(t.Location, t.Glyph)
	}
	for _, p := range r.players {
		if p.Online {
			put(p.CurrentLocation, p.Glyph)
		}
	}

	out := make([]string, len(cells))
	for y, row := range cells {
		out[y] = string(row)
	}
	return strings.Join(out, "\n")
}

// positionColorsLocked builds the "x,y" -> [r,g,b] overlay table for a level.
func (r *Room) positionColorsLocked(level int) map[string]world.RGB {
	out := make(map[string]world.RGB)
	for _, p := range r.players {
		if p.Online && p.CurrentLocation.Level == level {
			key := fmt.Sprintf("%d,%d", p.CurrentLocation.X, p.CurrentLocation.Y)
			out[key] = p.Color
		}
	}
	return out
}

// sortedPlayersLocked returns players in a stable id order for broadcasts
// and snapshots.
func (r *Room) sortedPlayersLocked() []*Player {
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
