package game

import (
	"fmt"
	"time"

	"gridkeep/internal/logging"
	"gridkeep/internal/protocol"
)

// The selection catalog. Loadouts are faction-scoped: switching faction
// invalidates the loadout pick.
var (
	factionSet = []string{"crimson", "azure", "verdant"}
	classSet   = []string{"warden", "ranger", "thaumaturge"}

	loadoutsByFaction = map[string][]string{
		"crimson": {"vanguard", "berserker"},
		"azure":   {"tidecaller", "frostguard"},
		"verdant": {"thornweaver", "pathfinder"},
	}
)

func validFaction(key string) bool {
	for _, f := range factionSet {
		if f == key {
			return true
		}
	}
	return false
}

func validClass(key string) bool {
	for _, c := range classSet {
		if c == key {
			return true
		}
	}
	return false
}

func validLoadout(faction, key string) bool {
	for _, l := range loadoutsByFaction[faction] {
		if l == key {
			return true
		}
	}
	return false
}

func (r *Room) applySelectFactionLocked(p *Player, key string) {
	if r.phase == PhaseGameplay || !validFaction(key) {
		return
	}
	if p.Faction != key {
		p.Faction = key
		p.Loadout = "" // faction-scoped; the old pick may no longer exist
	}
	r.pushSelectionLocked(p)
}

func (r *Room) applySelectClassLocked(p *Player, key string) {
	if r.phase == PhaseGameplay || !validClass(key) {
		return
	}
	p.ClassKey = key
	r.pushSelectionLocked(p)
}

func (r *Room) applySelectLoadoutLocked(p *Player, key string) {
	if r.phase == PhaseGameplay || !validLoadout(p.Faction, key) {
		return
	}
	p.Loadout = key
	r.pushSelectionLocked(p)
}

// applySetReadyLocked gates readiness on a complete selection. A rejected
// ready re-prompts the selection view; an un-ready during a countdown
// cancels it as a side effect.
func (r *Room) applySetReadyLocked(p *Player, ready bool) {
	if r.phase == PhaseGameplay {
		return
	}

	if ready && !p.SelectionComplete() {
		p.Ready = false
		if c, ok := r.clients[p.ID]; ok {
			c.Send(protocol.TypeShowFCLSelect, r.selectMsgLocked(p))
		}
		return
	}

	wasReady := p.Ready
	p.Ready = ready

	if wasReady && !ready && r.starting {
		r.cancelCountdownLocked()
		r.log.Append(fmt.Sprintf("%s is no longer ready; countdown cancelled.", p.Name))
	}

	r.broadcastConfirmLocked()
}

// applyStartGameLocked begins the countdown. Host only, and only when no
// countdown is in flight.
func (r *Room) applyStartGameLocked(p *Player) {
	if r.phase == PhaseGameplay || r.starting || p.ID != r.hostID {
		return
	}

	r.starting = true
	r.countdown = r.cfg.CountdownSecs
	r.countdownStop = make(chan struct{})
	r.log.Append(fmt.Sprintf("%s starts the countdown.", p.Name))
	r.broadcastConfirmToReadyLocked()

	go r.countdownLoop(r.countdownStop)
	logging.L().Infof("🚀 Room %s: countdown started (%ds)", r.GameID, r.countdown)
}

// applyCancelCountdownLocked reverts an in-flight countdown. Any ready
// participant (or the host) may cancel; other ready flags are untouched.
func (r *Room) applyCancelCountdownLocked(p *Player) {
	if !r.starting || (!p.Ready && p.ID != r.hostID) {
		return
	}
	r.cancelCountdownLocked()
	r.log.Append(fmt.Sprintf("%s cancelled the countdown.", p.Name))
	r.broadcastConfirmLocked()
}

// cancelCountdownLocked stops the ticker and resets room-wide countdown
// state. Safe when no countdown is active.
func (r *Room) cancelCountdownLocked() {
	if r.countdownStop != nil {
		close(r.countdownStop)
		r.countdownStop = nil
	}
	r.starting = false
	r.countdown = 0
}

// countdownLoop decrements once per second, broadcasting to ready
// participants; zero flips the room into gameplay.
func (r *Room) countdownLoop(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.disposed || !r.starting {
				r.mu.Unlock()
				return
			}
			r.countdown--
			if r.countdown > 0 {
				r.broadcastConfirmToReadyLocked()
				r.mu.Unlock()
				continue
			}

			// Terminal transition: the countdown cannot restart.
			r.starting = false
			r.countdown = 0
			r.countdownStop = nil
			r.phase = PhaseGameplay
			r.log.Append("The game begins.")
			r.broadcastLocked(protocol.TypeAppState, protocol.AppStateMsg{State: protocol.AppStateGameplay})
			logging.L().Infof("🎮 Room %s: gameplay active", r.GameID)
			r.mu.Unlock()
			return
		}
	}
}

// selectMsgLocked builds the selection prompt for one viewer.
func (r *Room) selectMsgLocked(p *Player) protocol.ShowFCLSelectMsg {
	return protocol.ShowFCLSelectMsg{
		Factions: factionSet,
		Classes:  classSet,
		Loadouts: loadoutsByFaction,
		Faction:  p.Faction,
		ClassKey: p.ClassKey,
		Loadout:  p.Loadout,
		Complete: p.SelectionComplete(),
	}
}

// confirmMsgLocked builds the readiness view composited for one viewer.
func (r *Room) confirmMsgLocked(viewer *Player) protocol.ShowGameConfirmMsg {
	players := make([]protocol.ConfirmPlayer, 0, len(r.players))
	for _, p := range r.sortedPlayersLocked() {
		players = append(players, protocol.ConfirmPlayer{
			ID:      p.ID,
			Name:    p.Name,
			Ready:   p.Ready,
			Online:  p.Online,
			Faction: p.Faction,
		})
	}
	return protocol.ShowGameConfirmMsg{
		Players:   players,
		HostID:    r.hostID,
		Starting:  r.starting,
		Countdown: r.countdown,
		YouReady:  viewer.Ready,
	}
}

func (r *Room) pushSelectionLocked(p *Player) {
	if c, ok := r.clients[p.ID]; ok {
		c.Send(protocol.TypeShowFCLSelect, r.selectMsgLocked(p))
	}
	if p.SelectionComplete() {
		r.broadcastConfirmLocked()
	}
}

func (r *Room) broadcastConfirmLocked() {
	for pid, c := range r.clients {
		if p, ok := r.players[pid]; ok {
			c.Send(protocol.TypeShowGameConfirm, r.confirmMsgLocked(p))
		}
	}
}

func (r *Room) broadcastConfirmToReadyLocked() {
	for pid, c := range r.clients {
		if p, ok := r.players[pid]; ok && p.Ready {
			c.Send(protocol.TypeShowGameConfirm, r.confirmMsgLocked(p))
		}
	}
}
