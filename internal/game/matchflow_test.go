package game

import (
	"testing"
	"time"

	"gridkeep/internal/config"
	"gridkeep/internal/protocol"
)

// completeSelection walks a participant through a full faction/class/loadout
// pick via the real command pipeline.
func completeSelection(t *testing.T, r *Room, c *fakeClient, faction, class, loadout string) {
	t.Helper()
	send(t, r, c, protocol.CmdSelectFaction, protocol.SelectPayload{Key: faction})
	send(t, r, c, protocol.CmdSelectClass, protocol.SelectPayload{Key: class})
	send(t, r, c, protocol.CmdSelectLoadout, protocol.SelectPayload{Key: loadout})
	r.Tick()
}

func setReady(t *testing.T, r *Room, c *fakeClient, ready bool) {
	t.Helper()
	send(t, r, c, protocol.CmdSetReady, protocol.ReadyPayload{Ready: ready})
	r.Tick()
}

func roomStarting(r *Room) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starting, r.countdown
}

func roomPhase(r *Room) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func TestReadyGatedOnCompleteSelection(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	c := joinAs(r, "u1", "Alice")

	before := c.countOf(protocol.TypeShowFCLSelect)
	setReady(t, r, c, true)

	if playerOf(r, "u1").Ready {
		t.Error("ready accepted with no selection")
	}
	if c.countOf(protocol.TypeShowFCLSelect) <= before {
		t.Error("rejected ready did not re-prompt the selection view")
	}

	completeSelection(t, r, c, "crimson", "warden", "vanguard")
	setReady(t, r, c, true)
	if !playerOf(r, "u1").Ready {
		t.Error("ready rejected with a complete selection")
	}
}

func TestFactionChangeResetsLoadout(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	c := joinAs(r, "u1", "Alice")

	completeSelection(t, r, c, "crimson", "warden", "vanguard")
	p := playerOf(r, "u1")
	if !p.SelectionComplete() {
		t.Fatalf("selection incomplete: %+v", p)
	}

	send(t, r, c, protocol.CmdSelectFaction, protocol.SelectPayload{Key: "azure"})
	r.Tick()

	if p.Faction != "azure" {
		t.Errorf("faction = %q; want azure", p.Faction)
	}
	if p.Loadout != "" {
		t.Errorf("loadout = %q; want cleared on faction change", p.Loadout)
	}
	if p.ClassKey != "warden" {
		t.Errorf("class = %q; faction change must not touch it", p.ClassKey)
	}
}

func TestLoadoutValidatedAgainstFaction(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	c := joinAs(r, "u1", "Alice")

	send(t, r, c, protocol.CmdSelectFaction, protocol.SelectPayload{Key: "crimson"})
	send(t, r, c, protocol.CmdSelectLoadout, protocol.SelectPayload{Key: "tidecaller"}) // azure loadout
	r.Tick()

	if got := playerOf(r, "u1").Loadout; got != "" {
		t.Errorf("cross-faction loadout accepted: %q", got)
	}

	send(t, r, c, protocol.CmdSelectLoadout, protocol.SelectPayload{Key: "berserker"})
	r.Tick()
	if got := playerOf(r, "u1").Loadout; got != "berserker" {
		t.Errorf("loadout = %q; want berserker", got)
	}
}

func TestStartGameIsHostOnly(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	joinAs(r, "u1", "Alice") // host
	c2 := joinAs(r, "u2", "Bob")

	completeSelection(t, r, c2, "azure", "ranger", "frostguard")
	setReady(t, r, c2, true)

	send(t, r, c2, protocol.CmdStartGame, nil)
	r.Tick()
	if starting, _ := roomStarting(r); starting {
		t.Error("non-host started the countdown")
	}
}

func TestStartGameBeginsCountdown(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	c1 := joinAs(r, "u1", "Alice")

	completeSelection(t, r, c1, "crimson", "warden", "vanguard")
	setReady(t, r, c1, true)

	send(t, r, c1, protocol.CmdStartGame, nil)
	r.Tick()

	starting, countdown := roomStarting(r)
	if !starting {
		t.Fatal("host start did not begin the countdown")
	}
	if countdown != config.DefaultRoom().CountdownSecs {
		t.Errorf("countdown = %d; want %d", countdown, config.DefaultRoom().CountdownSecs)
	}

	// A second start while one is in flight is ignored.
	send(t, r, c1, protocol.CmdStartGame, nil)
	r.Tick()
	if _, cd := roomStarting(r); cd != countdown {
		t.Errorf("overlapping start reset the countdown to %d", cd)
	}
}

func TestUnreadyCancelsCountdown(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	c1 := joinAs(r, "u1", "Alice")
	c2 := joinAs(r, "u2", "Bob")

	completeSelection(t, r, c1, "crimson", "warden", "vanguard")
	setReady(t, r, c1, true)
	completeSelection(t, r, c2, "azure", "ranger", "tidecaller")
	setReady(t, r, c2, true)

	send(t, r, c1, protocol.CmdStartGame, nil)
	r.Tick()
	if starting, _ := roomStarting(r); !starting {
		t.Fatal("countdown did not start")
	}

	setReady(t, r, c2, false)
	if starting, _ := roomStarting(r); starting {
		t.Error("un-ready did not cancel the countdown")
	}
	if playerOf(r, "u1").Ready != true {
		t.Error("other ready flags must survive a cancellation")
	}
	if roomPhase(r) != PhaseSelecting {
		t.Errorf("phase = %q after cancel; want selecting", roomPhase(r))
	}
}

func TestCancelCountdownByReadyParticipant(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	c1 := joinAs(r, "u1", "Alice")
	c2 := joinAs(r, "u2", "Bob")
	c3 := joinAs(r, "u3", "Cara")

	completeSelection(t, r, c1, "crimson", "warden", "vanguard")
	setReady(t, r, c1, true)
	completeSelection(t, r, c2, "azure", "ranger", "tidecaller")
	setReady(t, r, c2, true)

	send(t, r, c1, protocol.CmdStartGame, nil)
	r.Tick()

	// Neither ready nor host: the cancel is ignored.
	send(t, r, c3, protocol.CmdCancelCountdown, nil)
	r.Tick()
	if starting, _ := roomStarting(r); !starting {
		t.Fatal("unentitled participant cancelled the countdown")
	}

	// A ready non-host participant may cancel.
	send(t, r, c2, protocol.CmdCancelCountdown, nil)
	r.Tick()
	if starting, _ := roomStarting(r); starting {
		t.Error("ready participant could not cancel the countdown")
	}
	if playerOf(r, "u1").Ready != true || playerOf(r, "u2").Ready != true {
		t.Error("cancel must not clear ready flags")
	}
}

func TestCountdownReachesGameplay(t *testing.T) {
	r, _ := newTestRoom(t, func(cfg *config.RoomConfig) {
		cfg.CountdownSecs = 1
	})
	c1 := joinAs(r, "u1", "Alice")

	completeSelection(t, r, c1, "crimson", "warden", "vanguard")
	setReady(t, r, c1, true)
	send(t, r, c1, protocol.CmdStartGame, nil)
	r.Tick()

	deadline := time.Now().Add(3 * time.Second)
	for roomPhase(r) != PhaseGameplay {
		if time.Now().After(deadline) {
			t.Fatal("countdown never reached gameplay")
		}
		time.Sleep(20 * time.Millisecond)
	}

	payload, ok := c1.lastOf(protocol.TypeAppState)
	if !ok {
		t.Fatal("no appState broadcast at countdown zero")
	}
	if msg, ok := payload.(protocol.AppStateMsg); !ok || msg.State != protocol.AppStateGameplay {
		t.Errorf("appState payload = %+v; want gameplayActive", payload)
	}

	// Gameplay is terminal: match-flow commands are ignored from here.
	setReady(t, r, c1, false)
	if !playerOf(r, "u1").Ready {
		t.Error("ready flag changed after the terminal transition")
	}
	send(t, r, c1, protocol.CmdStartGame, nil)
	r.Tick()
	if starting, _ := roomStarting(r); starting {
		t.Error("countdown restarted after gameplay began")
	}
}

func TestCountdownBroadcastTargetsReadyOnly(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	c1 := joinAs(r, "u1", "Alice")
	c2 := joinAs(r, "u2", "Bob")

	completeSelection(t, r, c1, "crimson", "warden", "vanguard")
	setReady(t, r, c1, true)

	before1 := c1.countOf(protocol.TypeShowGameConfirm)
	before2 := c2.countOf(protocol.TypeShowGameConfirm)

	r.mu.Lock()
	r.broadcastConfirmToReadyLocked()
	r.mu.Unlock()

	if c1.countOf(protocol.TypeShowGameConfirm) != before1+1 {
		t.Error("ready participant missed the countdown broadcast")
	}
	if c2.countOf(protocol.TypeShowGameConfirm) != before2 {
		t.Error("non-ready participant received the countdown broadcast")
	}
}
