package game

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gridkeep/internal/auth"
	"gridkeep/internal/config"
	"gridkeep/internal/presence"
	"gridkeep/internal/protocol"
)

const testMap = "########\n" +
	"#......#\n" +
	"#......#\n" +
	"#......#\n" +
	"########"

type sentMsg struct {
	msgType string
	payload any
}

// fakeClient records everything the room pushes at it.
type fakeClient struct {
	mu        sync.Mutex
	session   string
	sent      []sentMsg
	closed    bool
	closeCode int
}

var sessionSeq atomic.Int64

func newFakeClient() *fakeClient {
	return &fakeClient{session: fmt.Sprintf("sess-%d", sessionSeq.Add(1))}
}

func (c *fakeClient) SessionID() string { return c.session }

func (c *fakeClient) Send(msgType string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMsg{msgType: msgType, payload: payload})
}

func (c *fakeClient) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeCode = code
}

func (c *fakeClient) isClosed() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode
}

func (c *fakeClient) countOf(msgType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.sent {
		if m.msgType == msgType {
			n++
		}
	}
	return n
}

func (c *fakeClient) lastOf(msgType string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].msgType == msgType {
			return c.sent[i].payload, true
		}
	}
	return nil, false
}

type countMetrics struct {
	commands    atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

func (m *countMetrics) ObserveTick(time.Duration) {}
func (m *countMetrics) AddCommands(n int)         { m.commands.Add(int64(n)) }
func (m *countMetrics) IncEvictions()             { m.evictions.Add(1) }
func (m *countMetrics) IncExpirations()           { m.expirations.Add(1) }

func newTestRoom(t *testing.T, mutate func(*config.RoomConfig)) (*Room, *countMetrics) {
	t.Helper()

	cfg := config.DefaultRoom()
	cfg.EvictFlushDelay = 5 * time.Millisecond
	cfg.GraceWindow = 40 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	tr := presence.NewTracker(config.DefaultPresence())
	t.Cleanup(tr.Stop)

	metrics := &countMetrics{}
	r, err := CreateRoom(RoomOptions{
		GameID:    "test-room",
		MapString: testMap,
		NoTimers:  true,
	}, RoomDeps{
		Cfg:      cfg,
		AuthCfg:  config.DefaultAuth(),
		WorldCfg: config.DefaultWorld(),
		Presence: tr,
		Metrics:  metrics,
	})
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	t.Cleanup(r.Dispose)
	return r, metrics
}

func joinAs(r *Room, pid, name string) *fakeClient {
	c := newFakeClient()
	r.Join(c, auth.Identity{ParticipantID: pid, DisplayName: name})
	return c
}

func send(t *testing.T, r *Room, c *fakeClient, cmdType string, payload any) {
	t.Helper()
	env := map[string]any{"type": cmdType}
	if payload != nil {
		env["data"] = payload
	}
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	r.HandleMessage(c, b)
}

func playerOf(r *Room, pid string) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.players[pid]
}

func logContains(r *Room, substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range r.log.Tail(r.cfg.LogLines) {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func TestJoinSendsInitialView(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	c := joinAs(r, "u1", "Alice")

	for _, want := range []string{
		protocol.TypeCharacterColorMap,
		protocol.TypeDungeonMap,
		protocol.TypePositionColorMap,
		protocol.TypeLog,
		protocol.TypeShowFCLSelect,
	} {
		if c.countOf(want) == 0 {
			t.Errorf("initial view missing %q message", want)
		}
	}

	p := playerOf(r, "u1")
	if p == nil {
		t.Fatal("player not registered after join")
	}
	if !p.Online {
		t.Error("joined player should be online")
	}
	if got, ok := r.occupancy.OccupantAt(0, p.CurrentLocation.X, p.CurrentLocation.Y); !ok || got != "u1" {
		t.Errorf("occupancy at spawn = %q, %v; want u1, true", got, ok)
	}
}

func TestFirstJoinerBecomesHost(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	joinAs(r, "u1", "Alice")
	joinAs(r, "u2", "Bob")

	r.mu.Lock()
	host := r.hostID
	r.mu.Unlock()
	if host != "u1" {
		t.Errorf("hostID = %q; want u1", host)
	}
}

func TestMoveUpdatesOccupancyTransactionally(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	c := joinAs(r, "u1", "Alice")

	p := playerOf(r, "u1")
	from := p.CurrentLocation

	send(t, r, c, protocol.CmdMove, protocol.MovePayload{Direction: "right"})
	r.Tick()

	if p.CurrentLocation.X != from.X+1 || p.CurrentLocation.Y != from.Y {
		t.Fatalf("position = %+v; want x=%d y=%d", p.CurrentLocation, from.X+1, from.Y)
	}
	if p.LastLocation != from {
		t.Errorf("lastLocation = %+v; want %+v", p.LastLocation, from)
	}
	if _, taken := r.occupancy.OccupantAt(0, from.X, from.Y); taken {
		t.Error("vacated cell still occupied")
	}
	if got, ok := r.occupancy.OccupantAt(0, p.CurrentLocation.X, p.CurrentLocation.Y); !ok || got != "u1" {
		t.Errorf("destination occupant = %q, %v; want u1, true", got, ok)
	}
	if r.occupancy.Count(0) != 1 {
		t.Errorf("occupancy entries = %d; want 1", r.occupancy.Count(0))
	}
}

func TestMoveRejectedByWall(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	c := joinAs(r, "u1", "Alice")

	p := playerOf(r, "u1")
	before := p.CurrentLocation // spawn (1,1); up is the border wall

	send(t, r, c, protocol.CmdMove, protocol.MovePayload{Direction: "up"})
	r.Tick()

	if p.CurrentLocation != before {
		t.Errorf("position changed on rejected move: %+v", p.CurrentLocation)
	}
	if !logContains(r, "bumps into a wall") {
		t.Error("expected a wall bump log line")
	}
}

func TestMoveRejectedByOccupant(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	c1 := joinAs(r, "u1", "Alice") // spawns (1,1)
	joinAs(r, "u2", "Bob")         // spawns (2,1)

	p1 := playerOf(r, "u1")
	before := p1.CurrentLocation

	send(t, r, c1, protocol.CmdMove, protocol.MovePayload{Direction: "right"})
	r.Tick()

	if p1.CurrentLocation != before {
		t.Errorf("position changed on occupied move: %+v", p1.CurrentLocation)
	}
	if !logContains(r, "bumps into Bob") {
		t.Error("expected an occupant bump log line")
	}
	if r.occupancy.Count(0) != 2 {
		t.Errorf("occupancy entries = %d; want 2", r.occupancy.Count(0))
	}
}

func TestTickAppliesCommandsFIFO(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	c1 := joinAs(r, "u1", "Alice") // (1,1)
	c2 := joinAs(r, "u2", "Bob")   // (2,1)

	// Both end up targeting (2,2); u1's path was enqueued first and wins.
	send(t, r, c1, protocol.CmdMove, protocol.MovePayload{Direction: "down"})  // (1,2)
	send(t, r, c1, protocol.CmdMove, protocol.MovePayload{Direction: "right"}) // (2,2)
	send(t, r, c2, protocol.CmdMove, protocol.MovePayload{Direction: "down"})  // blocked
	r.Tick()

	p1, p2 := playerOf(r, "u1"), playerOf(r, "u2")
	if p1.CurrentLocation != (Location{X: 2, Y: 2}) {
		t.Errorf("u1 at %+v; want (2,2)", p1.CurrentLocation)
	}
	if p2.CurrentLocation != (Location{X: 2, Y: 1}) {
		t.Errorf("u2 at %+v; want unchanged (2,1)", p2.CurrentLocation)
	}
}

func TestTickDrainBound(t *testing.T) {
	r, metrics := newTestRoom(t, func(cfg *config.RoomConfig) {
		cfg.CommandsPerTick = 2
	})
	c := joinAs(r, "u1", "Alice")

	for i := 0; i < 3; i++ {
		send(t, r, c, protocol.CmdSay, protocol.SayPayload{Text: fmt.Sprintf("line %d", i)})
	}

	r.Tick()
	if got := r.queue.Len(); got != 1 {
		t.Errorf("pending after bounded tick = %d; want 1", got)
	}
	if got := metrics.commands.Load(); got != 2 {
		t.Errorf("commands counted = %d; want 2", got)
	}

	r.Tick()
	if got := r.queue.Len(); got != 0 {
		t.Errorf("pending after second tick = %d; want 0", got)
	}
}

func TestTickReentrancyGuard(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	c := joinAs(r, "u1", "Alice")
	send(t, r, c, protocol.CmdMove, protocol.MovePayload{Direction: "right"})

	r.ticking.Store(true) // simulate an in-flight tick
	r.Tick()
	if got := r.queue.Len(); got != 1 {
		t.Errorf("overlapping tick drained the queue (pending=%d)", got)
	}

	r.ticking.Store(false)
	r.Tick()
	if got := r.queue.Len(); got != 0 {
		t.Errorf("pending after real tick = %d; want 0", got)
	}
}

func TestDuplicateSessionEviction(t *testing.T) {
	r, metrics := newTestRoom(t, nil)
	old := joinAs(r, "u1", "Alice")
	fresh := joinAs(r, "u1", "Alice")

	if old.countOf(protocol.TypeModal) == 0 {
		t.Error("evicted connection got no takeover notice")
	}
	if closed, _ := old.isClosed(); closed {
		t.Error("evicted connection closed before the flush delay")
	}

	time.Sleep(30 * time.Millisecond)
	closed, code := old.isClosed()
	if !closed || code != protocol.CloseDuplicateSession {
		t.Errorf("evicted close = %v code %d; want true %d", closed, code, protocol.CloseDuplicateSession)
	}
	if closed, _ := fresh.isClosed(); closed {
		t.Error("winning connection was closed")
	}
	if fresh.countOf(protocol.TypeDungeonMap) == 0 {
		t.Error("winning connection got no initial view")
	}
	if got := metrics.evictions.Load(); got != 1 {
		t.Errorf("evictions = %d; want 1", got)
	}

	r.mu.Lock()
	got := r.clients["u1"]
	r.mu.Unlock()
	if got != Client(fresh) {
		t.Error("clients map does not hold the newest connection")
	}
}

func TestGraceWindowReclaim(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	c1 := joinAs(r, "u1", "Alice")

	p := playerOf(r, "u1")
	loc := p.CurrentLocation

	r.Leave(c1, false)
	if !p.Online {
		t.Error("participant went offline during grace window")
	}
	if _, taken := r.occupancy.OccupantAt(0, loc.X, loc.Y); !taken {
		t.Error("occupancy released during grace window")
	}

	c2 := joinAs(r, "u1", "Alice")
	r.mu.Lock()
	pending := len(r.graceTimers)
	r.mu.Unlock()
	if pending != 0 {
		t.Errorf("grace timers pending after reclaim = %d; want 0", pending)
	}
	if c2.countOf(protocol.TypeModal) != 0 {
		t.Error("reclaiming connection got an eviction notice")
	}

	// Past the original window the reclaimed session must survive.
	time.Sleep(80 * time.Millisecond)
	if !p.Online {
		t.Error("reclaimed session finalized after the stale window elapsed")
	}
}

func TestGraceWindowExpiry(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	c := joinAs(r, "u1", "Alice")

	p := playerOf(r, "u1")
	loc := p.CurrentLocation

	r.Leave(c, false)
	time.Sleep(100 * time.Millisecond)

	if p.Online {
		t.Error("participant still online after grace expiry")
	}
	if p.Ready {
		t.Error("ready flag survived grace expiry")
	}
	if _, taken := r.occupancy.OccupantAt(0, loc.X, loc.Y); taken {
		t.Error("occupancy entry survived grace expiry")
	}
}

func TestConsentedLeaveFinalizesImmediately(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	c := joinAs(r, "u1", "Alice")

	r.Leave(c, true)

	p := playerOf(r, "u1")
	if p == nil {
		t.Fatal("participant record should survive a leave")
	}
	if p.Online {
		t.Error("participant still online after consented leave")
	}
	if r.occupancy.Count(0) != 0 {
		t.Errorf("occupancy entries = %d; want 0", r.occupancy.Count(0))
	}
}

func TestSweepExpiredForcesDisconnect(t *testing.T) {
	r, metrics := newTestRoom(t, func(cfg *config.RoomConfig) {
		cfg.ExpiryCutoff = time.Millisecond
	})
	c := joinAs(r, "u1", "Alice")

	time.Sleep(10 * time.Millisecond)
	r.SweepExpired()

	if c.countOf(protocol.TypeModal) == 0 {
		t.Error("expired session got no notice")
	}
	time.Sleep(30 * time.Millisecond)
	closed, code := c.isClosed()
	if !closed || code != protocol.CloseSessionExpired {
		t.Errorf("expired close = %v code %d; want true %d", closed, code, protocol.CloseSessionExpired)
	}
	if playerOf(r, "u1").Online {
		t.Error("expired participant still online")
	}
	if got := metrics.expirations.Load(); got != 1 {
		t.Errorf("expirations = %d; want 1", got)
	}
}

func TestMirrorPresenceCopiesTelemetryAndProbes(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	c := joinAs(r, "u1", "Alice")

	r.presence.SetPing("u1", 45)
	r.MirrorPresence()

	p := playerOf(r, "u1")
	if p.LatencyMs != 45 {
		t.Errorf("mirrored latency = %v; want 45", p.LatencyMs)
	}
	if p.NetTier != presence.TierGreen {
		t.Errorf("mirrored net tier = %q; want green", p.NetTier)
	}
	if c.countOf(protocol.TypePing) == 0 {
		t.Error("no latency probe sent")
	}
}

func TestMalformedAndUnknownFramesDropped(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	c := joinAs(r, "u1", "Alice")

	r.HandleMessage(c, []byte(`not json`))
	r.HandleMessage(c, []byte(`{"type":"teleport","data":{}}`))
	r.HandleMessage(c, []byte(`{"type":"move","data":{"direction":"sideways"}}`))

	if got := r.queue.Len(); got != 0 {
		t.Errorf("invalid frames reached the queue (pending=%d)", got)
	}
}

func TestDisposeIdempotentAndClosesClients(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	c := joinAs(r, "u1", "Alice")

	r.Dispose()
	r.Dispose() // second call is a no-op

	closed, code := c.isClosed()
	if !closed || code != protocol.CloseAuthRejected {
		t.Errorf("dispose close = %v code %d; want true %d", closed, code, protocol.CloseAuthRejected)
	}
	if _, ok := r.presence.Get("u1"); ok {
		t.Error("presence record survived dispose")
	}
}

func TestAuthenticateRoomSecret(t *testing.T) {
	tr := presence.NewTracker(config.DefaultPresence())
	t.Cleanup(tr.Stop)

	r, err := CreateRoom(RoomOptions{
		GameID:    "locked",
		Private:   true,
		Password:  "hunter2",
		MapString: testMap,
		NoTimers:  true,
	}, RoomDeps{
		Cfg:      config.DefaultRoom(),
		AuthCfg:  config.DefaultAuth(),
		WorldCfg: config.DefaultWorld(),
		Presence: tr,
	})
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	t.Cleanup(r.Dispose)

	if _, err := r.Authenticate(auth.Credentials{Secret: "wrong", SessionID: "s1"}); err == nil {
		t.Error("bad secret accepted")
	}
	id, err := r.Authenticate(auth.Credentials{Secret: "hunter2", Name: "Alice", SessionID: "s1"})
	if err != nil {
		t.Fatalf("good secret rejected: %v", err)
	}
	if id.ParticipantID != "guest:s1" {
		t.Errorf("participant id = %q; want guest:s1", id.ParticipantID)
	}
}
