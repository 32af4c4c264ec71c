package game

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"gridkeep/internal/auth"
	"gridkeep/internal/config"
	"gridkeep/internal/logging"
	"gridkeep/internal/presence"
	"gridkeep/internal/protocol"
	"gridkeep/internal/store"
	"gridkeep/internal/world"
)

// Client is the transport-side handle for one connection. The core only
// needs these three primitives; the websocket layer provides them.
type Client interface {
	// SessionID is the transport-assigned session token.
	SessionID() string
	// Send delivers one message to this connection. Fire-and-forget.
	Send(msgType string, payload any)
	// Close severs the connection with a close code after pending writes.
	Close(code int, reason string)
}

// Metrics receives room telemetry. A nil Metrics is a no-op.
type Metrics interface {
	ObserveTick(d time.Duration)
	AddCommands(n int)
	IncEvictions()
	IncExpirations()
}

// Room phases.
const (
	PhaseSelecting = "selecting"
	PhaseGameplay  = "gameplayActive"
)

// RoomOptions configures room creation.
type RoomOptions struct {
	GameID    string
	Private   bool
	Password  string // hashed at creation; empty on a non-private room means open joins
	MapString string // pre-generated terrain; empty generates from WorldCfg
	NoTimers  bool   // tests drive tick/mirror/autosave by hand
}

// RoomDeps are the injected collaborators.
type RoomDeps struct {
	Cfg      config.RoomConfig
	AuthCfg  config.AuthConfig
	WorldCfg config.WorldConfig
	Verifier auth.Verifier
	Presence *presence.Tracker
	Store    store.Store
	Palette  world.Palette
	Metrics  Metrics
}

// Room is one isolated instance of the authoritative world. All mutation
// happens under mu: message handlers, every periodic timer, and the restore
// callback all serialize through it.
type Room struct {
	GameID string

	mu sync.Mutex

	cfg      config.RoomConfig
	authCfg  config.AuthConfig
	verifier auth.Verifier
	presence *presence.Tracker
	store    store.Store
	metrics  Metrics

	grid    *world.Grid
	palette world.Palette

	players   map[string]*Player // participant id -> record; survives disconnects
	clients   map[string]Client  // participant id -> live connection
	monsters  []Entity
	treasures []Entity

	occupancy *Occupancy
	queue     *CommandQueue
	log       *roomLog

	// Match-flow room-wide state.
	hostID    string
	starting  bool
	countdown int
	phase     string

	secretHash string
	private    bool

	joinOrdinal int

	ticking  atomic.Bool
	disposed bool
	stopChan chan struct{}

	graceTimers map[string]*time.Timer // participant id -> pending offline finalization
	pendingEvts []*time.Timer          // deferred notice-flush closures

	countdownStop chan struct{}

	restored atomic.Bool
}

// CreateRoom allocates room state, derives the room secret, starts the
// periodic timers and kicks off the best-effort snapshot restore. Joins are
// accepted immediately; the restore merges around them.
func CreateRoom(opts RoomOptions, deps RoomDeps) (*Room, error) {
	mapStr := opts.MapString
	if mapStr == "" {
		mapStr = world.Generate(world.GenerateOptions{
			Width:  deps.WorldCfg.Width,
			Height: deps.WorldCfg.Height,
			Seed:   deps.WorldCfg.Seed,
		})
	}

	palette := deps.Palette
	if palette == nil {
		palette = world.DefaultPalette()
	}

	r := &Room{
		GameID:      opts.GameID,
		cfg:         deps.Cfg,
		authCfg:     deps.AuthCfg,
		verifier:    deps.Verifier,
		presence:    deps.Presence,
		store:       deps.Store,
		metrics:     deps.Metrics,
		grid:        world.ParseGrid(mapStr),
		palette:     palette,
		players:     make(map[string]*Player),
		clients:     make(map[string]Client),
		occupancy:   NewOccupancy(),
		queue:       NewCommandQueue(),
		log:         newRoomLog(deps.Cfg.LogLines),
		phase:       PhaseSelecting,
		private:     opts.Private,
		stopChan:    make(chan struct{}),
		graceTimers: make(map[string]*time.Timer),
	}

	if opts.Password != "" {
		hash, err := auth.HashSecret(opts.Password)
		if err != nil {
			return nil, fmt.Errorf("create room %s: %w", opts.GameID, err)
		}
		r.secretHash = hash
	}

	// Generated maps get decoration; caller-supplied maps come as-is.
	if opts.MapString == "" {
		r.seedEntities(deps.WorldCfg.Seed)
	}

	if !opts.NoTimers {
		go r.timerLoop()
	}
	if r.store != nil {
		go r.restoreLatest()
	}

	logging.L().Infof("🏰 Room %s created (%dx%d map, private=%v)",
		opts.GameID, r.grid.Width(), r.grid.Height(), opts.Private)
	return r, nil
}

// Authenticate resolves credentials into an identity. Fails before any room
// state exists for the attempt; the caller refuses the connection on error.
func (r *Room) Authenticate(creds auth.Credentials) (auth.Identity, error) {
	r.mu.Lock()
	secretHash := r.secretHash
	private := r.private
	r.mu.Unlock()

	if secretHash != "" {
		if !auth.CheckSecret(secretHash, creds.Secret) {
			return auth.Identity{}, &auth.AuthError{Reason: "bad room secret"}
		}
	} else if private {
		return auth.Identity{}, &auth.AuthError{Reason: "room is private"}
	}

	return auth.Resolve(creds, r.verifier, r.authCfg)
}

// Join admits an authenticated identity. Enforces single-active-session,
// assigns the host, registers occupancy and presence, and pushes the initial
// view to the new connection only.
func (r *Room) Join(client Client, identity auth.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		client.Close(protocol.CloseAuthRejected, "room disposed")
		return
	}

	pid := identity.ParticipantID

	// Last-writer-wins on duplicate identity: notify and evict the older
	// connection, with a short flush delay so the notice has a chance to
	// land before the close.
	if old, ok := r.clients[pid]; ok && r.authCfg.EnforceSingleSession {
		old.Send(protocol.TypeModal, protocol.ModalMsg{
			Title: "Signed in elsewhere",
			Body:  "This session was taken over by a newer connection.",
		})
		r.deferClose(old, protocol.CloseDuplicateSession, "duplicate session")
		if r.metrics != nil {
			r.metrics.IncEvictions()
		}
		logging.L().Infof("⚔️ Duplicate session for %s: evicting older connection", pid)
	}

	// A reconnect inside the grace window reclaims the session intact.
	if t, ok := r.graceTimers[pid]; ok {
		t.Stop()
		delete(r.graceTimers, pid)
		logging.L().Infof("🔁 %s reconnected inside grace window", pid)
	}

	if r.hostID == "" {
		r.hostID = pid
	}

	p, ok := r.players[pid]
	if !ok {
		spawn := r.freeSpawnLocked(0)
		p = NewPlayer(pid, identity.DisplayName, spawn, r.joinOrdinal)
		r.joinOrdinal++
		r.players[pid] = p
		r.log.Append(fmt.Sprintf("%s enters the dungeon.", p.Name))
	} else {
		p.Online = true
		// The remembered cell may have been claimed while offline.
		if occ, taken := r.occupancy.OccupantAt(p.CurrentLocation.Level, p.CurrentLocation.X, p.CurrentLocation.Y); taken && occ != pid {
			p.CurrentLocation = r.freeSpawnLocked(p.CurrentLocation.Level)
			p.LastLocation = p.CurrentLocation
		}
		r.log.Append(fmt.Sprintf("%s returns.", p.Name))
	}

	if p.BlocksMovement {
		r.occupancy.Add(pid, p.CurrentLocation)
	}

	r.clients[pid] = client
	r.presence.SetOnline(pid)

	r.sendInitialViewLocked(client, p)
	logging.L().Infof("👤 Player joined room %s: %s (%s)", r.GameID, p.Name, pid)
}

// Leave handles a disconnect. Consented leaves finalize immediately; abrupt
// ones get a reconnection grace window with state kept intact.
func (r *Room) Leave(client Client, consented bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pid := r.participantForLocked(client)
	if pid == "" {
		return
	}

	if consented {
		r.finalizeLeaveLocked(pid, "left")
		return
	}

	if _, ok := r.graceTimers[pid]; ok {
		return
	}
	// The connection is gone; only the participant state lingers. Dropping
	// the client entry now keeps a grace-window reconnect from tripping the
	// duplicate-session path.
	delete(r.clients, pid)
	r.graceTimers[pid] = time.AfterFunc(r.cfg.GraceWindow, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.disposed {
			return
		}
		delete(r.graceTimers, pid)
		r.finalizeLeaveLocked(pid, "connection lost")
	})
	logging.L().Infof("⏳ %s disconnected; grace window %s", pid, r.cfg.GraceWindow)
}

// HandleMessage validates one inbound frame and either feeds the liveness
// path directly or enqueues a command for the next tick. Malformed or
// unknown frames are dropped without a participant-visible error.
func (r *Room) HandleMessage(client Client, frame []byte) {
	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		logging.L().Debugf("drop malformed frame: %v", err)
		return
	}
	if err := protocol.ValidateCommand(env.Type, env.Data); err != nil {
		logging.L().Debugf("drop command %q: %v", env.Type, err)
		return
	}

	r.mu.Lock()
	pid := r.participantForLocked(client)
	r.mu.Unlock()
	if pid == "" {
		return
	}

	// Every accepted frame is a liveness signal.
	r.presence.Beat(pid)

	switch env.Type {
	case protocol.CmdHeartbeat:
		// Beat above is the whole effect.
		return
	case protocol.CmdPong:
		var p protocol.PongPayload
		if err := json.Unmarshal(env.Data, &p); err == nil && p.T > 0 {
			rtt := time.Now().UnixMilli() - p.T
			if rtt >= 0 {
				r.presence.SetPing(pid, float64(rtt))
			}
		}
		return
	}

	r.queue.Enqueue(Command{ParticipantID: pid, Type: env.Type, Data: env.Data})
}

// Tick drains up to CommandsPerTick queued commands and applies them in FIFO
// order. Re-entrancy guarded: a firing that overlaps a running tick is a
// no-op.
func (r *Room) Tick() {
	if !r.ticking.CompareAndSwap(false, true) {
		return
	}
	defer r.ticking.Store(false)

	start := time.Now()
	cmds := r.queue.Drain(r.cfg.CommandsPerTick)
	if len(cmds) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return
	}

	for _, cmd := range cmds {
		r.applyCommandLocked(cmd)
	}

	if r.metrics != nil {
		r.metrics.AddCommands(len(cmds))
		r.metrics.ObserveTick(time.Since(start))
	}
}

// Dispose stops all timers and releases resources. Idempotent.
func (r *Room) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return
	}
	r.disposed = true
	close(r.stopChan)

	r.cancelCountdownLocked()
	for pid, t := range r.graceTimers {
		t.Stop()
		delete(r.graceTimers, pid)
	}
	for _, t := range r.pendingEvts {
		t.Stop()
	}
	r.pendingEvts = nil

	for pid, c := range r.clients {
		c.Close(protocol.CloseAuthRejected, "room disposed")
		delete(r.clients, pid)
	}
	for pid := range r.players {
		r.presence.Forget(pid)
	}

	logging.L().Infof("🛑 Room %s disposed", r.GameID)
}

// =============================================================================
// Periodic timers
// =============================================================================

func (r *Room) timerLoop() {
	tick := time.NewTicker(r.cfg.TickInterval)
	mirror := time.NewTicker(r.cfg.MirrorEvery)
	autosave := time.NewTicker(r.cfg.AutosaveEvery)
	expiry := time.NewTicker(r.cfg.ExpirySweep)
	defer tick.Stop()
	defer mirror.Stop()
	defer autosave.Stop()
	defer expiry.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-tick.C:
			r.Tick()
		case <-mirror.C:
			r.MirrorPresence()
		case <-autosave.C:
			r.Autosave()
		case <-expiry.C:
			r.SweepExpired()
		}
	}
}

// MirrorPresence copies tracker telemetry into participant records and sends
// a latency probe to each live connection.
func (r *Room) MirrorPresence() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return
	}

	now := time.Now().UnixMilli()
	for pid, p := range r.players {
		if rec, ok := r.presence.Get(pid); ok {
			p.Status = rec.Status
			p.LatencyMs = rec.LatencyMs
			p.NetTier = rec.NetTier
		}
		if c, ok := r.clients[pid]; ok {
			c.Send(protocol.TypePing, protocol.PingMsg{T: now})
		}
	}
}

// SweepExpired force-disconnects participants whose liveness signals stopped
// long ago, with a notice before the close.
func (r *Room) SweepExpired() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return
	}

	now := time.Now()
	for pid, c := range r.clients {
		rec, ok := r.presence.Get(pid)
		if !ok || now.Sub(rec.LastSeen) < r.cfg.ExpiryCutoff {
			continue
		}
		c.Send(protocol.TypeModal, protocol.ModalMsg{
			Title: "Session expired",
			Body:  "No activity received; the session was closed.",
		})
		r.deferClose(c, protocol.CloseSessionExpired, "session expired")
		if r.metrics != nil {
			r.metrics.IncExpirations()
		}
		r.finalizeLeaveLocked(pid, "session expired")
	}
}

// =============================================================================
// Internals (callers hold mu)
// =============================================================================

// deferClose severs a connection after the notice flush delay. Best-effort
// ordering, not guaranteed delivery.
func (r *Room) deferClose(c Client, code int, reason string) {
	t := time.AfterFunc(r.cfg.EvictFlushDelay, func() {
		c.Close(code, reason)
	})
	r.pendingEvts = append(r.pendingEvts, t)
}

func (r *Room) participantForLocked(client Client) string {
	for pid, c := range r.clients {
		if c.SessionID() == client.SessionID() {
			return pid
		}
	}
	return ""
}

func (r *Room) finalizeLeaveLocked(pid, cause string) {
	p, ok := r.players[pid]
	if !ok {
		return
	}
	delete(r.clients, pid)
	p.Online = false
	p.Ready = false
	r.occupancy.Remove(pid, p.CurrentLocation)
	r.presence.SetOffline(pid)
	r.log.Append(fmt.Sprintf("%s is gone (%s).", p.Name, cause))
	logging.L().Infof("👋 %s left room %s (%s)", pid, r.GameID, cause)
}

// seedEntities scatters decorative monsters and treasures on walkable cells.
// Deterministic per seed; entities overlay the map but do not block movement.
// Runs during creation, before any join can race it.
func (r *Room) seedEntities(seed int64) {
	rng := rand.New(rand.NewSource(seed + 1))
	pick := func() (Location, bool) {
		for i := 0; i < 64; i++ {
			x, y := rng.Intn(r.grid.Width()), rng.Intn(r.grid.Height())
			if r.grid.Walkable(x, y) {
				return Location{X: x, Y: y}, true
			}
		}
		return Location{}, false
	}
	for i := 0; i < 2; i++ {
		if loc, ok := pick(); ok {
			r.monsters = append(r.monsters, Entity{ID: fmt.Sprintf("mob:%d", i), Glyph: "M", Location: loc})
		}
	}
	for i := 0; i < 3; i++ {
		if loc, ok := pick(); ok {
			r.treasures = append(r.treasures, Entity{ID: fmt.Sprintf("loot:%d", i), Glyph: "*", Location: loc})
		}
	}
}

// freeSpawnLocked finds a walkable, unoccupied cell on the level.
func (r *Room) freeSpawnLocked(level int) Location {
	for y := 0; y < r.grid.Height(); y++ {
		for x := 0; x < r.grid.Width(); x++ {
			if !r.grid.Walkable(x, y) {
				continue
			}
			if _, taken := r.occupancy.OccupantAt(level, x, y); taken {
				continue
			}
			return Location{X: x, Y: y, Level: level}
		}
	}
	// A full level leaves nowhere sensible; overlap at origin rather than fail.
	x, y, _ := r.grid.FirstWalkable()
	return Location{X: x, Y: y, Level: level}
}

func (r *Room) sendInitialViewLocked(c Client, p *Player) {
	c.Send(protocol.TypeCharacterColorMap, r.palette)
	c.Send(protocol.TypeDungeonMap, r.composeMapForLocked(p))
	c.Send(protocol.TypePositionColorMap, r.positionColorsLocked(p.CurrentLocation.Level))
	c.Send(protocol.TypeLog, protocol.LogMsg{Lines: r.log.Tail(20)})
	if !p.SelectionComplete() {
		c.Send(protocol.TypeShowFCLSelect, r.selectMsgLocked(p))
	} else {
		c.Send(protocol.TypeShowGameConfirm, r.confirmMsgLocked(p))
	}
}

// Autosave captures and persists a snapshot. Fire-and-forget: failures are
// logged, gameplay proceeds on in-memory state.
func (r *Room) Autosave() {
	if r.store == nil {
		return
	}

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	data, err := snap.Marshal()
	if err != nil {
		logging.L().Warnf("⚠️ Snapshot encode failed for %s: %v", r.GameID, err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := r.store.InsertSnapshot(ctx, r.GameID, data); err != nil {
			logging.L().Warnf("⚠️ Snapshot save failed for %s: %v", r.GameID, err)
			return
		}
		if err := r.store.DeleteSnapshotsExcept(ctx, r.GameID, r.cfg.Retention); err != nil {
			logging.L().Warnf("⚠️ Snapshot prune failed for %s: %v", r.GameID, err)
		}
	}()
}

// restoreLatest runs once, asynchronously, right after creation. Restored
// participants merge in only where no live participant claimed the id first.
func (r *Room) restoreLatest() {
	if !r.restored.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	row, err := r.store.SelectLatestSnapshot(ctx, r.GameID)
	if err != nil {
		logging.L().Warnf("⚠️ Snapshot load failed for %s: %v", r.GameID, err)
		return
	}
	if row == nil {
		return // fresh room
	}

	snap, err := UnmarshalSnapshot(row.Data)
	if err != nil {
		logging.L().Warnf("⚠️ Snapshot decode failed for %s: %v", r.GameID, err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return
	}
	merged := r.restoreLocked(snap)
	logging.L().Infof("💾 Room %s restored snapshot (%d offline participants merged)", r.GameID, merged)
}
