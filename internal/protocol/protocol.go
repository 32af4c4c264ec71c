// Package protocol defines the wire contract between the session core and
// its transport: outbound message shapes and the closed set of inbound
// commands. Inbound payloads are schema-validated on ingress; nothing past
// this package trusts payload shape.
package protocol

import "encoding/json"

// Outbound message types.
const (
	TypeCharacterColorMap = "characterColorMap"
	TypeDungeonMap        = "dungeonMap"
	TypePositionColorMap  = "positionColorMap"
	TypeShowFCLSelect     = "showFCLSelect"
	TypeShowGameConfirm   = "showGameConfirm"
	TypeAppState          = "appState"
	TypeModal             = "modal"
	TypePing              = "ping"
	TypeLog               = "log"
)

// Inbound command types.
const (
	CmdMove            = "move"
	CmdPong            = "pong"
	CmdHeartbeat       = "heartbeat"
	CmdSelectFaction   = "selectFaction"
	CmdSelectClass     = "selectClass"
	CmdSelectLoadout   = "selectLoadout"
	CmdSetReady        = "setReady"
	CmdStartGame       = "startGame"
	CmdCancelCountdown = "cancelCountdown"
	CmdSay             = "say"
)

// Envelope routes every inbound frame by type.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// DecodeEnvelope parses an inbound frame.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(b, &e)
	return e, err
}

// Modal close codes sent alongside forced disconnects.
const (
	CloseDuplicateSession = 4001
	CloseSessionExpired   = 4002
	CloseAuthRejected     = 4003
)

// ModalMsg is a forced-notice payload (kick, expiry, auth refusal).
type ModalMsg struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// PingMsg is the latency probe; clients echo T back in a pong command.
type PingMsg struct {
	T int64 `json:"t"` // unix milliseconds at send time
}

// AppStateMsg announces a room-wide state transition.
type AppStateMsg struct {
	State string `json:"state"`
}

// AppStateGameplay is the terminal match-flow transition.
const AppStateGameplay = "gameplayActive"

// ShowFCLSelectMsg carries selection options plus the viewer's current picks.
type ShowFCLSelectMsg struct {
	Factions []string            `json:"factions"`
	Classes  []string            `json:"classes"`
	Loadouts map[string][]string `json:"loadouts"` // keyed by faction
	Faction  string              `json:"faction"`
	ClassKey string              `json:"classKey"`
	Loadout  string              `json:"loadout"`
	Complete bool                `json:"complete"`
}

// ConfirmPlayer is one row of the pre-game confirm screen.
type ConfirmPlayer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Ready   bool   `json:"ready"`
	Online  bool   `json:"online"`
	Faction string `json:"faction"`
}

// ShowGameConfirmMsg is the room-wide readiness/countdown view, composited
// per viewer (YouReady).
type ShowGameConfirmMsg struct {
	Players   []ConfirmPlayer `json:"players"`
	HostID    string          `json:"hostId"`
	Starting  bool            `json:"starting"`
	Countdown int             `json:"countdown"`
	YouReady  bool            `json:"youReady"`
}

// LogMsg is the trailing slice of the room log.
type LogMsg struct {
	Lines []string `json:"lines"`
}

// Inbound payload shapes, populated after schema validation.

// MovePayload resolves to a unit delta at apply time.
type MovePayload struct {
	Direction string `json:"direction"` // up | down | left | right
}

// PongPayload echoes a ping probe.
type PongPayload struct {
	T int64 `json:"t"`
}

// SelectPayload carries a single selection key.
type SelectPayload struct {
	Key string `json:"key"`
}

// ReadyPayload carries the requested ready flag.
type ReadyPayload struct {
	Ready bool `json:"ready"`
}

// SayPayload is a chat line destined for the room log.
type SayPayload struct {
	Text string `json:"text"`
}
