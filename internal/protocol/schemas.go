package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Per-command payload schemas. The command set is a closed tagged union:
// unknown types and off-shape payloads are rejected at ingress.
var schemaSources = map[string]string{
	CmdMove: `{
		"type": "object",
		"required": ["direction"],
		"properties": {
			"direction": {"enum": ["up", "down", "left", "right"]}
		}
	}`,
	CmdPong: `{
		"type": "object",
		"required": ["t"],
		"properties": {
			"t": {"type": "integer", "minimum": 0}
		}
	}`,
	CmdHeartbeat: `{"type": ["object", "null"]}`,
	CmdSelectFaction: `{
		"type": "object",
		"required": ["key"],
		"properties": {
			"key": {"type": "string", "maxLength": 64}
		}
	}`,
	CmdSelectClass: `{
		"type": "object",
		"required": ["key"],
		"properties": {
			"key": {"type": "string", "maxLength": 64}
		}
	}`,
	CmdSelectLoadout: `{
		"type": "object",
		"required": ["key"],
		"properties": {
			"key": {"type": "string", "maxLength": 64}
		}
	}`,
	CmdSetReady: `{
		"type": "object",
		"required": ["ready"],
		"properties": {
			"ready": {"type": "boolean"}
		}
	}`,
	CmdStartGame:       `{"type": ["object", "null"]}`,
	CmdCancelCountdown: `{"type": ["object", "null"]}`,
	CmdSay: `{
		"type": "object",
		"required": ["text"],
		"properties": {
			"text": {"type": "string", "minLength": 1, "maxLength": 200}
		}
	}`,
}

var schemas = func() map[string]*jsonschema.Schema {
	out := make(map[string]*jsonschema.Schema, len(schemaSources))
	for cmd, src := range schemaSources {
		s, err := jsonschema.CompileString(cmd+".schema.json", src)
		if err != nil {
			panic(fmt.Sprintf("compile %s schema: %v", cmd, err))
		}
		out[cmd] = s
	}
	return out
}()

// ErrUnknownCommand marks a type outside the closed command set.
var ErrUnknownCommand = fmt.Errorf("unknown command type")

// ValidateCommand checks an inbound payload against its command schema.
func ValidateCommand(cmdType string, data json.RawMessage) error {
	s, ok := schemas[cmdType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmdType)
	}

	var v any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("decode %s payload: %w", cmdType, err)
		}
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("validate %s payload: %w", cmdType, err)
	}
	return nil
}
