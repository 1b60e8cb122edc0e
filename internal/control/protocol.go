package control

import (
	"encoding/json"
	"fmt"
	"time"
)

// Identifies a request or response kind.
type Command string

const (
	CmdStatus Command = "status" // Request a session snapshot.
	CmdStop   Command = "stop"   // Request the session to stop.
	CmdOK     Command = "ok"     // Successful response.
	CmdError  Command = "error"  // Failed response carrying an [ErrorResult].
)

// Wire form of every message. Messages are single JSON lines.
type Envelope struct {
	Version int             `json:"version"`           // Protocol version.
	Command Command         `json:"command"`           // Message kind.
	Payload json.RawMessage `json:"payload,omitempty"` // Command-specific body.
}

// Current protocol version.
const protocolVersion = 1

// Response payload of [CmdStatus].
type StatusResult struct {
	ID        string    `json:"id"`         // Session identifier.
	Image     string    `json:"image"`      // Image reference.
	Args      []string  `json:"args"`       // Command being run.
	State     string    `json:"state"`      // Lifecycle state name.
	StartedAt time.Time `json:"started_at"` // When the session started.
	Uptime    string    `json:"uptime"`     // Time since start, rounded to seconds.
	Pid       int       `json:"pid"`        // PID of the cruxrun process owning the session.
	Version   string    `json:"version"`    // Build version of that process.
}

// Payload of [CmdError] responses.
type ErrorResult struct {
	Message string `json:"message"`
}

// Encodes a message. A nil payload is omitted.
func Encode(cmd Command, payload any) ([]byte, error) {
	env := Envelope{Version: protocolVersion, Command: cmd}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
		}
		env.Payload = raw
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return data, nil
}

// Decodes a message, returning the envelope and its raw payload.
//
// Messages from a different protocol version or without a command are
// rejected.
func Decode(data []byte) (*Envelope, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if env.Version != protocolVersion {
		return nil, nil, fmt.Errorf("%w: unsupported version %d", ErrProtocol, env.Version)
	}
	if env.Command == "" {
		return nil, nil, fmt.Errorf("%w: missing command", ErrProtocol)
	}
	return &env, env.Payload, nil
}

// Decodes a payload into T.
func DecodePayload[T any](raw json.RawMessage) (*T, error) {
	var v T
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrProtocol)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return &v, nil
}
