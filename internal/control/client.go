package control

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
)

// Sends one request to the session listening on socketPath and returns the
// response envelope and payload.
//
// A [CmdError] response is returned as an error wrapping [ErrRemote].
func Request(ctx context.Context, socketPath string, cmd Command, payload any) (*Envelope, json.RawMessage, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDial, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	data, err := Encode(cmd, payload)
	if err != nil {
		return nil, nil, err
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDial, err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}

	env, raw, err := Decode(line)
	if err != nil {
		return nil, nil, err
	}

	if env.Command == CmdError {
		msg := "unknown error"
		if res, err := DecodePayload[ErrorResult](raw); err == nil {
			msg = res.Message
		}
		return nil, nil, fmt.Errorf("%w: %s", ErrRemote, msg)
	}

	return env, raw, nil
}

// Queries the status of the session listening on socketPath.
func Status(ctx context.Context, socketPath string) (*StatusResult, error) {
	_, raw, err := Request(ctx, socketPath, CmdStatus, nil)
	if err != nil {
		return nil, err
	}
	return DecodePayload[StatusResult](raw)
}

// Asks the session listening on socketPath to stop.
func Stop(ctx context.Context, socketPath string) error {
	_, _, err := Request(ctx, socketPath, CmdStop, nil)
	return err
}
