// Package worker consumes remote commands for the refresh loop.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Command names.
const (
	CommandReset = "reset"
	CommandPing  = "ping"
)

var (
	// ErrMalformedCommand is returned for payloads that are not a command.
	ErrMalformedCommand = errors.New("malformed command")

	// ErrUnknownCommand is returned for well-formed commands nobody handles.
	ErrUnknownCommand = errors.New("unknown command")
)

// Command is a remote instruction, encoded as JSON.
type Command struct {
	Command     string `json:"command"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// Resetter restarts the refresh cycle.
type Resetter interface {
	Reset()
	Generation() uint64
}

// Dispatcher decodes commands and applies them to the refresh loop.
type Dispatcher struct {
	resetter Resetter
	logger   zerolog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(resetter Resetter, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{resetter: resetter, logger: logger}
}

// Dispatch decodes data and runs the command it names.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	if cmd.Command == "" {
		return cmd, fmt.Errorf("%w: missing command", ErrMalformedCommand)
	}

	switch cmd.Command {
	case CommandReset:
		d.resetter.Reset()
		d.logger.Info().
			Str("requested_by", cmd.RequestedBy).
			Uint64("generation", d.resetter.Generation()).
			Msg("reset by remote command")
	case CommandPing:
		d.logger.Debug().Msg("ping")
	default:
		return cmd, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
	return cmd, ctx.Err()
}
