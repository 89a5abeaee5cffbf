package relay

import (
	"context"
	"strings"
)

// CommandType identifies a user action.
type CommandType string

const (
	CmdConnect CommandType = "connect"
	CmdRemote  CommandType = "remote"
	CmdHangup  CommandType = "hangup"
	CmdQuit    CommandType = "quit"
)

// Command is one user action. Text is set for CmdRemote.
type Command struct {
	Type CommandType
	Text string
}

// Relay is a surface for the manual exchange. Commands are delivered on the
// channel returned by Commands, which is closed when the surface goes away.
type Relay interface {
	Start(ctx context.Context) error
	Commands() <-chan Command
	PublishLocal(kind, text string)
	PublishState(state string)
	Close() error
}

// parseLine maps one line of user input to a command.
func parseLine(line string) (Command, bool) {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return Command{}, false
	case string(CmdConnect):
		return Command{Type: CmdConnect}, true
	case string(CmdHangup):
		return Command{Type: CmdHangup}, true
	case string(CmdQuit), "exit":
		return Command{Type: CmdQuit}, true
	default:
		return Command{Type: CmdRemote, Text: line}, true
	}
}
