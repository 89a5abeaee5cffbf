package relay

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pterm/pterm"

	"github.com/1ureka/facelink/internal/util"
)

// Terminal relays through stdin/stdout. Encoded descriptions are one line;
// raw SDP is collected from a "v=" line up to the next blank line.
type Terminal struct {
	in  io.Reader
	out io.Writer

	cmds      chan Command
	startOnce sync.Once
	mu        sync.Mutex
}

var _ Relay = (*Terminal)(nil)

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out, cmds: make(chan Command)}
}

// Start begins reading input. It returns immediately.
func (t *Terminal) Start(ctx context.Context) error {
	t.startOnce.Do(func() {
		t.printHelp()
		go t.readLoop(ctx)
	})
	return nil
}

func (t *Terminal) Commands() <-chan Command { return t.cmds }

func (t *Terminal) readLoop(ctx context.Context) {
	defer close(t.cmds)

	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var sdp []string
	emit := func(c Command) bool {
		select {
		case t.cmds <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if sdp != nil {
			if line != "" {
				sdp = append(sdp, line)
				continue
			}
			text := strings.Join(sdp, "\n")
			sdp = nil
			if !emit(Command{Type: CmdRemote, Text: text}) {
				return
			}
			continue
		}

		if strings.HasPrefix(line, "v=") {
			sdp = []string{line}
			continue
		}

		cmd, ok := parseLine(line)
		if !ok {
			continue
		}
		if !emit(cmd) {
			return
		}
		if cmd.Type == CmdQuit {
			return
		}
	}

	if len(sdp) > 0 {
		emit(Command{Type: CmdRemote, Text: strings.Join(sdp, "\n")})
	}
	if err := scanner.Err(); err != nil {
		util.LogWarning("reading input: %v", err)
	}
}

// PublishLocal prints text between rules so it can be copied in one go.
func (t *Terminal) PublishLocal(kind, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rule := strings.Repeat("─", 60)
	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, pterm.Bold.Sprintf("Your %s (send this line to the other side):", kind))
	fmt.Fprintln(t.out, rule)
	fmt.Fprintln(t.out, text)
	fmt.Fprintln(t.out, rule)
	fmt.Fprintln(t.out)
}

func (t *Terminal) PublishState(state string) {
	util.LogInfo("call state: %s", state)
}

func (t *Terminal) Close() error { return nil }

func (t *Terminal) printHelp() {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, "Commands:")
	fmt.Fprintln(t.out, "  connect   start a call and print an offer")
	fmt.Fprintln(t.out, "  hangup    end the current call")
	fmt.Fprintln(t.out, "  quit      leave")
	fmt.Fprintln(t.out, "Anything else is taken as text pasted from the other side.")
	fmt.Fprintln(t.out)
}
