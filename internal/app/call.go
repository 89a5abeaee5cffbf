// Package app contains the top-level orchestration of a call: local capture,
// the negotiation controller, the relay surface and the render sink.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/1ureka/facelink/internal/negotiation"
	"github.com/1ureka/facelink/internal/relay"
	"github.com/1ureka/facelink/internal/render"
	"github.com/1ureka/facelink/internal/util"
)

// LocalStream is an acquired local stream the call can start, preview and
// lend to sessions.
type LocalStream interface {
	negotiation.Stream
	render.Previewable
	Start(ctx context.Context, stats *util.MediaStats)
	Stop()
}

// Deps are the collaborators of a Call.
type Deps struct {
	Engines negotiation.EngineFactory
	Relay   relay.Relay
	Sink    render.Sink

	// Stream is nil for a receive-only call.
	Stream LocalStream

	Stats         *util.MediaStats
	StatsInterval time.Duration // 0 disables the reporter
	GatherTimeout time.Duration
	AutoConnect   bool
}

// Call wires one controller to its relay and sink and runs the command loop.
type Call struct {
	deps Deps
	ctrl *negotiation.Controller
}

// NewCall builds the controller and registers its observers.
func NewCall(d Deps) *Call {
	if d.Stats == nil {
		d.Stats = &util.MediaStats{}
	}

	opts := []negotiation.Option{negotiation.WithGatherTimeout(d.GatherTimeout)}
	if d.Stream != nil {
		opts = append(opts, negotiation.WithStream(d.Stream))
	}

	c := &Call{deps: d, ctrl: negotiation.NewController(d.Engines, opts...)}
	c.ctrl.OnRelayReady(c.publish)
	c.ctrl.OnStateChange(func(info negotiation.SessionInfo) {
		d.Relay.PublishState(describe(info))
	})
	c.ctrl.OnRemoteStream(c.render)
	// The controller logs the failure itself.
	c.ctrl.OnFailure(func(error) {
		util.LogInfo("connect again, or paste a new offer, to retry")
	})
	return c
}

// Controller exposes the negotiation controller, mainly for tests.
func (c *Call) Controller() *negotiation.Controller { return c.ctrl }

// Run starts the relay and local media and handles commands until the user
// quits, the relay goes away or ctx is cancelled.
func (c *Call) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := c.deps.Relay.Start(ctx); err != nil {
		return fmt.Errorf("start relay: %w", err)
	}
	defer c.shutdown()

	if s := c.deps.Stream; s != nil {
		c.deps.Sink.Preview(s)
		s.Start(ctx, c.deps.Stats)
	} else {
		util.LogWarning("no local camera or microphone; the call will be receive-only")
	}

	if c.deps.StatsInterval > 0 {
		util.StartStatsReporter(ctx, c.deps.Stats, c.deps.StatsInterval)
	}

	c.deps.Relay.PublishState(describe(negotiation.SessionInfo{State: negotiation.StateIdle}))

	if c.deps.AutoConnect {
		c.connect()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-c.deps.Relay.Commands():
			if !ok {
				return nil
			}
			if cmd.Type == relay.CmdQuit {
				return nil
			}
			c.handle(cmd)
		}
	}
}

func (c *Call) handle(cmd relay.Command) {
	switch cmd.Type {
	case relay.CmdConnect:
		c.connect()
	case relay.CmdHangup:
		if err := c.ctrl.Close(); err != nil {
			util.LogWarning("hang up: %v", err)
		}
	case relay.CmdRemote:
		c.receive(cmd.Text)
	default:
		util.LogWarning("unknown command %q", cmd.Type)
	}
}

func (c *Call) connect() {
	if err := c.ctrl.Connect(); err != nil {
		util.LogDebug("connect: %v", err)
	}
}

// receive decodes pasted text and hands it to the controller. The kind the
// sender tagged is only checked against what the controller expects.
func (c *Call) receive(text string) {
	dec, err := relay.Decode(text)
	if err != nil {
		switch {
		case errors.Is(err, relay.ErrEmptyText):
			util.LogWarning("nothing to accept: pasted text is empty")
		default:
			util.LogError("cannot read pasted text: %v", err)
		}
		return
	}

	if want := c.ctrl.Expect().Kind(); dec.Hint != 0 && want != 0 && dec.Hint != want {
		util.LogWarning("pasted text is tagged %s but an %s is expected; trying anyway", dec.Hint, want)
	}

	if err := c.ctrl.ReceiveRemoteText(dec.Body); err != nil {
		if negotiation.IsInvalidTransition(err) || errors.Is(err, negotiation.ErrEmptyDescription) {
			util.LogWarning("%v", err)
			return
		}
		// Anything else abandoned the session and was logged there.
		util.LogDebug("receive: %v", err)
	}
}

// publish encodes a relay-ready description and shows it to the user.
func (c *Call) publish(d negotiation.Description) {
	text, err := relay.Encode(d)
	if err != nil {
		util.LogError("encode %s: %v", d.Kind(), err)
		return
	}
	c.deps.Relay.PublishLocal(d.Kind().String(), text)
	util.LogSuccess("%s ready; send it to the other side", d.Kind())
}

func (c *Call) render(s negotiation.Stream) {
	track, ok := s.(render.TrackReader)
	if !ok {
		util.LogWarning("remote stream %s cannot be rendered", s.ID())
		return
	}
	c.deps.Sink.Render(render.ViewportRemote, track)
}

func (c *Call) shutdown() {
	if err := c.ctrl.Close(); err != nil {
		util.LogWarning("close session: %v", err)
	}
	if s := c.deps.Stream; s != nil {
		s.Stop()
	}
	if err := c.deps.Relay.Close(); err != nil {
		util.LogWarning("close relay: %v", err)
	}
	c.deps.Sink.Wait()
}

func describe(info negotiation.SessionInfo) string {
	if info.State == negotiation.StateIdle {
		return "idle"
	}
	s := fmt.Sprintf("%s as %s", info.State, info.Role)
	if info.State != negotiation.StateEstablished && info.Gathering == negotiation.GatheringInProgress {
		s += ", gathering candidates"
	}
	return s
}
