package negotiation

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/1ureka/facelink/internal/util"
)

// Controller drives the offer/answer handshake for the local peer. Engine
// calls for one Session never overlap: each step checks the Session's state
// and busy flag before it starts, so a second step fails instead of waiting.
//
// Callbacks registered with On* are invoked without the controller lock held
// and may call back into the controller.
type Controller struct {
	newEngine     EngineFactory
	gatherTimeout time.Duration

	mu      sync.Mutex
	session *Session
	stream  Stream

	onRelayReady   func(Description)
	onStateChange  func(SessionInfo)
	onRemoteStream func(Stream)
	onFailure      func(error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithGatherTimeout abandons a Session whose candidate gathering has not
// completed d after the local description was committed. Zero waits forever.
func WithGatherTimeout(d time.Duration) Option {
	return func(c *Controller) { c.gatherTimeout = d }
}

// WithStream sets the local stream lent to new Sessions.
func WithStream(s Stream) Option {
	return func(c *Controller) { c.stream = s }
}

// NewController returns an idle controller that creates one engine per
// Session through newEngine.
func NewController(newEngine EngineFactory, opts ...Option) *Controller {
	c := &Controller{newEngine: newEngine}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ---------------------------------------------------------------------------
// Observers
// ---------------------------------------------------------------------------

// OnRelayReady registers the callback that receives the local description
// once it is committed and gathering is complete.
func (c *Controller) OnRelayReady(fn func(Description)) {
	c.mu.Lock()
	c.onRelayReady = fn
	c.mu.Unlock()
}

// OnStateChange registers a callback for every Session transition, including
// the return to idle after teardown or failure.
func (c *Controller) OnStateChange(fn func(SessionInfo)) {
	c.mu.Lock()
	c.onStateChange = fn
	c.mu.Unlock()
}

// OnRemoteStream registers the callback for remote streams of the current
// Session. Streams from a torn-down Session are dropped.
func (c *Controller) OnRemoteStream(fn func(Stream)) {
	c.mu.Lock()
	c.onRemoteStream = fn
	c.mu.Unlock()
}

// OnFailure registers a callback for errors that abandon a Session, including
// ones raised from engine callbacks where no caller is waiting.
func (c *Controller) OnFailure(fn func(error)) {
	c.mu.Lock()
	c.onFailure = fn
	c.mu.Unlock()
}

// SetStream replaces the local stream lent to future Sessions. A Session
// already running keeps the stream it borrowed.
func (c *Controller) SetStream(s Stream) {
	c.mu.Lock()
	c.stream = s
	c.mu.Unlock()
}

// State returns the current Session's state, or StateIdle.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return StateIdle
	}
	return c.session.state
}

// Session returns a snapshot of the current Session, if any.
func (c *Controller) Session() (SessionInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return idleInfo, false
	}
	return c.session.info(), true
}

// Expect reports what ReceiveRemoteText would take the next text to be.
func (c *Controller) Expect() Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inferLocked()
}

func (c *Controller) inferLocked() Decision {
	if c.session == nil {
		return Infer(false, StateIdle, RoleUnassigned, false)
	}
	return Infer(true, c.session.state, c.session.role, c.session.relayed)
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Connect starts a Session as the offerer. With a Session already present it
// only logs a warning and returns nil, so repeated clicks are harmless.
func (c *Controller) Connect() error {
	c.mu.Lock()
	if s := c.session; s != nil {
		c.mu.Unlock()
		util.LogWarning("[%s] connect ignored: session already active as %s (%s)", s.shortID(), s.role, s.state)
		return nil
	}
	s := newSession(RoleOfferer, c.stream)
	c.session = s
	info := s.info()
	c.mu.Unlock()

	util.LogInfo("[%s] new session as offerer", s.shortID())
	c.emitState(info)
	return c.initiateOffer(s)
}

// ReceiveRemoteText consumes a relayed description body. Whether it is an
// offer or an answer is decided by Infer from the controller's state.
func (c *Controller) ReceiveRemoteText(text string) error {
	const op = "receive remote text"

	c.mu.Lock()
	decision := c.inferLocked()
	state := StateIdle
	if c.session != nil {
		state = c.session.state
	}
	c.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return &Error{Op: op, State: state, Err: ErrEmptyDescription}
	}

	switch decision {
	case DecisionAcceptOffer:
		return c.AcceptOffer(NewOffer(text))
	case DecisionAcceptAnswer:
		return c.AcceptAnswer(NewAnswer(text))
	default:
		return transitionError(op, state, "no description expected")
	}
}

// AcceptOffer starts a Session as the answerer from a remote offer and, once
// the offer is applied, generates the answer.
func (c *Controller) AcceptOffer(d Description) error {
	const op = "accept offer"

	if d.Kind() != KindOffer {
		return transitionError(op, c.State(), "description is an "+d.Kind().String())
	}

	c.mu.Lock()
	if c.session != nil {
		state := c.session.state
		c.mu.Unlock()
		return transitionError(op, state, "session already active")
	}
	s := newSession(RoleAnswerer, c.stream)
	s.busy = true
	c.session = s
	info := s.info()
	c.mu.Unlock()

	util.LogInfo("[%s] new session as answerer", s.shortID())
	c.emitState(info)

	eng, err := c.prepare(s, op)
	if err != nil {
		return err
	}

	if err := eng.SetRemoteDescription(d); err != nil {
		return c.abandon(s, engineError(op, StateRoleAssigned, err))
	}

	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return transitionError(op, StateIdle, "session torn down")
	}
	s.state = StateRemoteDescriptionSet
	s.busy = false
	info = s.info()
	c.mu.Unlock()

	util.LogDebug("[%s] remote offer applied", s.shortID())
	c.emitState(info)
	return c.generateAnswer(s)
}

// AcceptAnswer applies the remote answer to our outstanding offer and
// establishes the Session. The offer must already have been relayed.
func (c *Controller) AcceptAnswer(d Description) error {
	const op = "accept answer"

	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return transitionError(op, StateIdle, "no offer was sent")
	}
	if d.Kind() != KindAnswer || s.role != RoleOfferer || s.state != StateLocalDescriptionSet || s.busy {
		state, role := s.state, s.role
		c.mu.Unlock()
		return transitionError(op, state, "session is "+role.String()+", got "+d.Kind().String())
	}
	if !s.relayed {
		state := s.state
		c.mu.Unlock()
		return transitionError(op, state, "offer has not been relayed yet")
	}
	s.busy = true
	eng := s.engine
	c.mu.Unlock()

	if err := eng.SetRemoteDescription(d); err != nil {
		return c.abandon(s, engineError(op, StateLocalDescriptionSet, err))
	}

	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return transitionError(op, StateIdle, "session torn down")
	}
	s.state = StateRemoteDescriptionSet
	applied := s.info()
	s.state = StateEstablished
	s.busy = false
	info := s.info()
	c.mu.Unlock()

	util.LogDebug("[%s] remote answer applied", s.shortID())
	c.emitState(applied)
	util.LogSuccess("[%s] session established", s.shortID())
	c.emitState(info)
	return nil
}

// Close tears down the current Session, if any, and returns to idle.
func (c *Controller) Close() error {
	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return nil
	}
	c.session = nil
	s.stopGatherTimer()
	eng := s.engine
	c.mu.Unlock()

	util.LogInfo("[%s] session closed", s.shortID())
	c.emitState(idleInfo)

	if eng != nil {
		return eng.Close()
	}
	return nil
}

// ---------------------------------------------------------------------------
// Steps
// ---------------------------------------------------------------------------

// initiateOffer creates the engine, produces the offer and commits it.
// Relay waits for gathering; see gatheringComplete.
func (c *Controller) initiateOffer(s *Session) error {
	const op = "initiate offer"

	if err := c.begin(s, op, RoleOfferer, StateRoleAssigned); err != nil {
		return err
	}

	eng, err := c.prepare(s, op)
	if err != nil {
		return err
	}

	offer, err := eng.CreateOffer()
	if err != nil {
		return c.abandon(s, engineError(op, StateRoleAssigned, err))
	}

	return c.commitLocal(s, op, offer)
}

// generateAnswer produces and commits the answer to an applied remote offer.
func (c *Controller) generateAnswer(s *Session) error {
	const op = "generate answer"

	if err := c.begin(s, op, RoleAnswerer, StateRemoteDescriptionSet); err != nil {
		return err
	}

	c.mu.Lock()
	eng := s.engine
	c.mu.Unlock()

	answer, err := eng.CreateAnswer()
	if err != nil {
		return c.abandon(s, engineError(op, StateRemoteDescriptionSet, err))
	}

	return c.commitLocal(s, op, answer)
}

// begin marks s busy if it is current, plays role and sits in state.
func (c *Controller) begin(s *Session, op string, role Role, state State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != s {
		return transitionError(op, StateIdle, "session is not current")
	}
	if s.role != role || s.state != state || s.busy {
		return transitionError(op, s.state, "requires "+role.String()+" in "+state.String())
	}
	s.busy = true
	return nil
}

// prepare creates the Session's engine, wires its callbacks and lends it the
// local stream. A missing stream leaves the Session receive-only.
func (c *Controller) prepare(s *Session, op string) (Engine, error) {
	eng, err := c.newEngine()
	if err != nil {
		return nil, c.abandon(s, engineError(op, StateRoleAssigned, err))
	}

	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		eng.Close()
		return nil, transitionError(op, StateIdle, "session torn down")
	}
	s.engine = eng
	stream := s.stream
	c.mu.Unlock()

	eng.OnRemoteStream(func(rs Stream) { c.remoteStreamArrived(s, rs) })
	eng.OnGatheringComplete(func() { c.gatheringComplete(s) })

	if stream == nil {
		util.LogWarning("[%s] no local stream, session is receive-only", s.shortID())
		return eng, nil
	}
	if err := eng.AddStream(stream); err != nil {
		return nil, c.abandon(s, engineError(op, StateRoleAssigned, err))
	}
	util.LogDebug("[%s] local stream %s attached", s.shortID(), stream.ID())
	return eng, nil
}

// commitLocal sets d as the local description and moves to
// LocalDescriptionSet. The description is relayed here only if gathering
// already finished.
func (c *Controller) commitLocal(s *Session, op string, d Description) error {
	c.mu.Lock()
	from := s.state
	eng := s.engine
	s.gathering = GatheringInProgress
	c.mu.Unlock()

	if err := eng.SetLocalDescription(d); err != nil {
		return c.abandon(s, engineError(op, from, err))
	}

	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return transitionError(op, StateIdle, "session torn down")
	}
	s.local = d
	s.state = StateLocalDescriptionSet
	s.busy = false
	if s.gathering != GatheringComplete && c.gatherTimeout > 0 {
		s.gatherTO = time.AfterFunc(c.gatherTimeout, func() { c.gatheringTimedOut(s) })
	}
	info := s.info()
	ready := c.takeRelayLocked(s)
	c.mu.Unlock()

	util.LogDebug("[%s] local %s committed, gathering %s", s.shortID(), d.Kind(), info.Gathering)
	c.emitState(info)
	if ready {
		c.relay(s)
	}
	return nil
}

// takeRelayLocked claims the one relay of s when both conditions hold: the
// local description is committed and gathering is complete.
func (c *Controller) takeRelayLocked(s *Session) bool {
	if s.local.IsZero() || s.gathering != GatheringComplete || s.relayed {
		return false
	}
	s.relayed = true
	return true
}

// relay hands the final local description, candidates included, to the relay
// callback. For the answerer this completes the handshake.
func (c *Controller) relay(s *Session) {
	c.mu.Lock()
	eng := s.engine
	fallback := s.local
	c.mu.Unlock()

	d, ok := eng.LocalDescription()
	if !ok {
		d = fallback
	}

	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}
	established := false
	if s.role == RoleAnswerer && s.state == StateLocalDescriptionSet {
		s.state = StateEstablished
		established = true
	}
	info := s.info()
	fn := c.onRelayReady
	c.mu.Unlock()

	util.LogSuccess("[%s] %s ready to relay", s.shortID(), d.Kind())
	if fn != nil {
		fn(d)
	}
	if established {
		util.LogSuccess("[%s] session established", s.shortID())
		c.emitState(info)
	}
}

// ---------------------------------------------------------------------------
// Engine callbacks
// ---------------------------------------------------------------------------

func (c *Controller) gatheringComplete(s *Session) {
	c.mu.Lock()
	if c.session != s || s.gathering == GatheringComplete {
		c.mu.Unlock()
		return
	}
	s.gathering = GatheringComplete
	s.stopGatherTimer()
	info := s.info()
	ready := c.takeRelayLocked(s)
	c.mu.Unlock()

	util.LogDebug("[%s] candidate gathering complete", s.shortID())
	c.emitState(info)
	if ready {
		c.relay(s)
	}
}

func (c *Controller) gatheringTimedOut(s *Session) {
	c.mu.Lock()
	if c.session != s || s.gathering == GatheringComplete {
		c.mu.Unlock()
		return
	}
	state := s.state
	c.mu.Unlock()

	c.abandon(s, &Error{Op: "gather candidates", State: state, Err: ErrGatheringTimeout})
}

func (c *Controller) remoteStreamArrived(s *Session, rs Stream) {
	c.mu.Lock()
	current := c.session == s
	fn := c.onRemoteStream
	c.mu.Unlock()

	if !current {
		util.LogDebug("[%s] dropping remote stream %s of a closed session", s.shortID(), rs.ID())
		return
	}
	util.LogInfo("[%s] remote stream %s arrived", s.shortID(), rs.ID())
	if fn != nil {
		fn(rs)
	}
}

// ---------------------------------------------------------------------------
// Failure & notification
// ---------------------------------------------------------------------------

// abandon drops s after a failure and returns err. No step is retried.
func (c *Controller) abandon(s *Session, err error) error {
	c.mu.Lock()
	current := c.session == s
	if current {
		c.session = nil
	}
	s.stopGatherTimer()
	eng := s.engine
	fn := c.onFailure
	c.mu.Unlock()

	if eng != nil {
		if cerr := eng.Close(); cerr != nil {
			util.LogDebug("[%s] closing engine: %v", s.shortID(), cerr)
		}
	}
	if !current {
		return err
	}

	util.LogError("[%s] session abandoned: %v", s.shortID(), err)
	if fn != nil {
		fn(err)
	}
	c.emitState(idleInfo)
	return err
}

func (c *Controller) emitState(info SessionInfo) {
	c.mu.Lock()
	fn := c.onStateChange
	c.mu.Unlock()

	if fn != nil {
		fn(info)
	}
}

// IsInvalidTransition reports whether err is an InvalidStateTransition.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition)
}
