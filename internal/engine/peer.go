// Package engine adapts pion's PeerConnection to negotiation.Engine.
// Everything browser-compat or pion specific (receive-only transceivers,
// RTCP draining, gathering promises) stays inside this package.
package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/ice/v4"
	"github.com/pion/interceptor"
	"github.com/pion/transport/v4"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/facelink/internal/negotiation"
	"github.com/1ureka/facelink/internal/util"
)

// Options configures the pion API shared by all peers of a process.
type Options struct {
	// STUN servers used for server-reflexive candidates. Empty means host
	// candidates only.
	STUNServers []string

	// DisableMDNS stops hiding host addresses behind .local names.
	DisableMDNS bool

	// Net replaces the OS network, e.g. with a vnet in tests.
	Net transport.Net
}

// TrackSource is a local stream that can hand its tracks to a peer.
type TrackSource interface {
	negotiation.Stream
	Tracks() []webrtc.TrackLocal
}

// API builds peers that share one media engine and setting engine.
type API struct {
	api    *webrtc.API
	config webrtc.Configuration
}

// NewAPI registers the default codecs and interceptors and applies opts.
func NewAPI(opts Options) (*API, error) {
	se := webrtc.SettingEngine{}
	se.LoggerFactory = loggerFactory{}
	if opts.DisableMDNS {
		se.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	}
	if opts.Net != nil {
		se.SetNet(opts.Net)
	}

	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	config := webrtc.Configuration{}
	if len(opts.STUNServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: opts.STUNServers}}
	}

	return &API{
		api: webrtc.NewAPI(
			webrtc.WithSettingEngine(se),
			webrtc.WithMediaEngine(me),
			webrtc.WithInterceptorRegistry(ir),
		),
		config: config,
	}, nil
}

// Factory returns a negotiation.EngineFactory producing a new Peer per call.
func (a *API) Factory() negotiation.EngineFactory {
	return func() (negotiation.Engine, error) {
		p, err := a.NewPeer()
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Peer wraps one PeerConnection.
type Peer struct {
	pc  *webrtc.PeerConnection
	log util.Scoped

	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	sending   map[webrtc.RTPCodecType]bool
	recvOnly  bool
	onGather  func()
	onRemote  func(negotiation.Stream)
	connState webrtc.PeerConnectionState
}

var _ negotiation.Engine = (*Peer)(nil)

// NewPeer creates a PeerConnection with the API's configuration.
func (a *API) NewPeer() (*Peer, error) {
	pc, err := a.api.NewPeerConnection(a.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{
		pc:        pc,
		log:       util.Scope("engine"),
		closed:    make(chan struct{}),
		sending:   make(map[webrtc.RTPCodecType]bool),
		connState: webrtc.PeerConnectionStateNew,
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Infof("peer connection %s", state)
		p.mu.Lock()
		p.connState = state
		p.mu.Unlock()
	})

	pc.OnICEGatheringStateChange(func(state webrtc.ICEGatheringState) {
		p.log.Debugf("ICE gathering %s", state)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.log.Infof("remote %s track %s (%s)", track.Kind(), track.ID(), track.Codec().MimeType)
		p.mu.Lock()
		fn := p.onRemote
		p.mu.Unlock()
		if fn != nil {
			fn(track)
		}
	})

	return p, nil
}

// ---------------------------------------------------------------------------
// negotiation.Engine
// ---------------------------------------------------------------------------

// AddStream adds every track of s. s must be a TrackSource.
func (p *Peer) AddStream(s negotiation.Stream) error {
	src, ok := s.(TrackSource)
	if !ok {
		return fmt.Errorf("stream %s carries no local tracks", s.ID())
	}

	for _, track := range src.Tracks() {
		sender, err := p.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
		p.mu.Lock()
		p.sending[track.Kind()] = true
		p.mu.Unlock()
		go drainRTCP(sender)
	}
	return nil
}

// CreateOffer makes sure the offer asks for both audio and video even when we
// have nothing to send for a kind.
func (p *Peer) CreateOffer() (negotiation.Description, error) {
	if err := p.ensureReceivers(); err != nil {
		return negotiation.Description{}, err
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return negotiation.Description{}, err
	}
	p.debugSummary("created", offer)
	return negotiation.NewOffer(offer.SDP), nil
}

func (p *Peer) CreateAnswer() (negotiation.Description, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return negotiation.Description{}, err
	}
	p.debugSummary("created", answer)
	return negotiation.NewAnswer(answer.SDP), nil
}

// SetLocalDescription applies d and starts watching candidate gathering.
func (p *Peer) SetLocalDescription(d negotiation.Description) error {
	sd, err := toPion(d)
	if err != nil {
		return err
	}

	// The promise must exist before gathering starts.
	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(sd); err != nil {
		return err
	}

	go func() {
		select {
		case <-gathered:
		case <-p.closed:
			return
		}
		p.mu.Lock()
		fn := p.onGather
		p.mu.Unlock()
		if fn != nil {
			fn()
		}
	}()
	return nil
}

func (p *Peer) SetRemoteDescription(d negotiation.Description) error {
	sd, err := toPion(d)
	if err != nil {
		return err
	}
	p.debugSummary("remote", sd)
	return p.pc.SetRemoteDescription(sd)
}

// LocalDescription returns pion's current local description, which includes
// the candidates gathered so far.
func (p *Peer) LocalDescription() (negotiation.Description, bool) {
	ld := p.pc.LocalDescription()
	if ld == nil {
		return negotiation.Description{}, false
	}

	d, err := fromPion(*ld)
	if err != nil {
		return negotiation.Description{}, false
	}

	if sum, err := summarize(d.Body()); err == nil && sum.candidates == 0 {
		p.log.Warnf("local %s has no candidates; the peer will not be able to reach us", d.Kind())
	}
	return d, true
}

func (p *Peer) OnGatheringComplete(fn func()) {
	p.mu.Lock()
	p.onGather = fn
	p.mu.Unlock()
}

func (p *Peer) OnRemoteStream(fn func(negotiation.Stream)) {
	p.mu.Lock()
	p.onRemote = fn
	p.mu.Unlock()
}

// Close stops the gathering watcher and closes the PeerConnection. Safe to
// call more than once.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.pc.Close()
	})
	return err
}

// ConnectionState returns the last observed PeerConnection state.
func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connState
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// ensureReceivers adds a recvonly transceiver for each kind we do not send.
func (p *Peer) ensureReceivers() error {
	p.mu.Lock()
	if p.recvOnly {
		p.mu.Unlock()
		return nil
	}
	p.recvOnly = true
	var missing []webrtc.RTPCodecType
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if !p.sending[kind] {
			missing = append(missing, kind)
		}
	}
	p.mu.Unlock()

	for _, kind := range missing {
		if _, err := p.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("add %s receiver: %w", kind, err)
		}
	}
	return nil
}

func (p *Peer) debugSummary(what string, sd webrtc.SessionDescription) {
	if !util.DebugEnabled() {
		return
	}
	sum, err := summarize(sd.SDP)
	if err != nil {
		p.log.Debugf("%s %s: unparsable: %v", what, sd.Type, err)
		return
	}
	p.log.Debugf("%s %s: %s", what, sd.Type, sum)
}

// drainRTCP reads RTCP for a sender so interceptors (NACK, reports) run.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

var errUnknownKind = errors.New("unknown description kind")

func toPion(d negotiation.Description) (webrtc.SessionDescription, error) {
	switch d.Kind() {
	case negotiation.KindOffer:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: d.Body()}, nil
	case negotiation.KindAnswer:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: d.Body()}, nil
	default:
		return webrtc.SessionDescription{}, errUnknownKind
	}
}

func fromPion(sd webrtc.SessionDescription) (negotiation.Description, error) {
	switch sd.Type {
	case webrtc.SDPTypeOffer:
		return negotiation.NewOffer(sd.SDP), nil
	case webrtc.SDPTypeAnswer:
		return negotiation.NewAnswer(sd.SDP), nil
	default:
		return negotiation.Description{}, fmt.Errorf("%w: %s", errUnknownKind, sd.Type)
	}
}
