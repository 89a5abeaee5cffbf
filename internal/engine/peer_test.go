package engine

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v4/vnet"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/facelink/internal/negotiation"
)

// testStream is a TrackSource with a single VP8 track.
type testStream struct {
	track *webrtc.TrackLocalStaticSample
}

func newTestStream(t *testing.T) *testStream {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "test-stream")
	require.NoError(t, err)
	return &testStream{track: track}
}

func (s *testStream) ID() string                   { return "test-stream" }
func (s *testStream) Tracks() []webrtc.TrackLocal { return []webrtc.TrackLocal{s.track} }

// vnetAPIs puts two APIs on one virtual LAN so ICE only sees host candidates
// on 10.0.0.0/24.
func vnetAPIs(t *testing.T) (*API, *API) {
	t.Helper()

	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "10.0.0.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	require.NoError(t, err)

	netA, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.2"}})
	require.NoError(t, err)
	require.NoError(t, router.AddNet(netA))

	netB, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.3"}})
	require.NoError(t, err)
	require.NoError(t, router.AddNet(netB))

	require.NoError(t, router.Start())
	t.Cleanup(func() { _ = router.Stop() })

	apiA, err := NewAPI(Options{Net: netA, DisableMDNS: true})
	require.NoError(t, err)
	apiB, err := NewAPI(Options{Net: netB, DisableMDNS: true})
	require.NoError(t, err)
	return apiA, apiB
}

// peerTracker remembers the peers a factory created.
type peerTracker struct {
	mu    sync.Mutex
	peers []*Peer
}

func (pt *peerTracker) factory(api *API) negotiation.EngineFactory {
	return func() (negotiation.Engine, error) {
		p, err := api.NewPeer()
		if err != nil {
			return nil, err
		}
		pt.mu.Lock()
		pt.peers = append(pt.peers, p)
		pt.mu.Unlock()
		return p, nil
	}
}

func (pt *peerTracker) last() *Peer {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.peers[len(pt.peers)-1]
}

func relayInto(c *negotiation.Controller) <-chan negotiation.Description {
	ch := make(chan negotiation.Description, 1)
	c.OnRelayReady(func(d negotiation.Description) { ch <- d })
	return ch
}

func waitRelay(t *testing.T, ch <-chan negotiation.Description) negotiation.Description {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(10 * time.Second):
		t.Fatal("description never became relay-ready")
		return negotiation.Description{}
	}
}

func TestHandshakeOverVirtualNetwork(t *testing.T) {
	apiA, apiB := vnetAPIs(t)

	var peersA, peersB peerTracker
	a := negotiation.NewController(peersA.factory(apiA), negotiation.WithStream(newTestStream(t)))
	b := negotiation.NewController(peersB.factory(apiB))
	defer a.Close()
	defer b.Close()

	aRelay, bRelay := relayInto(a), relayInto(b)

	require.NoError(t, a.Connect())
	offer := waitRelay(t, aRelay)
	assert.Equal(t, negotiation.KindOffer, offer.Kind())
	assert.Contains(t, offer.Body(), "a=candidate", "non-trickle offer embeds candidates")
	assert.Contains(t, offer.Body(), "10.0.0.2")

	require.NoError(t, b.ReceiveRemoteText(offer.Body()))
	answer := waitRelay(t, bRelay)
	assert.Equal(t, negotiation.KindAnswer, answer.Kind())
	assert.Contains(t, answer.Body(), "10.0.0.3")
	assert.Equal(t, negotiation.StateEstablished, b.State())

	require.NoError(t, a.ReceiveRemoteText(answer.Body()))
	assert.Equal(t, negotiation.StateEstablished, a.State())

	require.Eventually(t, func() bool {
		return peersA.last().ConnectionState() == webrtc.PeerConnectionStateConnected &&
			peersB.last().ConnectionState() == webrtc.PeerConnectionStateConnected
	}, 15*time.Second, 50*time.Millisecond)
}

func TestReceiveOnlyOfferAsksForBothKinds(t *testing.T) {
	apiA, _ := vnetAPIs(t)

	p, err := apiA.NewPeer()
	require.NoError(t, err)
	defer p.Close()

	offer, err := p.CreateOffer()
	require.NoError(t, err)

	sum, err := summarize(offer.Body())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"video/recvonly", "audio/recvonly"}, sum.media)
}

func TestAddStreamRequiresTracks(t *testing.T) {
	apiA, _ := vnetAPIs(t)

	p, err := apiA.NewPeer()
	require.NoError(t, err)
	defer p.Close()

	err = p.AddStream(plainStream("nothing"))
	assert.Error(t, err)
}

func TestPeerCloseIsIdempotent(t *testing.T) {
	apiA, _ := vnetAPIs(t)

	p, err := apiA.NewPeer()
	require.NoError(t, err)
	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
}

func TestDescriptionConversion(t *testing.T) {
	sd, err := toPion(negotiation.NewAnswer("v=0"))
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, sd.Type)

	d, err := fromPion(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"})
	require.NoError(t, err)
	assert.Equal(t, negotiation.KindOffer, d.Kind())

	_, err = fromPion(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
	assert.ErrorIs(t, err, errUnknownKind)

	_, err = toPion(negotiation.Description{})
	assert.True(t, strings.Contains(err.Error(), "unknown"))
}

type plainStream string

func (s plainStream) ID() string { return string(s) }
