package relay

import (
	"context"
	"crypto/rand"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/1ureka/facelink/internal/util"
)

//go:embed panel.html
var panelPage []byte

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Panel serves a local web page with the two text areas and the call
// buttons. Any number of tabs may be open; each sees the latest state.
type Panel struct {
	addr string
	pin  string
	log  util.Scoped

	listener net.Listener
	srv      *http.Server

	cmds      chan Command
	done      chan struct{}
	closeOnce sync.Once
	tabs      sync.WaitGroup // live readLoops; cmds closes after they exit

	mu    sync.Mutex
	conns map[*panelConn]struct{}
	local *Message
	state *Message
}

var _ Relay = (*Panel)(nil)

// panelConn serializes writes to one browser tab.
type panelConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (pc *panelConn) send(msg Message) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.conn.WriteJSON(msg)
}

// NewPanel creates a panel that will listen on addr.
func NewPanel(addr string) *Panel {
	return &Panel{
		addr:  addr,
		pin:   generatePIN(6),
		log:   util.Scope("panel"),
		cmds:  make(chan Command),
		done:  make(chan struct{}),
		conns: make(map[*panelConn]struct{}),
	}
}

// Start begins listening. The page URL is available from URL afterwards.
func (p *Panel) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", p.addr)
	if err != nil {
		return fmt.Errorf("failed to start panel server: %w", err)
	}
	p.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", p.handlePage)
	mux.HandleFunc("/ws", p.handleWS)
	p.srv = &http.Server{Handler: mux}

	go func() {
		if err := p.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.Errorf("serve: %v", err)
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = p.Close()
		case <-p.done:
		}
	}()

	p.log.Infof("open %s in a browser", p.URL())
	return nil
}

// URL returns the page address including the access PIN.
func (p *Panel) URL() string {
	if p.listener == nil {
		return ""
	}
	return fmt.Sprintf("http://%s/?pin=%s", p.listener.Addr(), p.pin)
}

func (p *Panel) Commands() <-chan Command { return p.cmds }

func (p *Panel) PublishLocal(kind, text string) {
	p.broadcast(Message{Type: MsgTypeLocal, Kind: kind, Text: text}, &p.local)
}

func (p *Panel) PublishState(state string) {
	p.broadcast(Message{Type: MsgTypeState, State: state}, &p.state)
}

// Close stops the server and disconnects every tab. Safe to call more than
// once.
func (p *Panel) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		if p.srv != nil {
			err = p.srv.Close()
		}
		p.mu.Lock()
		for pc := range p.conns {
			pc.conn.Close()
		}
		p.conns = map[*panelConn]struct{}{}
		p.mu.Unlock()
		p.tabs.Wait()
		close(p.cmds)
	})
	return err
}

// ---------------------------------------------------------------------------
// HTTP handlers
// ---------------------------------------------------------------------------

func (p *Panel) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.URL.Query().Get("pin") != p.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(panelPage)
}

func (p *Panel) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("pin") != p.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	pc := &panelConn{conn: conn}

	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		conn.Close()
		return
	default:
	}
	p.tabs.Add(1)
	defer p.tabs.Done()
	p.conns[pc] = struct{}{}
	// Catch the new tab up.
	var replay []Message
	if p.state != nil {
		replay = append(replay, *p.state)
	}
	if p.local != nil {
		replay = append(replay, *p.local)
	}
	p.mu.Unlock()

	p.log.Debugf("tab connected from %s", r.RemoteAddr)
	for _, msg := range replay {
		if err := pc.send(msg); err != nil {
			p.drop(pc)
			return
		}
	}

	p.readLoop(pc)
}

func (p *Panel) readLoop(pc *panelConn) {
	defer p.drop(pc)

	for {
		var msg Message
		if err := pc.conn.ReadJSON(&msg); err != nil {
			return
		}

		var cmd Command
		switch msg.Type {
		case MsgTypeConnect:
			cmd = Command{Type: CmdConnect}
		case MsgTypeHangup:
			cmd = Command{Type: CmdHangup}
		case MsgTypeRemote:
			cmd = Command{Type: CmdRemote, Text: msg.Text}
		default:
			p.log.Warnf("ignoring unknown message type %q", msg.Type)
			continue
		}

		select {
		case p.cmds <- cmd:
		case <-p.done:
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// broadcast sends msg to every tab and remembers it in *last for late tabs.
func (p *Panel) broadcast(msg Message, last **Message) {
	p.mu.Lock()
	*last = &msg
	conns := make([]*panelConn, 0, len(p.conns))
	for pc := range p.conns {
		conns = append(conns, pc)
	}
	p.mu.Unlock()

	for _, pc := range conns {
		if err := pc.send(msg); err != nil {
			p.log.Debugf("send %s: %v", msg.Type, err)
			p.drop(pc)
		}
	}
}

func (p *Panel) drop(pc *panelConn) {
	p.mu.Lock()
	delete(p.conns, pc)
	p.mu.Unlock()
	pc.conn.Close()
}

// generatePIN returns a random numeric PIN of the specified length.
func generatePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}
