// Package feed maintains the market-data websocket: connection
// lifecycle, keepalive, subscriptions, and decoding of inbound
// messages into typed events.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/updownlabs/dipcatcher/pkg/hashset"
)

// ErrNotConnected is returned by Send when no connection is live.
var ErrNotConnected = errors.New("feed: not connected")

// ErrStopped is returned by Connect once Stop has been called.
// Stopped is terminal: no later call brings the transport back up.
var ErrStopped = errors.New("feed: transport stopped")

// State is the transport connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	defaultHandshakeTimeout = 30 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultPingInterval     = 50 * time.Second
	defaultReconnectDelay   = 2 * time.Second
)

// TransportConfig configures a Transport. Zero durations fall back to
// the defaults above.
type TransportConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	ReconnectDelay   time.Duration
}

func (c *TransportConfig) fill() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
}

// Transport owns one logical websocket connection. Run reconnects
// after a fixed delay until the transport is stopped; the subscribed
// token set survives reconnects and is replayed on every connect.
type Transport struct {
	cfg TransportConfig
	log *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	desired  hashset.Set[string]
	stopPing chan struct{}

	state atomic.Int32

	onMessage    func([]byte)
	onConnect    func()
	onDisconnect func(error)
	onError      func(error)

	stopped  chan struct{}
	stopOnce sync.Once
}

func NewTransport(cfg TransportConfig, log *slog.Logger) *Transport {
	cfg.fill()
	return &Transport{
		cfg:     cfg,
		log:     log.With("component", "transport"),
		desired: hashset.New[string](),
		stopped: make(chan struct{}),
	}
}

// OnMessage registers the raw-message handler. Register handlers
// before calling Run.
func (t *Transport) OnMessage(fn func([]byte)) { t.onMessage = fn }

// OnConnect runs after a connection is established and the desired
// subscriptions have been replayed.
func (t *Transport) OnConnect(fn func()) { t.onConnect = fn }

// OnDisconnect runs after a connection ends, with its terminal error.
func (t *Transport) OnDisconnect(fn func(error)) { t.onDisconnect = fn }

// OnError receives connect and mid-session failures. They never
// terminate Run on their own.
func (t *Transport) OnError(fn func(error)) { t.onError = fn }

func (t *Transport) State() State {
	return State(t.state.Load())
}

func (t *Transport) setState(s State) {
	t.state.Store(int32(s))
}

// Connect dials the feed, starts the keepalive loop, and replays the
// desired subscription set. Returns ErrStopped once Stop has been
// called, including when Stop lands while the dial is in flight.
func (t *Transport) Connect(ctx context.Context) error {
	if t.isStopped() {
		return ErrStopped
	}
	t.setState(StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, t.cfg.URL, http.Header{})
	if err != nil {
		if t.isStopped() {
			t.setState(StateStopped)
			return ErrStopped
		}
		t.setState(StateDisconnected)
		return err
	}
	status := ""
	if resp != nil {
		status = resp.Status
	}
	t.log.Info("websocket connected", "url", t.cfg.URL, "status", status)

	// Stop may have landed while the dial was in flight, in which case
	// its dropConn saw a nil conn and had nothing to close. The check
	// shares the mutex with dropConn, so a Stop after the store finds
	// the conn and closes it.
	stopPing := make(chan struct{})
	t.mu.Lock()
	if t.isStopped() {
		t.mu.Unlock()
		conn.Close()
		t.setState(StateStopped)
		return ErrStopped
	}
	t.conn = conn
	t.stopPing = stopPing
	t.mu.Unlock()

	// A Stop between the store and here owns the state from now on.
	t.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected))

	go t.pingLoop(conn, stopPing)

	if err := t.resubscribe(); err != nil {
		t.dropConn()
		return err
	}

	if t.onConnect != nil {
		t.onConnect()
	}
	return nil
}

// pingLoop keeps the connection alive independently of traffic.
// Keepalive failure is connection loss, not a fatal error: closing the
// connection breaks the read loop and Run reconnects.
func (t *Transport) pingLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(t.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				t.log.Warn("keepalive failed, dropping connection", "error", err)
				conn.Close()
				return
			}
		}
	}
}

// Subscribe records tokenIDs as the desired subscription state and, if
// connected, sends the subscribe message. With replace set the new
// list supersedes the old one entirely. While disconnected the desired
// state is only recorded and is replayed on the next connect.
func (t *Transport) Subscribe(tokenIDs []string, replace bool) error {
	t.mu.Lock()
	if replace {
		t.desired = hashset.FromSlice(tokenIDs)
	} else {
		for _, id := range tokenIDs {
			t.desired.Add(id)
		}
	}
	connected := t.conn != nil && t.State() == StateConnected
	t.mu.Unlock()

	if !connected {
		return nil
	}
	return t.resubscribe()
}

func (t *Transport) resubscribe() error {
	t.mu.Lock()
	ids := t.desired.AsSlice()
	t.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	dump := true
	return t.Send(Subscription{
		AssetsIDs:   ids,
		Type:        "market",
		InitialDump: &dump,
	})
}

// Send writes one JSON message. Writers are serialized.
func (t *Transport) Send(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return ErrNotConnected
	}
	t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return t.conn.WriteJSON(v)
}

// Disconnect closes the current connection without stopping Run.
func (t *Transport) Disconnect() {
	t.dropConn()
}

func (t *Transport) dropConn() {
	t.mu.Lock()
	conn := t.conn
	stopPing := t.stopPing
	t.conn = nil
	t.stopPing = nil
	t.mu.Unlock()

	if conn == nil {
		return
	}
	close(stopPing)

	deadline := time.Now().Add(t.cfg.WriteTimeout)
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)
	conn.Close()

	if t.State() != StateStopped {
		t.setState(StateDisconnected)
	}
}

// Run connects and serves the stream until Stop or ctx cancellation.
// With autoReconnect, a lost connection is re-established after a
// fixed delay, indefinitely; without it, Run returns after the first
// connection ends.
func (t *Transport) Run(ctx context.Context, autoReconnect bool) error {
	for {
		if t.done(ctx) {
			t.setState(StateStopped)
			return nil
		}

		if err := t.Connect(ctx); err != nil {
			if errors.Is(err, ErrStopped) {
				t.setState(StateStopped)
				return nil
			}
			t.reportError(err)
			if !autoReconnect {
				t.setState(StateStopped)
				return err
			}
			if !t.waitReconnect(ctx) {
				return nil
			}
			continue
		}

		err := t.serve()
		t.dropConn()
		if t.onDisconnect != nil {
			t.onDisconnect(err)
		}
		if err != nil && !t.done(ctx) {
			t.reportError(err)
		}

		if !autoReconnect {
			t.setState(StateStopped)
			return nil
		}
		if !t.waitReconnect(ctx) {
			return nil
		}
	}
}

func (t *Transport) serve() error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if t.onMessage != nil {
			t.onMessage(raw)
		}
	}
}

func (t *Transport) waitReconnect(ctx context.Context) bool {
	t.setState(StateReconnecting)
	select {
	case <-time.After(t.cfg.ReconnectDelay):
		return true
	case <-ctx.Done():
		t.setState(StateStopped)
		return false
	case <-t.stopped:
		t.setState(StateStopped)
		return false
	}
}

func (t *Transport) done(ctx context.Context) bool {
	return t.isStopped() || ctx.Err() != nil
}

func (t *Transport) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

// Stop terminates Run. Safe to call from any state and more than once.
func (t *Transport) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopped)
		t.dropConn()
		t.setState(StateStopped)
	})
}

func (t *Transport) reportError(err error) {
	if t.onError != nil {
		t.onError(err)
	}
}
