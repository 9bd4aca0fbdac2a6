package market

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/updownlabs/dipcatcher/internal/book"
	"github.com/updownlabs/dipcatcher/internal/feed"
	"github.com/updownlabs/dipcatcher/internal/metrics"
	"github.com/updownlabs/dipcatcher/internal/price"
)

const defaultPollInterval = 100 * time.Millisecond

// SessionConfig configures one market-data session.
type SessionConfig struct {
	Asset          string // window slug prefix, e.g. "btc-updown-15m-"
	WebsocketURL   string // market channel endpoint
	PingInterval   time.Duration
	ReconnectDelay time.Duration
	PollInterval   time.Duration // WaitForData poll cadence
}

// Session composes the transport, the book store and the window
// resolver into a running market-data session for one window's token
// pair. It owns both for its lifetime.
//
// A session does not re-resolve when its window expires. Rollover is
// the caller's job: stop the session and start a new one.
type Session struct {
	cfg      SessionConfig
	log      *slog.Logger
	resolver *Resolver
	books    *book.Store

	mu                  sync.Mutex
	transport           *feed.Transport
	meta                *Metadata
	lastTrade           map[string]price.Price
	bookListeners       []func(book.Snapshot)
	connectListeners    []func()
	disconnectListeners []func(error)
	marketListeners     []func(*Metadata)
	started             bool

	cancel   context.CancelFunc
	stopOnce sync.Once
}

func NewSession(cfg SessionConfig, resolver *Resolver, log *slog.Logger) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Session{
		cfg:       cfg,
		log:       log.With("component", "session"),
		resolver:  resolver,
		books:     book.NewStore(),
		lastTrade: make(map[string]price.Price),
	}
}

// OnBookUpdate registers a book listener. Listeners run synchronously
// on the receive path: they must be fast, must not block, and must not
// call back into the session to mutate state.
func (s *Session) OnBookUpdate(fn func(book.Snapshot)) {
	s.mu.Lock()
	s.bookListeners = append(s.bookListeners, fn)
	s.mu.Unlock()
}

func (s *Session) OnConnect(fn func()) {
	s.mu.Lock()
	s.connectListeners = append(s.connectListeners, fn)
	s.mu.Unlock()
}

func (s *Session) OnDisconnect(fn func(error)) {
	s.mu.Lock()
	s.disconnectListeners = append(s.disconnectListeners, fn)
	s.mu.Unlock()
}

// OnMarketChange fires once per session, when the window resolves.
func (s *Session) OnMarketChange(fn func(*Metadata)) {
	s.mu.Lock()
	s.marketListeners = append(s.marketListeners, fn)
	s.mu.Unlock()
}

// Start resolves the current window and begins streaming its pair in
// the background. When no tradable window exists it fails without
// starting a transport.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	s.mu.Unlock()

	meta, err := s.resolver.ResolveCurrent(s.cfg.Asset)
	if err != nil {
		return fmt.Errorf("couldn't resolve window for %s: %w", s.cfg.Asset, err)
	}
	s.log.Info("window resolved",
		"slug", meta.Slug,
		"ends", meta.EndTime,
		"tokens", len(meta.Tokens))

	transport := feed.NewTransport(feed.TransportConfig{
		URL:            s.cfg.WebsocketURL,
		PingInterval:   s.cfg.PingInterval,
		ReconnectDelay: s.cfg.ReconnectDelay,
	}, s.log)
	transport.OnMessage(s.handleMessage)
	transport.OnConnect(func() {
		metrics.Connects.Inc()
		s.fanConnect()
	})
	transport.OnDisconnect(func(err error) {
		metrics.Disconnects.Inc()
		s.fanDisconnect(err)
	})
	transport.OnError(func(err error) {
		s.log.Warn("transport error", "error", err)
	})

	if err := transport.Subscribe(meta.TokenIDs(), true); err != nil {
		return fmt.Errorf("couldn't subscribe: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.meta = meta
	s.transport = transport
	s.cancel = cancel
	s.started = true
	s.mu.Unlock()

	s.fanMarket(meta)

	go func() {
		if err := transport.Run(runCtx, true); err != nil {
			s.log.Error("transport run ended", "error", err)
		}
	}()
	return nil
}

// Stop terminates the background receive loop and releases the
// transport. Safe to call multiple times.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		transport := s.transport
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if transport != nil {
			transport.Stop()
		}
		s.log.Info("session stopped")
	})
}

// Window returns the resolved window metadata, nil before Start.
func (s *Session) Window() *Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// Books exposes read access to the session's book store.
func (s *Session) Books() *book.Store {
	return s.books
}

// Orderbook returns the current snapshot for a side ("up"/"down").
func (s *Session) Orderbook(side string) (book.Snapshot, bool) {
	s.mu.Lock()
	meta := s.meta
	s.mu.Unlock()
	if meta == nil {
		return book.Snapshot{}, false
	}
	tokenID, ok := meta.Tokens[side]
	if !ok {
		return book.Snapshot{}, false
	}
	return s.books.Get(tokenID)
}

// LastTrade returns the most recent trade price seen for a side.
func (s *Session) LastTrade(side string) (price.Price, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta == nil {
		return 0, false
	}
	tokenID, ok := s.meta.Tokens[side]
	if !ok {
		return 0, false
	}
	p, ok := s.lastTrade[tokenID]
	return p, ok
}

// WaitForData blocks, polling at a fixed short interval, until at
// least one side has a book or the timeout elapses.
func (s *Session) WaitForData(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if s.hasData() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(s.cfg.PollInterval)
	}
}

func (s *Session) hasData() bool {
	s.mu.Lock()
	meta := s.meta
	s.mu.Unlock()
	if meta == nil {
		return false
	}
	for _, tokenID := range meta.Tokens {
		if _, ok := s.books.Get(tokenID); ok {
			return true
		}
	}
	return false
}

// handleMessage is the single decode-and-apply path: the only writer
// to the book store and the last-trade map.
func (s *Session) handleMessage(raw []byte) {
	events, errs := feed.DecodeAll(raw)
	for _, err := range errs {
		metrics.DecodeErrors.Inc()
		s.log.Warn("dropping message", "error", err)
	}

	for _, ev := range events {
		metrics.MessagesTotal.WithLabelValues(ev.Kind()).Inc()
		switch ev := ev.(type) {
		case *feed.BookEvent:
			snap := book.FromBook(ev, time.Now())
			s.books.Apply(snap)
			s.fanBook(snap)
		case *feed.PriceChangeEvent:
			s.applyPriceChange(ev)
		case *feed.TradeEvent:
			s.mu.Lock()
			s.lastTrade[ev.AssetID] = ev.Price
			s.mu.Unlock()
		}
	}
}

func (s *Session) applyPriceChange(ev *feed.PriceChangeEvent) {
	for _, change := range ev.Changes {
		prev, ok := s.books.Get(change.AssetID)
		if !ok {
			// No book yet for this token; wait for the snapshot.
			continue
		}
		next := prev.WithBestPrices(change.BestBid, change.BestAsk, ev.Timestamp)
		s.books.Apply(next)
		s.fanBook(next)
	}
}

func (s *Session) fanBook(snap book.Snapshot) {
	s.mu.Lock()
	listeners := slices.Clone(s.bookListeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		s.dispatch(func() { fn(snap) })
	}
}

func (s *Session) fanConnect() {
	s.mu.Lock()
	listeners := slices.Clone(s.connectListeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		s.dispatch(fn)
	}
}

func (s *Session) fanDisconnect(err error) {
	s.mu.Lock()
	listeners := slices.Clone(s.disconnectListeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		s.dispatch(func() { fn(err) })
	}
}

func (s *Session) fanMarket(meta *Metadata) {
	s.mu.Lock()
	listeners := slices.Clone(s.marketListeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		s.dispatch(func() { fn(meta) })
	}
}

// dispatch isolates listener failures: one bad listener must not stop
// the others, nor disturb session state.
func (s *Session) dispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("listener panicked", "panic", r)
		}
	}()
	fn()
}
