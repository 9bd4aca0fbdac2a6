// Package strategy implements the flash-drop signal: watch each side's
// price history and buy into sudden drops that exceed a threshold
// within a short lookback.
package strategy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/updownlabs/dipcatcher/internal/book"
	"github.com/updownlabs/dipcatcher/internal/gateway"
	"github.com/updownlabs/dipcatcher/internal/journal"
	"github.com/updownlabs/dipcatcher/internal/market"
	"github.com/updownlabs/dipcatcher/internal/metrics"
	"github.com/updownlabs/dipcatcher/internal/price"
)

// maxLimitPrice caps the limit price just under the 1.0 ceiling.
const maxLimitPrice = price.Price(999_000)

// Config holds the strategy knobs.
type Config struct {
	Lookback     time.Duration // reference-price search window
	Threshold    price.Price   // minimum drop to fire
	Notional     float64       // order value in USD
	Slippage     price.Price   // limit price allowance above current
	Cooldown     time.Duration // per-side re-fire suppression; 0 disables
	TickInterval time.Duration
	WarmupWait   time.Duration // initial WaitForData timeout
	ResolveRetry time.Duration // delay before retrying a failed window resolution
}

func (c *Config) fill() {
	if c.Lookback <= 0 {
		c.Lookback = 10 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	if c.WarmupWait <= 0 {
		c.WarmupWait = 10 * time.Second
	}
	if c.ResolveRetry <= 0 {
		c.ResolveRetry = 15 * time.Second
	}
}

// Detection is one fired drop signal, ready to act on.
type Detection struct {
	Time      time.Time
	Side      string
	TokenID   string
	Current   price.Price
	Reference price.Price
	Drop      price.Price
	Limit     price.Price
	Size      float64
}

// marketSession is the slice of market.Session the strategy drives.
type marketSession interface {
	OnBookUpdate(func(book.Snapshot))
	Start(ctx context.Context) error
	Stop()
	Window() *market.Metadata
	WaitForData(timeout time.Duration) bool
}

// Strategy runs flash-drop detection over consecutive trading windows.
// It owns its price histories and holds only read access to session
// book state.
type Strategy struct {
	cfg     Config
	log     *slog.Logger
	gateway gateway.OrderGateway
	journal *journal.Journal // optional

	newSession func() marketSession

	mu       sync.Mutex
	tokens   map[string]string // side -> token ID for the active window
	hist     map[string]*history
	lastFire map[string]time.Time
}

func New(cfg Config, scfg market.SessionConfig, resolver *market.Resolver, gw gateway.OrderGateway, j *journal.Journal, log *slog.Logger) *Strategy {
	cfg.fill()
	s := &Strategy{
		cfg:     cfg,
		log:     log.With("component", "strategy"),
		gateway: gw,
		journal: j,
		hist: map[string]*history{
			market.SideUp:   newHistory(),
			market.SideDown: newHistory(),
		},
		lastFire: make(map[string]time.Time),
	}
	s.newSession = func() marketSession {
		return market.NewSession(scfg, resolver, log)
	}
	return s
}

// Run drives one session per trading window until ctx is cancelled.
// When the active window expires the session is stopped and the next
// window resolved; when no window resolves, Run waits and retries.
func (s *Strategy) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.runWindow(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("couldn't run window, retrying", "error", err)
			select {
			case <-time.After(s.cfg.ResolveRetry):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *Strategy) runWindow(ctx context.Context) error {
	sess := s.newSession()
	sess.OnBookUpdate(s.observe)

	if err := sess.Start(ctx); err != nil {
		return err
	}
	defer sess.Stop()

	meta := sess.Window()
	s.beginCycle(meta)

	if !sess.WaitForData(s.cfg.WarmupWait) {
		s.log.Warn("no market data before warmup timeout", "slug", meta.Slug)
	}

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if meta.Expired(now) {
				s.log.Info("window expired, rolling over", "slug", meta.Slug)
				return nil
			}
			s.tick(ctx, now)
		}
	}
}

// beginCycle rebinds the side/token mapping and clears per-window
// state. Samples from an expired window's tokens must not feed the
// next window's rule.
func (s *Strategy) beginCycle(meta *market.Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = make(map[string]string, len(meta.Tokens))
	for side, tokenID := range meta.Tokens {
		s.tokens[side] = tokenID
	}
	for _, h := range s.hist {
		h.reset()
	}
	clear(s.lastFire)
}

// observe appends the snapshot's mid price to the owning side's
// history. It runs on the session's receive path.
func (s *Strategy) observe(snap book.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for side, tokenID := range s.tokens {
		if tokenID != snap.TokenID {
			continue
		}
		if h, ok := s.hist[side]; ok {
			h.push(Sample{Time: time.Now(), Price: snap.Mid})
		}
		return
	}
}

func (s *Strategy) tick(ctx context.Context, now time.Time) {
	for _, side := range []string{market.SideUp, market.SideDown} {
		if det := s.evaluate(side, now); det != nil {
			s.act(ctx, det)
		}
	}
}

// evaluate applies the drop rule for one side. The cooldown decides
// the re-fire policy: while a depressed price stays inside the
// lookback the raw rule would fire on every tick, so a fresh fire
// starts a suppression window. Cooldown 0 keeps the raw behavior.
func (s *Strategy) evaluate(side string, now time.Time) *Detection {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hist[side]
	if !ok {
		return nil
	}
	current, reference, ok := h.evaluate(now, s.cfg.Lookback)
	if !ok {
		return nil
	}

	drop := reference - current
	if drop < s.cfg.Threshold {
		return nil
	}

	if s.cfg.Cooldown > 0 {
		if last, fired := s.lastFire[side]; fired && now.Sub(last) < s.cfg.Cooldown {
			return nil
		}
	}

	tokenID, ok := s.tokens[side]
	if !ok || current <= 0 {
		return nil
	}
	s.lastFire[side] = now

	limit := current + s.cfg.Slippage
	if limit > maxLimitPrice {
		limit = maxLimitPrice
	}

	return &Detection{
		Time:      now,
		Side:      side,
		TokenID:   tokenID,
		Current:   current,
		Reference: reference,
		Drop:      drop,
		Limit:     limit,
		Size:      s.cfg.Notional / current.Float64(),
	}
}

// act submits the buy order for a detection. Gateway failures are
// informational; the same order is never retried.
func (s *Strategy) act(ctx context.Context, det *Detection) {
	metrics.Detections.WithLabelValues(det.Side).Inc()
	s.log.Info("drop detected",
		"side", det.Side,
		"reference", det.Reference.String(),
		"current", det.Current.String(),
		"drop", det.Drop.String(),
		"limit", det.Limit.String(),
		"size", det.Size)

	order := gateway.Order{
		ClientOrderID: uuid.NewString(),
		TokenID:       det.TokenID,
		Side:          gateway.Buy,
		Price:         det.Limit,
		Size:          det.Size,
	}

	result := "ok"
	res, err := s.gateway.Submit(ctx, order)
	switch {
	case err != nil:
		result = "error"
		s.log.Warn("order submission failed", "side", det.Side, "error", err)
	case !res.Success:
		result = "rejected"
		s.log.Warn("order rejected", "side", det.Side, "message", res.Message)
	default:
		s.log.Info("order submitted", "side", det.Side, "order_id", res.OrderID)
	}
	metrics.OrdersTotal.WithLabelValues(det.Side, result).Inc()

	s.record(ctx, det, order, res, err)
}

// record journals the detection and order, best effort.
func (s *Strategy) record(ctx context.Context, det *Detection, order gateway.Order, res gateway.Result, submitErr error) {
	if s.journal == nil {
		return
	}
	recCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.journal.RecordDetection(recCtx, journal.Detection{
		Time:      det.Time,
		Side:      det.Side,
		TokenID:   det.TokenID,
		Current:   int64(det.Current),
		Reference: int64(det.Reference),
		Drop:      int64(det.Drop),
	}); err != nil {
		s.log.Warn("couldn't journal detection", "error", err)
	}

	status := "submitted"
	if submitErr != nil {
		status = "error"
	} else if !res.Success {
		status = "rejected"
	}
	if err := s.journal.RecordOrder(recCtx, journal.Order{
		Time:          det.Time,
		ClientOrderID: order.ClientOrderID,
		TokenID:       order.TokenID,
		Side:          string(order.Side),
		Price:         int64(order.Price),
		Size:          order.Size,
		Status:        status,
		OrderID:       res.OrderID,
	}); err != nil {
		s.log.Warn("couldn't journal order", "error", err)
	}
}
