// Package gateway defines the order-submission boundary. The trading
// core only writes to the outside world through an OrderGateway.
package gateway

import (
	"context"
	"log/slog"

	"github.com/updownlabs/dipcatcher/internal/price"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Order is a limit order request.
type Order struct {
	ClientOrderID string
	TokenID       string
	Side          Side
	Price         price.Price
	Size          float64 // instrument units
}

// Result reports the outcome of one submission. A failed result is
// informational; the core never retries the same order automatically.
type Result struct {
	Success bool
	OrderID string
	Message string
}

// OrderGateway submits orders to the exchange. Implementations handle
// signing and REST retry behavior; the core treats them as opaque.
type OrderGateway interface {
	Submit(ctx context.Context, order Order) (Result, error)
}

// LogGateway records submissions to the log and reports success. It
// stands in for a real CLOB client in dry runs and tests.
type LogGateway struct {
	log *slog.Logger
}

func NewLogGateway(log *slog.Logger) *LogGateway {
	return &LogGateway{log: log.With("component", "gateway")}
}

func (g *LogGateway) Submit(_ context.Context, order Order) (Result, error) {
	g.log.Info("submit order (dry run)",
		"client_order_id", order.ClientOrderID,
		"token", order.TokenID,
		"side", order.Side,
		"price", order.Price.String(),
		"size", order.Size)
	return Result{Success: true, OrderID: order.ClientOrderID}, nil
}
