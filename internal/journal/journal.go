package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS detections (
	time        TIMESTAMPTZ NOT NULL,
	side        TEXT        NOT NULL,
	token_id    TEXT        NOT NULL,
	current     BIGINT      NOT NULL,
	reference   BIGINT      NOT NULL,
	drop        BIGINT      NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS orders (
	time            TIMESTAMPTZ NOT NULL,
	client_order_id TEXT        NOT NULL,
	token_id        TEXT        NOT NULL,
	side            TEXT        NOT NULL,
	price           BIGINT      NOT NULL,
	size            DOUBLE PRECISION NOT NULL,
	status          TEXT        NOT NULL,
	order_id        TEXT        NOT NULL DEFAULT '',
	recorded_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Detection is one fired drop signal. Prices are fixed-point int64
// (price.Scale units).
type Detection struct {
	Time      time.Time
	Side      string
	TokenID   string
	Current   int64
	Reference int64
	Drop      int64
}

// Order is one submission attempt and its outcome.
type Order struct {
	Time          time.Time
	ClientOrderID string
	TokenID       string
	Side          string
	Price         int64
	Size          float64
	Status        string // submitted, rejected, error
	OrderID       string
}

// Journal writes strategy activity to Postgres.
type Journal struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

// EnsureSchema creates the journal tables when they do not exist.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("couldn't create journal schema: %w", err)
	}
	return nil
}

func (j *Journal) RecordDetection(ctx context.Context, d Detection) error {
	_, err := j.pool.Exec(ctx,
		`INSERT INTO detections (time, side, token_id, current, reference, drop)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.Time, d.Side, d.TokenID, d.Current, d.Reference, d.Drop,
	)
	if err != nil {
		return fmt.Errorf("couldn't insert detection: %w", err)
	}
	return nil
}

func (j *Journal) RecordOrder(ctx context.Context, o Order) error {
	_, err := j.pool.Exec(ctx,
		`INSERT INTO orders (time, client_order_id, token_id, side, price, size, status, order_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.Time, o.ClientOrderID, o.TokenID, o.Side, o.Price, o.Size, o.Status, o.OrderID,
	)
	if err != nil {
		return fmt.Errorf("couldn't insert order: %w", err)
	}
	return nil
}
