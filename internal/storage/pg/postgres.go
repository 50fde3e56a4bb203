package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/pvzzle/buywatch/internal/storage"

	"github.com/ccoveille/go-safecast"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Postgres { return &Postgres{pool: pool} }

func (r *Postgres) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS purchases (
  hash TEXT PRIMARY KEY,
  chain_id TEXT NOT NULL,
  block_number BIGINT NOT NULL,
  from_addr TEXT NOT NULL,
  to_addr   TEXT NOT NULL,
  value_wei NUMERIC(78,0) NOT NULL,
  message_id UUID NOT NULL,
  first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS deliveries (
  message_id UUID PRIMARY KEY,
  kind TEXT NOT NULL, -- alert|reminder
  tx_hash TEXT NULL,
  status TEXT NOT NULL, -- sent|dropped
  error TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS deliveries_created_idx ON deliveries(created_at DESC);
`
	_, err := r.pool.Exec(ctx, ddl)
	return err
}

func (r *Postgres) UpsertPurchase(ctx context.Context, p storage.PurchaseRecord) error {
	blockNum, err := safecast.ToInt64(p.BlockNum)
	if err != nil {
		return fmt.Errorf("block number: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	q := `
INSERT INTO purchases(hash, chain_id, block_number, from_addr, to_addr, value_wei, message_id)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)
ON CONFLICT(hash) DO UPDATE SET
  block_number = EXCLUDED.block_number,
  message_id   = EXCLUDED.message_id,
  updated_at   = now()
`
	_, err = r.pool.Exec(cctx, q,
		p.Hash, p.ChainID, blockNum, p.FromAddr, p.ToAddr, p.ValueWei, p.MessageID,
	)
	return err
}

func (r *Postgres) AddDelivery(ctx context.Context, d storage.DeliveryRecord) error {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	at := d.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := r.pool.Exec(cctx,
		`INSERT INTO deliveries(message_id, kind, tx_hash, status, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (message_id) DO UPDATE SET status = EXCLUDED.status, error = EXCLUDED.error`,
		d.MessageID, d.Kind, d.TxHash, string(d.Status), d.Error, at,
	)
	return err
}

// CountDeliveries counts journal rows with the given status.
func (r *Postgres) CountDeliveries(ctx context.Context, status storage.DeliveryStatus) (int, error) {
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var n int
	err := r.pool.QueryRow(cctx, `SELECT count(*) FROM deliveries WHERE status = $1`, string(status)).Scan(&n)
	return n, err
}

func (r *Postgres) String() string { return fmt.Sprintf("pgrepo(%p)", r.pool) }
