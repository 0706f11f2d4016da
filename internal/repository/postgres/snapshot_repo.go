package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/loangraph/reconciler/internal/domain/payment"
)

type SnapshotRepository struct {
	pool *pgxpool.Pool
}

func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

func (r *SnapshotRepository) Save(ctx context.Context, snap payment.Snapshot) error {
	groups, err := json.Marshal(payment.Clone(snap.Groups))
	if err != nil {
		return fmt.Errorf("marshal groups: %w", err)
	}
	pagination, err := json.Marshal(snap.Pagination)
	if err != nil {
		return fmt.Errorf("marshal pagination: %w", err)
	}
	q := `
INSERT INTO reconciliation_snapshots (lender_id, groups, pagination, fingerprint, fetched_at, updated_at)
VALUES ($1, $2::jsonb, $3::jsonb, $4, $5, now())
ON CONFLICT (lender_id) DO UPDATE
SET groups = EXCLUDED.groups,
    pagination = EXCLUDED.pagination,
    fingerprint = EXCLUDED.fingerprint,
    fetched_at = EXCLUDED.fetched_at,
    updated_at = now()
`
	_, err = r.pool.Exec(ctx, q, snap.LenderID, groups, pagination, snap.Fingerprint, snap.FetchedAt)
	return err
}

func (r *SnapshotRepository) Load(ctx context.Context, lenderID string) (*payment.Snapshot, error) {
	q := `SELECT lender_id, groups, pagination, fingerprint, fetched_at FROM reconciliation_snapshots WHERE lender_id = $1`
	out := &payment.Snapshot{}
	var groups, pagination []byte
	err := r.pool.QueryRow(ctx, q, lenderID).Scan(&out.LenderID, &groups, &pagination, &out.Fingerprint, &out.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, payment.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(groups, &out.Groups); err != nil {
		return nil, fmt.Errorf("decode groups: %w", err)
	}
	if err := json.Unmarshal(pagination, &out.Pagination); err != nil {
		return nil, fmt.Errorf("decode pagination: %w", err)
	}
	return out, nil
}

func (r *SnapshotRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
