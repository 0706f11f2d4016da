package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/loangraph/reconciler/internal/domain/payment"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "reconcile:snapshot:"

type SnapshotRepository struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewClient(addr, password string, db int) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewSnapshotRepository(client *goredis.Client, ttl time.Duration) *SnapshotRepository {
	return &SnapshotRepository{client: client, ttl: ttl}
}

func (r *SnapshotRepository) Save(ctx context.Context, snap payment.Snapshot) error {
	snap.Groups = payment.Clone(snap.Groups)
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return r.client.Set(ctx, keyPrefix+snap.LenderID, raw, r.ttl).Err()
}

func (r *SnapshotRepository) Load(ctx context.Context, lenderID string) (*payment.Snapshot, error) {
	raw, err := r.client.Get(ctx, keyPrefix+lenderID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, payment.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	var out payment.Snapshot
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &out, nil
}

// Ping lets the readiness probe check the mirror backend.
func (r *SnapshotRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
