package payment

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/crypto/sha3"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is the mirrored copy of the last successful listing for a lender.
type Snapshot struct {
	LenderID    string             `json:"lenderId"`
	Groups      []PendingLoanGroup `json:"groups"`
	Pagination  Pagination         `json:"pagination"`
	FetchedAt   time.Time          `json:"fetchedAt"`
	Fingerprint string             `json:"fingerprint"`
}

type SnapshotRepository interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, lenderID string) (*Snapshot, error)
}

// Fingerprint hashes the listing content so unchanged refetches can be skipped.
func Fingerprint(groups []PendingLoanGroup, p Pagination) string {
	raw, _ := json.Marshal(struct {
		Groups     []PendingLoanGroup `json:"groups"`
		Pagination Pagination         `json:"pagination"`
	}{Groups: groups, Pagination: p})
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(raw)
	return hex.EncodeToString(h.Sum(nil))
}
