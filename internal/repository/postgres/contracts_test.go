package postgres

import (
	"github.com/loangraph/reconciler/internal/domain/payment"
)

var _ payment.SnapshotRepository = (*SnapshotRepository)(nil)
