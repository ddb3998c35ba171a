package reminder

import (
	"context"
	"time"

	"medicare-scheduler/internal/models"
)

// ClaimStore performs the conditional claim write.
type ClaimStore interface {
	ClaimReminder(ctx context.Context, appointmentID, offsetKey string, at time.Time) (bool, error)
}

// Gate grants at most one dispatch per (appointment, offset).
type Gate struct {
	store ClaimStore
}

func NewGate(store ClaimStore) *Gate {
	return &Gate{store: store}
}

// Claim reports true only for the caller that flipped the flag. An error means
// the claim did not persist and nothing may be sent.
func (g *Gate) Claim(ctx context.Context, appointmentID string, offset models.Offset, at time.Time) (bool, error) {
	return g.store.ClaimReminder(ctx, appointmentID, offset.Key, at)
}
