package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/SuperrNaruto/you2down/app/database"
)

// Maintenance recovers rows stranded in an in-progress status by a crash or
// a lost worker. It is the only path allowed to move an in-progress row
// backwards, and it also sweeps up items whose completion event was missed.
type Maintenance struct {
	itemRepo      database.ItemRepository
	companionRepo database.CompanionRepository
	staleAfter    time.Duration
	now           func() time.Time
}

func NewMaintenance(itemRepo database.ItemRepository, companionRepo database.CompanionRepository, staleAfter time.Duration) *Maintenance {
	return &Maintenance{
		itemRepo:      itemRepo,
		companionRepo: companionRepo,
		staleAfter:    staleAfter,
		now:           time.Now,
	}
}

func (m *Maintenance) Sweep(ctx context.Context) {
	cutoff := m.now().Add(-m.staleAfter)

	requeued, err := m.itemRepo.RequeueStale(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to requeue stale media items", "error", err)
	} else if requeued > 0 {
		slog.Warn("Requeued stale media items", "count", requeued)
	}

	requeued, err = m.companionRepo.RequeueStale(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to requeue stale companion files", "error", err)
	} else if requeued > 0 {
		slog.Warn("Requeued stale companion files", "count", requeued)
	}

	finalized, err := m.itemRepo.FinalizeEligible(ctx)
	if err != nil {
		slog.Error("Failed to finalize eligible media items", "error", err)
	} else if finalized > 0 {
		slog.Info("Finalized media items", "count", finalized)
	}
}
