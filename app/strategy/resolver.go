// Package strategy resolves the effective processing strategy for a source.
//
// Precedence is: runtime override, then configured seed, then "full". The
// configured value only seeds the checkpoint row; once an operator sets a
// strategy at runtime the stored value wins until changed again.
package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/SuperrNaruto/you2down/app/database"
	"github.com/SuperrNaruto/you2down/app/sources"
)

// ErrInvalidStrategy is returned for strategy names outside the known set.
var ErrInvalidStrategy = errors.New("invalid strategy")

type Resolver struct {
	checkpointRepo database.CheckpointRepository
	configCache    *sources.ConfigCache
}

func NewResolver(checkpointRepo database.CheckpointRepository, configCache *sources.ConfigCache) *Resolver {
	return &Resolver{
		checkpointRepo: checkpointRepo,
		configCache:    configCache,
	}
}

// Resolve returns the strategy in effect for a source.
func (r *Resolver) Resolve(ctx context.Context, sourceID string) (database.Strategy, error) {
	checkpoint, err := r.checkpointRepo.Get(ctx, sourceID)
	if err != nil {
		return "", fmt.Errorf("failed to load checkpoint for source %s: %w", sourceID, err)
	}

	if checkpoint != nil && database.ValidStrategy(checkpoint.Strategy) {
		return checkpoint.Strategy, nil
	}

	if config, err := r.configCache.GetConfig(sourceID); err == nil {
		seed := database.Strategy(config.Strategy)
		if database.ValidStrategy(seed) {
			return seed, nil
		}
	}

	return database.StrategyFull, nil
}

// SetStrategy validates and persists a runtime override. The write is
// synchronous: once this returns, the next ingest sweep observes the new
// strategy.
func (r *Resolver) SetStrategy(ctx context.Context, sourceID string, strategy database.Strategy) error {
	if !database.ValidStrategy(strategy) {
		return fmt.Errorf("%w: %s", ErrInvalidStrategy, strategy)
	}

	if err := r.checkpointRepo.SetStrategy(ctx, sourceID, strategy); err != nil {
		return fmt.Errorf("failed to persist strategy for source %s: %w", sourceID, err)
	}
	return nil
}

// List returns all checkpoints, the source inventory the control API shows.
func (r *Resolver) List(ctx context.Context) ([]database.SourceCheckpoint, error) {
	return r.checkpointRepo.List(ctx)
}
