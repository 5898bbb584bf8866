package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SuperrNaruto/you2down/app/database"
	"github.com/SuperrNaruto/you2down/app/detector"
	"github.com/SuperrNaruto/you2down/app/notify"
	"github.com/SuperrNaruto/you2down/app/sources"
	"github.com/SuperrNaruto/you2down/app/strategy"
)

// Ingestor sweeps configured sources, detects companion references in item
// descriptions and stores new media items atomically with their companion
// rows. A failure in one source never aborts the sweep of the others.
type Ingestor struct {
	itemRepo        database.ItemRepository
	checkpointRepo  database.CheckpointRepository
	resolver        *strategy.Resolver
	configCache     *sources.ConfigCache
	pollers         map[string]sources.Poller
	notifier        notify.Service
	defaultInterval time.Duration
	now             func() time.Time
}

func NewIngestor(
	itemRepo database.ItemRepository,
	checkpointRepo database.CheckpointRepository,
	resolver *strategy.Resolver,
	configCache *sources.ConfigCache,
	pollers []sources.Poller,
	notifier notify.Service,
	defaultInterval time.Duration,
) *Ingestor {
	byKind := make(map[string]sources.Poller, len(pollers))
	for _, poller := range pollers {
		byKind[poller.Kind()] = poller
	}
	return &Ingestor{
		itemRepo:        itemRepo,
		checkpointRepo:  checkpointRepo,
		resolver:        resolver,
		configCache:     configCache,
		pollers:         byKind,
		notifier:        notifier,
		defaultInterval: defaultInterval,
		now:             time.Now,
	}
}

// Sweep polls every source that is due. Per-source failures are logged and
// leave that source's checkpoint untouched so the same window is retried on
// the next sweep.
func (i *Ingestor) Sweep(ctx context.Context) {
	for sourceID, config := range i.configCache.GetConfigs() {
		if err := i.sweepSource(ctx, sourceID, config); err != nil {
			slog.Error("Source sweep failed", "source_id", sourceID, "error", err)
		}
	}
}

func (i *Ingestor) sweepSource(ctx context.Context, sourceID string, config *sources.Config) error {
	poller, ok := i.pollers[config.Kind]
	if !ok {
		return fmt.Errorf("no poller for kind %s", config.Kind)
	}

	if err := i.checkpointRepo.EnsureWithSeed(ctx, sourceID, database.Strategy(config.Strategy)); err != nil {
		return err
	}

	checkpoint, err := i.checkpointRepo.Get(ctx, sourceID)
	if err != nil {
		return err
	}

	now := i.now()
	if !i.due(checkpoint, config, now) {
		return nil
	}

	strat, err := i.resolver.Resolve(ctx, sourceID)
	if err != nil {
		return err
	}

	var since *time.Time
	if checkpoint != nil {
		since = checkpoint.LastCheckedAt
	}

	itemCount := 0
	newItemCount := 0
	for raw, err := range poller.Poll(ctx, sourceID, since) {
		if err != nil {
			// Checkpoint stays put: the same window is re-polled next time.
			return err
		}

		itemCount++
		inserted, err := i.ingestItem(ctx, sourceID, strat, raw)
		if err != nil {
			return err
		}
		if inserted {
			newItemCount++
			i.notifier.NotifyItemDiscovered(ctx, sourceID, raw.Title)
		}
	}

	if err := i.checkpointRepo.UpdateSweep(ctx, sourceID, now, itemCount, newItemCount); err != nil {
		return err
	}

	slog.Info("Source sweep finished", "source_id", sourceID, "items", itemCount, "new_items", newItemCount)
	i.notifier.NotifySweepSummary(ctx, sourceID, itemCount, newItemCount)
	return nil
}

// due applies the per-source check interval, falling back to the global one.
func (i *Ingestor) due(checkpoint *database.SourceCheckpoint, config *sources.Config, now time.Time) bool {
	if checkpoint == nil || checkpoint.LastCheckedAt == nil {
		return true
	}
	interval := i.defaultInterval
	if config.CheckInterval > 0 {
		interval = time.Duration(config.CheckInterval) * time.Second
	}
	return !now.Before(checkpoint.LastCheckedAt.Add(interval))
}

// ingestItem stores one raw item. Returns false when the item already
// exists, which makes overlapping poll windows harmless.
func (i *Ingestor) ingestItem(ctx context.Context, sourceID string, strat database.Strategy, raw sources.RawItem) (bool, error) {
	exists, err := i.itemRepo.Exists(ctx, raw.ID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	refs := detector.Detect(raw.Description)

	item, companions, err := buildItem(sourceID, strat, raw, refs)
	if err != nil {
		return false, err
	}

	if err := i.itemRepo.InsertWithCompanions(ctx, item, companions); err != nil {
		return false, fmt.Errorf("failed to insert item %s: %w", raw.ID, err)
	}
	return true, nil
}

// buildItem realizes the strategy table: the primary and companion states
// are both fixed at ingestion time and evolve independently afterwards.
func buildItem(sourceID string, strat database.Strategy, raw sources.RawItem, refs []detector.Reference) (database.MediaItem, []database.CompanionFile, error) {
	item := database.MediaItem{
		ID:          raw.ID,
		SourceID:    sourceID,
		Title:       raw.Title,
		MediaURL:    raw.URL,
		PublishedAt: raw.PublishedAt,
	}

	var companions []database.CompanionFile

	switch strat {
	case database.StrategyFull:
		item.Status = database.MediaPending
		item.CompanionStatus = aggregateFor(refs)
		companions = companionRows(raw.ID, refs)
	case database.StrategyPrimaryOnly:
		item.Status = database.MediaPending
		item.CompanionStatus = database.CompanionIgnored
	case database.StrategyCompanionOnly:
		item.Status = database.MediaSkippedVideo
		item.CompanionStatus = aggregateFor(refs)
		companions = companionRows(raw.ID, refs)
	default:
		return database.MediaItem{}, nil, fmt.Errorf("%w: %s", ErrInvalidStrategy, strat)
	}

	return item, companions, nil
}

func aggregateFor(refs []detector.Reference) database.CompanionAggregate {
	if len(refs) == 0 {
		return database.CompanionNone
	}
	return database.CompanionDetected
}

func companionRows(mediaItemID string, refs []detector.Reference) []database.CompanionFile {
	companions := make([]database.CompanionFile, 0, len(refs))
	for _, ref := range refs {
		companions = append(companions, database.CompanionFile{
			ID:              database.CompanionID(mediaItemID, ref.ID),
			MediaItemID:     mediaItemID,
			ReferenceType:   string(ref.Type),
			ReferenceID:     ref.ID,
			OriginalLocator: ref.OriginalLocator,
			Status:          database.CompanionFilePending,
		})
	}
	return companions
}
