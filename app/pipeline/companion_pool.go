package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/SuperrNaruto/you2down/app/database"
	"github.com/SuperrNaruto/you2down/app/fetcher"
	"github.com/SuperrNaruto/you2down/app/notify"
)

// CompanionPool drains pending companion files on its own concurrency
// budget so companion traffic and primary media downloads never starve each
// other. Oversized files fail terminally through the governor's permanent
// classification of size errors.
type CompanionPool struct {
	companionRepo database.CompanionRepository
	itemRepo      database.ItemRepository
	fetcher       fetcher.ArtifactFetcher
	governor      Governor
	notifier      notify.Service
	downloadDir   string
	concurrency   int
	now           func() time.Time
}

func NewCompanionPool(companionRepo database.CompanionRepository, itemRepo database.ItemRepository, artifactFetcher fetcher.ArtifactFetcher, governor Governor, notifier notify.Service, downloadDir string, concurrency int) *CompanionPool {
	return &CompanionPool{
		companionRepo: companionRepo,
		itemRepo:      itemRepo,
		fetcher:       artifactFetcher,
		governor:      governor,
		notifier:      notifier,
		downloadDir:   downloadDir,
		concurrency:   concurrency,
		now:           time.Now,
	}
}

func (p *CompanionPool) Drain(ctx context.Context) {
	companions, err := p.companionRepo.PickDue(ctx, p.now(), p.concurrency*2)
	if err != nil {
		slog.Error("Failed to pick pending companion files", "error", err)
		return
	}

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup

	for _, companion := range companions {
		claimed, err := p.companionRepo.Claim(ctx, companion.ID, database.CompanionFilePending, database.CompanionFileDownloading)
		if err != nil {
			slog.Error("Failed to claim companion file", "companion_id", companion.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		if err := p.itemRepo.RefreshCompanionAggregate(ctx, companion.MediaItemID); err != nil {
			slog.Error("Failed to refresh companion aggregate", "item_id", companion.MediaItemID, "error", err)
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(companion database.CompanionFile) {
			defer wg.Done()
			defer func() { <-sem }()
			p.process(ctx, companion)
		}(companion)
	}

	wg.Wait()
}

func (p *CompanionPool) process(ctx context.Context, companion database.CompanionFile) {
	destDir := filepath.Join(p.downloadDir, companion.MediaItemID)
	result, err := p.fetcher.Fetch(ctx, companion.ReferenceID, companion.OriginalLocator, destDir)
	if err != nil {
		p.handleFailure(ctx, companion, err)
		return
	}

	if err := p.companionRepo.MarkCompleted(ctx, companion.ID, result.LocalPath, result.SizeBytes); err != nil {
		slog.Error("Failed to mark companion file completed", "companion_id", companion.ID, "error", err)
		return
	}
	p.refreshParent(ctx, companion.MediaItemID)

	slog.Info("Companion file downloaded", "companion_id", companion.ID, "size_bytes", result.SizeBytes)
}

func (p *CompanionPool) handleFailure(ctx context.Context, companion database.CompanionFile, cause error) {
	decision := p.governor.Decide(companion.RetryCount, cause)
	if decision.GiveUp {
		if err := p.companionRepo.MarkFailed(ctx, companion.ID, cause.Error()); err != nil {
			slog.Error("Failed to mark companion file failed", "companion_id", companion.ID, "error", err)
			return
		}
		slog.Warn("Companion file download failed terminally", "companion_id", companion.ID, "retry_count", companion.RetryCount, "error", cause)
		p.refreshParent(ctx, companion.MediaItemID)
		// A terminal companion may have been the last thing holding the
		// parent open.
		p.finalizeParent(ctx, companion.MediaItemID)
		return
	}

	notBefore := p.now().Add(decision.Delay)
	if err := p.companionRepo.RequeueRetry(ctx, companion.ID, notBefore, cause.Error()); err != nil {
		slog.Error("Failed to requeue companion file", "companion_id", companion.ID, "error", err)
		return
	}
	slog.Warn("Companion file download failed, retry scheduled", "companion_id", companion.ID, "retry_count", companion.RetryCount+1, "delay", decision.Delay.String(), "error", cause)
}

func (p *CompanionPool) refreshParent(ctx context.Context, mediaItemID string) {
	if err := p.itemRepo.RefreshCompanionAggregate(ctx, mediaItemID); err != nil {
		slog.Error("Failed to refresh companion aggregate", "item_id", mediaItemID, "error", err)
	}
}

func (p *CompanionPool) finalizeParent(ctx context.Context, mediaItemID string) {
	completed, err := p.itemRepo.FinalizeIfComplete(ctx, mediaItemID)
	if err != nil {
		slog.Error("Failed to finalize media item", "item_id", mediaItemID, "error", err)
		return
	}
	if completed {
		slog.Info("Media item completed", "item_id", mediaItemID)
	}
}
