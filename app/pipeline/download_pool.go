package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/SuperrNaruto/you2down/app/database"
	"github.com/SuperrNaruto/you2down/app/fetcher"
	"github.com/SuperrNaruto/you2down/app/notify"
)

// DownloadPool drains pending media items into local artifacts. The durable
// store is the queue: each drain picks due rows, claims them one by one with
// a conditional status transition and processes claims under a concurrency
// bound. Losing a claim race is not an error, another worker owns the row.
type DownloadPool struct {
	itemRepo    database.ItemRepository
	fetcher     fetcher.ArtifactFetcher
	governor    Governor
	notifier    notify.Service
	downloadDir string
	concurrency int
	now         func() time.Time
}

func NewDownloadPool(itemRepo database.ItemRepository, artifactFetcher fetcher.ArtifactFetcher, governor Governor, notifier notify.Service, downloadDir string, concurrency int) *DownloadPool {
	return &DownloadPool{
		itemRepo:    itemRepo,
		fetcher:     artifactFetcher,
		governor:    governor,
		notifier:    notifier,
		downloadDir: downloadDir,
		concurrency: concurrency,
		now:         time.Now,
	}
}

func (p *DownloadPool) Drain(ctx context.Context) {
	items, err := p.itemRepo.PickDue(ctx, database.MediaPending, p.now(), p.concurrency*2)
	if err != nil {
		slog.Error("Failed to pick pending media items", "error", err)
		return
	}

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup

	for _, item := range items {
		claimed, err := p.itemRepo.Claim(ctx, item.ID, database.MediaPending, database.MediaDownloading)
		if err != nil {
			slog.Error("Failed to claim media item", "item_id", item.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(item database.MediaItem) {
			defer wg.Done()
			defer func() { <-sem }()
			p.process(ctx, item)
		}(item)
	}

	wg.Wait()
}

func (p *DownloadPool) process(ctx context.Context, item database.MediaItem) {
	result, err := p.fetcher.Fetch(ctx, item.ID, item.MediaURL, p.downloadDir)
	if err != nil {
		p.handleFailure(ctx, item, err)
		return
	}

	if err := p.itemRepo.MarkDownloaded(ctx, item.ID, result.LocalPath); err != nil {
		slog.Error("Failed to mark media item downloaded", "item_id", item.ID, "error", err)
		return
	}

	slog.Info("Media item downloaded", "item_id", item.ID, "size_bytes", result.SizeBytes)
}

func (p *DownloadPool) handleFailure(ctx context.Context, item database.MediaItem, cause error) {
	decision := p.governor.Decide(item.RetryCount, cause)
	if decision.GiveUp {
		if err := p.itemRepo.MarkFailed(ctx, item.ID, cause.Error()); err != nil {
			slog.Error("Failed to mark media item failed", "item_id", item.ID, "error", err)
			return
		}
		slog.Warn("Media item download failed terminally", "item_id", item.ID, "retry_count", item.RetryCount, "error", cause)
		p.notifier.NotifyItemFailed(ctx, item.ID, item.Title, cause.Error())
		return
	}

	notBefore := p.now().Add(decision.Delay)
	if err := p.itemRepo.RequeueRetry(ctx, item.ID, database.MediaPending, notBefore, cause.Error()); err != nil {
		slog.Error("Failed to requeue media item", "item_id", item.ID, "error", err)
		return
	}
	slog.Warn("Media item download failed, retry scheduled", "item_id", item.ID, "retry_count", item.RetryCount+1, "delay", decision.Delay.String(), "error", cause)
}
