package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/SuperrNaruto/you2down/app/database"
	"github.com/SuperrNaruto/you2down/app/notify"
	"github.com/SuperrNaruto/you2down/app/storage"
)

// UploadStage pushes downloaded artifacts to remote storage and advances
// terminal state. Primary and companion uploads ride the same concurrency
// budget here, decoupled from the download pools so a slow destination only
// delays uploads, never new downloads.
//
// Companion rows have no uploading status; exclusive ownership is a
// conditional claim timestamp instead, released on failure or by the
// maintenance sweep after a crash.
type UploadStage struct {
	itemRepo      database.ItemRepository
	companionRepo database.CompanionRepository
	uploader      storage.Uploader
	governor      Governor
	notifier      notify.Service
	remoteBase    string
	concurrency   int
	now           func() time.Time
}

func NewUploadStage(itemRepo database.ItemRepository, companionRepo database.CompanionRepository, uploader storage.Uploader, governor Governor, notifier notify.Service, remoteBase string, concurrency int) *UploadStage {
	return &UploadStage{
		itemRepo:      itemRepo,
		companionRepo: companionRepo,
		uploader:      uploader,
		governor:      governor,
		notifier:      notifier,
		remoteBase:    remoteBase,
		concurrency:   concurrency,
		now:           time.Now,
	}
}

func (s *UploadStage) Drain(ctx context.Context) {
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	s.drainItems(ctx, sem, &wg)
	s.drainCompanions(ctx, sem, &wg)

	wg.Wait()
}

func (s *UploadStage) drainItems(ctx context.Context, sem chan struct{}, wg *sync.WaitGroup) {
	items, err := s.itemRepo.PickDue(ctx, database.MediaDownloaded, s.now(), s.concurrency*2)
	if err != nil {
		slog.Error("Failed to pick downloaded media items", "error", err)
		return
	}

	for _, item := range items {
		claimed, err := s.itemRepo.Claim(ctx, item.ID, database.MediaDownloaded, database.MediaUploading)
		if err != nil {
			slog.Error("Failed to claim media item for upload", "item_id", item.ID, "error", err)
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
			s.uploadItem(ctx, item)
		}(item)
	}
}

func (s *UploadStage) uploadItem(ctx context.Context, item database.MediaItem) {
	remotePath := path.Join(s.remoteBase, item.SourceID, filepath.Base(item.LocalPath))

	if err := s.uploader.Upload(ctx, item.LocalPath, remotePath); err != nil {
		s.handleItemFailure(ctx, item, err)
		return
	}

	if err := os.Remove(item.LocalPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove local artifact", "item_id", item.ID, "path", item.LocalPath, "error", err)
	}
	if err := s.itemRepo.ClearLocalPath(ctx, item.ID); err != nil {
		slog.Error("Failed to clear local path", "item_id", item.ID, "error", err)
		return
	}

	slog.Info("Media item uploaded", "item_id", item.ID, "remote_path", remotePath)
	s.notifier.NotifyUploadCompleted(ctx, item.ID, remotePath)
	s.finalize(ctx, item.ID, item.Title)
}

func (s *UploadStage) handleItemFailure(ctx context.Context, item database.MediaItem, cause error) {
	decision := s.governor.Decide(item.RetryCount, cause)
	if decision.GiveUp {
		// The local artifact is kept for a manual retry.
		if err := s.itemRepo.MarkFailed(ctx, item.ID, cause.Error()); err != nil {
			slog.Error("Failed to mark media item failed", "item_id", item.ID, "error", err)
			return
		}
		slog.Warn("Media item upload failed terminally", "item_id", item.ID, "retry_count", item.RetryCount, "error", cause)
		s.notifier.NotifyItemFailed(ctx, item.ID, item.Title, cause.Error())
		return
	}

	notBefore := s.now().Add(decision.Delay)
	if err := s.itemRepo.RequeueRetry(ctx, item.ID, database.MediaDownloaded, notBefore, cause.Error()); err != nil {
		slog.Error("Failed to requeue media item upload", "item_id", item.ID, "error", err)
		return
	}
	slog.Warn("Media item upload failed, retry scheduled", "item_id", item.ID, "retry_count", item.RetryCount+1, "delay", decision.Delay.String(), "error", cause)
}

func (s *UploadStage) drainCompanions(ctx context.Context, sem chan struct{}, wg *sync.WaitGroup) {
	companions, err := s.companionRepo.PickUploadable(ctx, s.now(), s.concurrency*2)
	if err != nil {
		slog.Error("Failed to pick uploadable companion files", "error", err)
		return
	}

	for _, companion := range companions {
		claimed, err := s.companionRepo.ClaimUpload(ctx, companion.ID, s.now())
		if err != nil {
			slog.Error("Failed to claim companion upload", "companion_id", companion.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(companion database.CompanionFile) {
			defer wg.Done()
			defer func() { <-sem }()
			s.uploadCompanion(ctx, companion)
		}(companion)
	}
}

func (s *UploadStage) uploadCompanion(ctx context.Context, companion database.CompanionFile) {
	remotePath := path.Join(s.remoteBase, companion.MediaItemID, filepath.Base(companion.LocalPath))

	if err := s.uploader.Upload(ctx, companion.LocalPath, remotePath); err != nil {
		s.handleCompanionFailure(ctx, companion, err)
		return
	}

	if err := os.Remove(companion.LocalPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove local artifact", "companion_id", companion.ID, "path", companion.LocalPath, "error", err)
	}
	if err := s.companionRepo.MarkUploaded(ctx, companion.ID); err != nil {
		slog.Error("Failed to mark companion file uploaded", "companion_id", companion.ID, "error", err)
		return
	}

	slog.Info("Companion file uploaded", "companion_id", companion.ID, "remote_path", remotePath)
	s.notifier.NotifyUploadCompleted(ctx, companion.ID, remotePath)
	s.finalize(ctx, companion.MediaItemID, "")
}

func (s *UploadStage) handleCompanionFailure(ctx context.Context, companion database.CompanionFile, cause error) {
	decision := s.governor.Decide(companion.RetryCount, cause)
	if decision.GiveUp {
		if err := s.companionRepo.MarkFailed(ctx, companion.ID, cause.Error()); err != nil {
			slog.Error("Failed to mark companion file failed", "companion_id", companion.ID, "error", err)
			return
		}
		slog.Warn("Companion upload failed terminally", "companion_id", companion.ID, "retry_count", companion.RetryCount, "error", cause)
		if err := s.itemRepo.RefreshCompanionAggregate(ctx, companion.MediaItemID); err != nil {
			slog.Error("Failed to refresh companion aggregate", "item_id", companion.MediaItemID, "error", err)
		}
		s.finalize(ctx, companion.MediaItemID, "")
		return
	}

	notBefore := s.now().Add(decision.Delay)
	if err := s.companionRepo.ReleaseUpload(ctx, companion.ID, notBefore, cause.Error()); err != nil {
		slog.Error("Failed to release companion upload claim", "companion_id", companion.ID, "error", err)
		return
	}
	slog.Warn("Companion upload failed, retry scheduled", "companion_id", companion.ID, "retry_count", companion.RetryCount+1, "delay", decision.Delay.String(), "error", cause)
}

// finalize completes the parent once the primary is uploaded or skipped and
// every non-ignored companion is terminal, whichever upload arrived last.
func (s *UploadStage) finalize(ctx context.Context, mediaItemID, title string) {
	completed, err := s.itemRepo.FinalizeIfComplete(ctx, mediaItemID)
	if err != nil {
		slog.Error("Failed to finalize media item", "item_id", mediaItemID, "error", err)
		return
	}
	if completed {
		slog.Info("Media item completed", "item_id", mediaItemID)
		s.notifier.NotifyItemCompleted(ctx, mediaItemID, title)
	}
}
