package database

import (
	"context"
	"time"
)

// ItemRepository is the media-item surface consumed by the pipeline stages.
type ItemRepository interface {
	// InsertWithCompanions stores a media item together with its companion
	// rows in one transaction; partial insertion is never observable.
	InsertWithCompanions(ctx context.Context, item MediaItem, companions []CompanionFile) error
	Exists(ctx context.Context, id string) (bool, error)
	GetByID(ctx context.Context, id string) (*MediaItem, error)
	ListByStatus(ctx context.Context, status MediaStatus, limit int) ([]MediaItem, error)

	// PickDue returns rows in the given status whose next attempt is due.
	PickDue(ctx context.Context, status MediaStatus, now time.Time, limit int) ([]MediaItem, error)
	// Claim conditionally transitions a row; false means another worker won.
	Claim(ctx context.Context, id string, from, to MediaStatus) (bool, error)

	MarkDownloaded(ctx context.Context, id, localPath string) error
	MarkFailed(ctx context.Context, id, lastError string) error
	// RequeueRetry schedules another attempt: status back to `to`,
	// retry count incremented, not-before timestamp recorded.
	RequeueRetry(ctx context.Context, id string, to MediaStatus, notBefore time.Time, lastError string) error
	ClearLocalPath(ctx context.Context, id string) error

	// FinalizeEligible completes every item whose primary artifact is
	// uploaded or skipped and whose companions are all terminal.
	FinalizeEligible(ctx context.Context) (int64, error)
	FinalizeIfComplete(ctx context.Context, id string) (bool, error)
	RefreshCompanionAggregate(ctx context.Context, id string) error

	// RequeueStale rolls rows stuck in an in-progress status past the
	// cutoff back to the start of their stage, leaving retry counts alone.
	RequeueStale(ctx context.Context, cutoff time.Time) (int64, error)
	RetryFailed(ctx context.Context, id string) (bool, error)
	CountByStatus(ctx context.Context) (map[MediaStatus]int, error)
}

// CompanionRepository is the companion-file surface consumed by the pipeline.
type CompanionRepository interface {
	ListByItem(ctx context.Context, mediaItemID string) ([]CompanionFile, error)
	PickDue(ctx context.Context, now time.Time, limit int) ([]CompanionFile, error)
	Claim(ctx context.Context, id string, from, to CompanionStatus) (bool, error)

	MarkCompleted(ctx context.Context, id, localPath string, sizeBytes int64) error
	MarkFailed(ctx context.Context, id, lastError string) error
	RequeueRetry(ctx context.Context, id string, notBefore time.Time, lastError string) error

	// Upload claiming: completed rows carry no extra status, so exclusive
	// upload ownership is a conditional timestamp update.
	PickUploadable(ctx context.Context, now time.Time, limit int) ([]CompanionFile, error)
	ClaimUpload(ctx context.Context, id string, now time.Time) (bool, error)
	ReleaseUpload(ctx context.Context, id string, notBefore time.Time, lastError string) error
	MarkUploaded(ctx context.Context, id string) error

	RequeueStale(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[CompanionStatus]int, error)
}

// CheckpointRepository tracks per-source polling progress and strategy.
type CheckpointRepository interface {
	// EnsureWithSeed creates the checkpoint row if missing and reconciles
	// the configured strategy into it unless a runtime override is set.
	EnsureWithSeed(ctx context.Context, sourceID string, seed Strategy) error
	Get(ctx context.Context, sourceID string) (*SourceCheckpoint, error)
	List(ctx context.Context) ([]SourceCheckpoint, error)
	UpdateSweep(ctx context.Context, sourceID string, checkedAt time.Time, itemCount, newItemCount int) error
	SetStrategy(ctx context.Context, sourceID string, strategy Strategy) error
}
