package database

import (
	"time"
)

// MediaStatus is the primary lifecycle state of a media item.
type MediaStatus string

const (
	MediaPending      MediaStatus = "pending"
	MediaDownloading  MediaStatus = "downloading"
	MediaDownloaded   MediaStatus = "downloaded"
	MediaUploading    MediaStatus = "uploading"
	MediaCompleted    MediaStatus = "completed"
	MediaFailed       MediaStatus = "failed"
	MediaSkippedVideo MediaStatus = "skipped_video"
)

// CompanionAggregate is the item-level summary of its companion sub-pipeline.
type CompanionAggregate string

const (
	CompanionNone        CompanionAggregate = "none"
	CompanionDetected    CompanionAggregate = "detected"
	CompanionDownloading CompanionAggregate = "downloading"
	CompanionCompleted   CompanionAggregate = "completed"
	CompanionFailed      CompanionAggregate = "failed"
	CompanionIgnored     CompanionAggregate = "ignored"
)

// CompanionStatus is the lifecycle state of a single companion file.
type CompanionStatus string

const (
	CompanionFilePending     CompanionStatus = "pending"
	CompanionFileDownloading CompanionStatus = "downloading"
	CompanionFileCompleted   CompanionStatus = "completed"
	CompanionFileFailed      CompanionStatus = "failed"
	CompanionFileUploaded    CompanionStatus = "uploaded"
)

// Strategy determines which sub-pipelines apply to a source's items.
type Strategy string

const (
	StrategyFull          Strategy = "full"
	StrategyPrimaryOnly   Strategy = "primary_only"
	StrategyCompanionOnly Strategy = "companion_only"
)

// ValidStrategy reports whether s is one of the three known strategies.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategyFull, StrategyPrimaryOnly, StrategyCompanionOnly:
		return true
	}
	return false
}

// MediaItem is a discovered primary media reference. Rows are created only
// during ingestion and never deleted; only the downloaded byte artifact is
// removed after a successful upload.
type MediaItem struct {
	ID              string
	SourceID        string
	Title           string
	MediaURL        string
	PublishedAt     time.Time
	Status          MediaStatus
	CompanionStatus CompanionAggregate
	LocalPath       string
	RetryCount      int
	NextAttemptAt   *time.Time
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CompanionFile is a secondary resource discovered inside a media item's
// description. It is owned by its MediaItem and shares its audit permanence.
type CompanionFile struct {
	ID              string
	MediaItemID     string
	ReferenceType   string
	ReferenceID     string
	OriginalLocator string
	Status          CompanionStatus
	LocalPath       string
	SizeBytes       int64
	RetryCount      int
	NextAttemptAt   *time.Time
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CompanionID builds the composite row id for a companion file.
func CompanionID(mediaItemID, referenceID string) string {
	return mediaItemID + ":" + referenceID
}

// SourceCheckpoint is the durable marker of how far a source has been
// polled, plus the effective processing strategy for the source.
type SourceCheckpoint struct {
	SourceID           string
	LastCheckedAt      *time.Time
	Strategy           Strategy
	StrategyOverridden bool
	LastItemCount      int
	LastNewItemCount   int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
