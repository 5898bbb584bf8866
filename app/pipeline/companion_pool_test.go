package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/SuperrNaruto/you2down/app/database"
	"github.com/SuperrNaruto/you2down/app/fetcher"
)

func getCompanion(t *testing.T, repo database.CompanionRepository, mediaItemID, id string) *database.CompanionFile {
	t.Helper()
	companions, err := repo.ListByItem(context.Background(), mediaItemID)
	if err != nil {
		t.Fatal(err)
	}
	for i := range companions {
		if companions[i].ID == id {
			return &companions[i]
		}
	}
	t.Fatalf("Companion %s not found", id)
	return nil
}

func insertItemWithCompanion(t *testing.T, itemRepo database.ItemRepository, itemID, refID string) string {
	t.Helper()
	companionID := database.CompanionID(itemID, refID)
	mustInsert(t, itemRepo, database.MediaItem{
		ID: itemID, SourceID: "PL1", Title: "Video",
		Status: database.MediaSkippedVideo, CompanionStatus: database.CompanionDetected,
	}, []database.CompanionFile{{
		ID: companionID, MediaItemID: itemID,
		ReferenceType: "file", ReferenceID: refID,
		OriginalLocator: "https://drive.google.com/file/d/" + refID + "/view",
		Status:          database.CompanionFilePending,
	}})
	return companionID
}

func TestCompanionPoolSuccess(t *testing.T) {
	db := newTestDB(t)
	itemRepo := database.NewItemRepository(db)
	companionRepo := database.NewCompanionRepository(db)
	companionID := insertItemWithCompanion(t, itemRepo, "vid1", "ref_aaaaaaaaaa")

	pool := NewCompanionPool(companionRepo, itemRepo, &stubFetcher{size: 8}, testGovernor(), noopNotifier(), t.TempDir(), 2)
	pool.Drain(context.Background())

	companion := getCompanion(t, companionRepo, "vid1", companionID)
	if companion.Status != database.CompanionFileCompleted {
		t.Errorf("Expected companion completed, got %s", companion.Status)
	}
	if companion.LocalPath == "" {
		t.Error("Expected companion local path recorded")
	}
	if companion.SizeBytes != 8 {
		t.Errorf("Expected size 8, got %d", companion.SizeBytes)
	}

	item := getItem(t, itemRepo, "vid1")
	if item.CompanionStatus != database.CompanionCompleted {
		t.Errorf("Expected aggregate completed, got %s", item.CompanionStatus)
	}
}

func TestCompanionPoolSizeExceededFailsTerminally(t *testing.T) {
	db := newTestDB(t)
	itemRepo := database.NewItemRepository(db)
	companionRepo := database.NewCompanionRepository(db)
	companionID := insertItemWithCompanion(t, itemRepo, "vid1", "ref_aaaaaaaaaa")

	pool := NewCompanionPool(companionRepo, itemRepo, &stubFetcher{err: fetcher.ErrSizeExceeded}, testGovernor(), noopNotifier(), t.TempDir(), 2)
	pool.Drain(context.Background())

	companion := getCompanion(t, companionRepo, "vid1", companionID)
	if companion.Status != database.CompanionFileFailed {
		t.Errorf("Expected companion failed, got %s", companion.Status)
	}
	if companion.RetryCount != 0 {
		t.Errorf("Expected no retries for oversized file, got %d", companion.RetryCount)
	}

	// The failed companion was the only thing holding the skipped_video
	// parent open, so losing it finalizes the item.
	item := getItem(t, itemRepo, "vid1")
	if item.CompanionStatus != database.CompanionFailed {
		t.Errorf("Expected aggregate failed, got %s", item.CompanionStatus)
	}
	if item.Status != database.MediaCompleted {
		t.Errorf("Expected parent completed after terminal companion, got %s", item.Status)
	}
}

func TestCompanionPoolTransientFailureSchedulesRetry(t *testing.T) {
	db := newTestDB(t)
	itemRepo := database.NewItemRepository(db)
	companionRepo := database.NewCompanionRepository(db)
	companionID := insertItemWithCompanion(t, itemRepo, "vid1", "ref_aaaaaaaaaa")

	now := time.Now()
	pool := NewCompanionPool(companionRepo, itemRepo, &stubFetcher{err: errTransient}, testGovernor(), noopNotifier(), t.TempDir(), 2)
	pool.now = fixedClock(now)
	pool.Drain(context.Background())

	companion := getCompanion(t, companionRepo, "vid1", companionID)
	if companion.Status != database.CompanionFilePending {
		t.Errorf("Expected companion back to pending, got %s", companion.Status)
	}
	if companion.RetryCount != 1 {
		t.Errorf("Expected retry count 1, got %d", companion.RetryCount)
	}
	if companion.NextAttemptAt == nil || !companion.NextAttemptAt.After(now) {
		t.Errorf("Expected not-before timestamp in the future, got %v", companion.NextAttemptAt)
	}

	// Parent stays open while the companion still has attempts left.
	item := getItem(t, itemRepo, "vid1")
	if item.Status != database.MediaSkippedVideo {
		t.Errorf("Expected parent still skipped_video, got %s", item.Status)
	}
}
