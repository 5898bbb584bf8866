package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func insertTestItem(t *testing.T, repo *SQLItemRepository, id string, status MediaStatus, aggregate CompanionAggregate, companions []CompanionFile) {
	t.Helper()

	item := MediaItem{
		ID:              id,
		SourceID:        "PL1",
		Title:           "Test item " + id,
		PublishedAt:     time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		Status:          status,
		CompanionStatus: aggregate,
	}
	if err := repo.InsertWithCompanions(context.Background(), item, companions); err != nil {
		t.Fatalf("Failed to insert test item %s: %v", id, err)
	}
}

func testCompanion(mediaItemID, refID string) CompanionFile {
	return CompanionFile{
		ID:              CompanionID(mediaItemID, refID),
		MediaItemID:     mediaItemID,
		ReferenceType:   "file",
		ReferenceID:     refID,
		OriginalLocator: "https://drive.google.com/file/d/" + refID + "/view",
		Status:          CompanionFilePending,
	}
}

// backdate pushes a row's updated_at into the past to simulate staleness.
func backdate(t *testing.T, db *DB, table, id string, age time.Duration) {
	t.Helper()

	stale := formatTime(time.Now().Add(-age))
	if _, err := db.Exec(`UPDATE `+table+` SET updated_at = ? WHERE id = ?`, stale, id); err != nil {
		t.Fatalf("Failed to backdate %s row %s: %v", table, id, err)
	}
}
