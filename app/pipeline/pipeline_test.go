package pipeline

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SuperrNaruto/you2down/app/database"
	"github.com/SuperrNaruto/you2down/app/fetcher"
	"github.com/SuperrNaruto/you2down/app/notify"
	"github.com/SuperrNaruto/you2down/app/sources"
	"github.com/SuperrNaruto/you2down/app/storage"
)

// Shared fixtures for the pipeline stage tests. Everything runs against a
// real SQLite store in a temp directory so the conditional-update semantics
// are exercised for real.

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func newTestConfigCache(t *testing.T, configs map[string]string) *sources.ConfigCache {
	t.Helper()

	dir := t.TempDir()
	for name, content := range configs {
		if err := os.WriteFile(filepath.Join(dir, name+".yml"), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	cache := sources.NewConfigCache(dir)
	if err := cache.Run(); err != nil {
		t.Fatalf("Failed to load source configs: %v", err)
	}
	return cache
}

func noopNotifier() notify.Service {
	return notify.NewService("", "", 0)
}

type stubPoller struct {
	kind  string
	items []sources.RawItem
	err   error
	polls int
}

func (p *stubPoller) Kind() string { return p.kind }

func (p *stubPoller) Poll(_ context.Context, _ string, _ *time.Time) iter.Seq2[sources.RawItem, error] {
	p.polls++
	return func(yield func(sources.RawItem, error) bool) {
		for _, item := range p.items {
			if !yield(item, nil) {
				return
			}
		}
		if p.err != nil {
			yield(sources.RawItem{}, p.err)
		}
	}
}

type stubFetcher struct {
	err      error
	size     int64
	calls    int
	locators []string
}

func (f *stubFetcher) Fetch(_ context.Context, id string, locator string, destDir string) (*fetcher.Result, error) {
	f.calls++
	f.locators = append(f.locators, locator)
	if f.err != nil {
		return nil, f.err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}
	localPath := filepath.Join(destDir, id+".bin")
	if err := os.WriteFile(localPath, []byte("data"), 0644); err != nil {
		return nil, err
	}
	return &fetcher.Result{LocalPath: localPath, SizeBytes: f.size}, nil
}

type stubUploader struct {
	err     error
	calls   int
	uploads []string
}

func (u *stubUploader) Upload(_ context.Context, _, remotePath string) error {
	u.calls++
	if u.err != nil {
		return u.err
	}
	u.uploads = append(u.uploads, remotePath)
	return nil
}

var _ storage.Uploader = (*stubUploader)(nil)

func testGovernor() Governor {
	return Governor{MaxAttempts: 3, BaseDelay: time.Minute, MaxDelay: time.Hour}
}

func mustInsert(t *testing.T, repo database.ItemRepository, item database.MediaItem, companions []database.CompanionFile) {
	t.Helper()
	if err := repo.InsertWithCompanions(context.Background(), item, companions); err != nil {
		t.Fatalf("Failed to insert item %s: %v", item.ID, err)
	}
}

func getItem(t *testing.T, repo database.ItemRepository, id string) *database.MediaItem {
	t.Helper()
	item, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if item == nil {
		t.Fatalf("Item %s not found", id)
	}
	return item
}

func writeArtifact(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("artifact"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var errTransient = fmt.Errorf("connection reset by peer")
