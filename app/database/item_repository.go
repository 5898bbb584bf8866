package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLItemRepository persists media items in SQLite.
type SQLItemRepository struct {
	db *DB
}

var _ ItemRepository = (*SQLItemRepository)(nil)

// NewItemRepository creates a new media-item repository.
func NewItemRepository(db *DB) *SQLItemRepository {
	return &SQLItemRepository{db: db}
}

const mediaItemColumns = `id, source_id, title, media_url, COALESCE(published_at, ''), status, companion_status,
       local_path, retry_count, next_attempt_at, last_error, created_at, updated_at`

func scanMediaItem(scanner interface{ Scan(...any) error }) (MediaItem, error) {
	var (
		item          MediaItem
		publishedAt   string
		nextAttemptAt sql.NullString
		createdAt     string
		updatedAt     string
	)
	err := scanner.Scan(
		&item.ID, &item.SourceID, &item.Title, &item.MediaURL, &publishedAt, &item.Status, &item.CompanionStatus,
		&item.LocalPath, &item.RetryCount, &nextAttemptAt, &item.LastError, &createdAt, &updatedAt,
	)
	if err != nil {
		return MediaItem{}, err
	}
	item.PublishedAt = parseTime(publishedAt)
	item.NextAttemptAt = parseNullableTime(nextAttemptAt)
	item.CreatedAt = parseTime(createdAt)
	item.UpdatedAt = parseTime(updatedAt)
	return item, nil
}

func (r *SQLItemRepository) InsertWithCompanions(ctx context.Context, item MediaItem, companions []CompanionFile) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ingest transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now())

	_, err = tx.ExecContext(ctx, `
		INSERT INTO media_items (id, source_id, title, media_url, published_at, status, companion_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.SourceID, item.Title, item.MediaURL, formatTime(item.PublishedAt), item.Status, item.CompanionStatus, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert media item: %w", err)
	}

	for _, companion := range companions {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO companion_files (id, media_item_id, reference_type, reference_id, original_locator, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, companion.ID, item.ID, companion.ReferenceType, companion.ReferenceID, companion.OriginalLocator, CompanionFilePending, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert companion file: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ingest transaction: %w", err)
	}
	return nil
}

func (r *SQLItemRepository) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM media_items WHERE id = ? LIMIT 1`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check media item existence: %w", err)
	}
	return true, nil
}

func (r *SQLItemRepository) GetByID(ctx context.Context, id string) (*MediaItem, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mediaItemColumns+` FROM media_items WHERE id = ?`, id)
	item, err := scanMediaItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media item: %w", err)
	}
	return &item, nil
}

func (r *SQLItemRepository) ListByStatus(ctx context.Context, status MediaStatus, limit int) ([]MediaItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+mediaItemColumns+`
		FROM media_items
		WHERE status = ?
		ORDER BY created_at ASC
		LIMIT ?
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list media items: %w", err)
	}
	defer rows.Close()
	return collectMediaItems(rows)
}

func (r *SQLItemRepository) PickDue(ctx context.Context, status MediaStatus, now time.Time, limit int) ([]MediaItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+mediaItemColumns+`
		FROM media_items
		WHERE status = ?
		  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		ORDER BY created_at ASC
		LIMIT ?
	`, status, formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to pick due media items: %w", err)
	}
	defer rows.Close()
	return collectMediaItems(rows)
}

func collectMediaItems(rows *sql.Rows) ([]MediaItem, error) {
	var items []MediaItem
	for rows.Next() {
		item, err := scanMediaItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating media item rows: %w", err)
	}
	return items, nil
}

func (r *SQLItemRepository) Claim(ctx context.Context, id string, from, to MediaStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE media_items
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, to, formatTime(time.Now()), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to claim media item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return affected == 1, nil
}

func (r *SQLItemRepository) MarkDownloaded(ctx context.Context, id, localPath string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE media_items
		SET status = ?, local_path = ?, next_attempt_at = NULL, last_error = '', updated_at = ?
		WHERE id = ?
	`, MediaDownloaded, localPath, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to mark media item downloaded: %w", err)
	}
	return nil
}

func (r *SQLItemRepository) MarkFailed(ctx context.Context, id, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE media_items
		SET status = ?, last_error = ?, next_attempt_at = NULL, updated_at = ?
		WHERE id = ?
	`, MediaFailed, lastError, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to mark media item failed: %w", err)
	}
	return nil
}

func (r *SQLItemRepository) RequeueRetry(ctx context.Context, id string, to MediaStatus, notBefore time.Time, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE media_items
		SET status = ?, retry_count = retry_count + 1, next_attempt_at = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, to, formatTime(notBefore), lastError, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to requeue media item: %w", err)
	}
	return nil
}

func (r *SQLItemRepository) ClearLocalPath(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE media_items
		SET local_path = '', updated_at = ?
		WHERE id = ?
	`, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to clear local path: %w", err)
	}
	return nil
}

// finalizeCondition completes an item once the primary artifact is uploaded
// (status uploading, local path cleared) or was skipped, and no companion
// row remains in a non-terminal status.
const finalizeCondition = `
	(status = 'skipped_video' OR (status = 'uploading' AND local_path = ''))
	AND NOT EXISTS (
		SELECT 1 FROM companion_files c
		WHERE c.media_item_id = media_items.id
		  AND c.status IN ('pending', 'downloading')
	)`

func (r *SQLItemRepository) FinalizeIfComplete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE media_items
		SET status = 'completed', updated_at = ?
		WHERE id = ? AND `+finalizeCondition,
		formatTime(time.Now()), id)
	if err != nil {
		return false, fmt.Errorf("failed to finalize media item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read finalize result: %w", err)
	}
	return affected == 1, nil
}

func (r *SQLItemRepository) FinalizeEligible(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE media_items
		SET status = 'completed', updated_at = ?
		WHERE `+finalizeCondition,
		formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to finalize eligible media items: %w", err)
	}
	return res.RowsAffected()
}

// RefreshCompanionAggregate recomputes the item-level companion summary from
// its companion rows. Items with no companion sub-pipeline are left alone.
func (r *SQLItemRepository) RefreshCompanionAggregate(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE media_items
		SET companion_status = (
			CASE
				WHEN EXISTS (SELECT 1 FROM companion_files c WHERE c.media_item_id = media_items.id AND c.status = 'downloading') THEN 'downloading'
				WHEN EXISTS (SELECT 1 FROM companion_files c WHERE c.media_item_id = media_items.id AND c.status = 'pending') THEN 'detected'
				WHEN EXISTS (SELECT 1 FROM companion_files c WHERE c.media_item_id = media_items.id AND c.status IN ('completed', 'uploaded')) THEN 'completed'
				ELSE 'failed'
			END
		), updated_at = ?
		WHERE id = ? AND companion_status NOT IN ('none', 'ignored')
	`, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to refresh companion aggregate: %w", err)
	}
	return nil
}

// RequeueStale rolls stuck in-progress rows back to the start of their
// stage: downloading to pending, uploading to downloaded. Uploading rows
// whose local path is already cleared are awaiting companion completion,
// not stuck, and are skipped. Retry counts are left unchanged.
func (r *SQLItemRepository) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE media_items
		SET status = CASE status
			WHEN 'downloading' THEN 'pending'
			WHEN 'uploading' THEN 'downloaded'
			ELSE status
		END, updated_at = ?
		WHERE (status = 'downloading' OR (status = 'uploading' AND local_path != ''))
		  AND updated_at < ?
	`, formatTime(time.Now()), formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale media items: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLItemRepository) RetryFailed(ctx context.Context, id string) (bool, error) {
	// A failed item with an artifact on disk resumes at upload, otherwise
	// it starts over at download.
	res, err := r.db.ExecContext(ctx, `
		UPDATE media_items
		SET status = CASE WHEN local_path != '' THEN 'downloaded' ELSE 'pending' END,
		    retry_count = 0, next_attempt_at = NULL, last_error = '', updated_at = ?
		WHERE id = ? AND status = 'failed'
	`, formatTime(time.Now()), id)
	if err != nil {
		return false, fmt.Errorf("failed to retry media item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read retry result: %w", err)
	}
	return affected == 1, nil
}

func (r *SQLItemRepository) CountByStatus(ctx context.Context) (map[MediaStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM media_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count media items: %w", err)
	}
	defer rows.Close()

	counts := make(map[MediaStatus]int)
	for rows.Next() {
		var status MediaStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}
	return counts, nil
}
