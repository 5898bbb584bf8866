package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLCompanionRepository persists companion files in SQLite.
type SQLCompanionRepository struct {
	db *DB
}

var _ CompanionRepository = (*SQLCompanionRepository)(nil)

// NewCompanionRepository creates a new companion-file repository.
func NewCompanionRepository(db *DB) *SQLCompanionRepository {
	return &SQLCompanionRepository{db: db}
}

const companionColumns = `id, media_item_id, reference_type, reference_id, original_locator,
       status, local_path, size_bytes, retry_count, next_attempt_at, last_error, created_at, updated_at`

func scanCompanion(scanner interface{ Scan(...any) error }) (CompanionFile, error) {
	var (
		companion     CompanionFile
		nextAttemptAt sql.NullString
		createdAt     string
		updatedAt     string
	)
	err := scanner.Scan(
		&companion.ID, &companion.MediaItemID, &companion.ReferenceType, &companion.ReferenceID,
		&companion.OriginalLocator, &companion.Status, &companion.LocalPath, &companion.SizeBytes,
		&companion.RetryCount, &nextAttemptAt, &companion.LastError, &createdAt, &updatedAt,
	)
	if err != nil {
		return CompanionFile{}, err
	}
	companion.NextAttemptAt = parseNullableTime(nextAttemptAt)
	companion.CreatedAt = parseTime(createdAt)
	companion.UpdatedAt = parseTime(updatedAt)
	return companion, nil
}

func collectCompanions(rows *sql.Rows) ([]CompanionFile, error) {
	var companions []CompanionFile
	for rows.Next() {
		companion, err := scanCompanion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan companion row: %w", err)
		}
		companions = append(companions, companion)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating companion rows: %w", err)
	}
	return companions, nil
}

func (r *SQLCompanionRepository) ListByItem(ctx context.Context, mediaItemID string) ([]CompanionFile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+companionColumns+`
		FROM companion_files
		WHERE media_item_id = ?
		ORDER BY created_at ASC
	`, mediaItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list companion files: %w", err)
	}
	defer rows.Close()
	return collectCompanions(rows)
}

func (r *SQLCompanionRepository) PickDue(ctx context.Context, now time.Time, limit int) ([]CompanionFile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+companionColumns+`
		FROM companion_files
		WHERE status = ?
		  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		ORDER BY created_at ASC
		LIMIT ?
	`, CompanionFilePending, formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to pick due companion files: %w", err)
	}
	defer rows.Close()
	return collectCompanions(rows)
}

func (r *SQLCompanionRepository) Claim(ctx context.Context, id string, from, to CompanionStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE companion_files
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, to, formatTime(time.Now()), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to claim companion file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return affected == 1, nil
}

func (r *SQLCompanionRepository) MarkCompleted(ctx context.Context, id, localPath string, sizeBytes int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE companion_files
		SET status = ?, local_path = ?, size_bytes = ?, next_attempt_at = NULL, last_error = '', updated_at = ?
		WHERE id = ?
	`, CompanionFileCompleted, localPath, sizeBytes, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to mark companion completed: %w", err)
	}
	return nil
}

func (r *SQLCompanionRepository) MarkFailed(ctx context.Context, id, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE companion_files
		SET status = ?, last_error = ?, next_attempt_at = NULL, upload_claimed_at = NULL, updated_at = ?
		WHERE id = ?
	`, CompanionFileFailed, lastError, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to mark companion failed: %w", err)
	}
	return nil
}

func (r *SQLCompanionRepository) RequeueRetry(ctx context.Context, id string, notBefore time.Time, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE companion_files
		SET status = ?, retry_count = retry_count + 1, next_attempt_at = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, CompanionFilePending, formatTime(notBefore), lastError, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to requeue companion file: %w", err)
	}
	return nil
}

func (r *SQLCompanionRepository) PickUploadable(ctx context.Context, now time.Time, limit int) ([]CompanionFile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+companionColumns+`
		FROM companion_files
		WHERE status = ?
		  AND upload_claimed_at IS NULL
		  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		ORDER BY created_at ASC
		LIMIT ?
	`, CompanionFileCompleted, formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to pick uploadable companion files: %w", err)
	}
	defer rows.Close()
	return collectCompanions(rows)
}

func (r *SQLCompanionRepository) ClaimUpload(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE companion_files
		SET upload_claimed_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND upload_claimed_at IS NULL
	`, formatTime(now), formatTime(now), id, CompanionFileCompleted)
	if err != nil {
		return false, fmt.Errorf("failed to claim companion upload: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read upload claim result: %w", err)
	}
	return affected == 1, nil
}

func (r *SQLCompanionRepository) ReleaseUpload(ctx context.Context, id string, notBefore time.Time, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE companion_files
		SET upload_claimed_at = NULL, retry_count = retry_count + 1, next_attempt_at = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, formatTime(notBefore), lastError, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to release companion upload claim: %w", err)
	}
	return nil
}

func (r *SQLCompanionRepository) MarkUploaded(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE companion_files
		SET status = ?, local_path = '', upload_claimed_at = NULL, next_attempt_at = NULL, last_error = '', updated_at = ?
		WHERE id = ?
	`, CompanionFileUploaded, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to mark companion uploaded: %w", err)
	}
	return nil
}

// RequeueStale rolls stuck downloading rows back to pending and releases
// upload claims older than the cutoff. Retry counts are left unchanged.
func (r *SQLCompanionRepository) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	now := formatTime(time.Now())

	res, err := r.db.ExecContext(ctx, `
		UPDATE companion_files
		SET status = ?, updated_at = ?
		WHERE status = ? AND updated_at < ?
	`, CompanionFilePending, now, CompanionFileDownloading, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale companion files: %w", err)
	}
	requeued, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read stale requeue result: %w", err)
	}

	res, err = r.db.ExecContext(ctx, `
		UPDATE companion_files
		SET upload_claimed_at = NULL, updated_at = ?
		WHERE status = ? AND upload_claimed_at IS NOT NULL AND upload_claimed_at < ?
	`, now, CompanionFileCompleted, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to release stale upload claims: %w", err)
	}
	released, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read stale release result: %w", err)
	}

	return requeued + released, nil
}

func (r *SQLCompanionRepository) CountByStatus(ctx context.Context) (map[CompanionStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM companion_files GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count companion files: %w", err)
	}
	defer rows.Close()

	counts := make(map[CompanionStatus]int)
	for rows.Next() {
		var status CompanionStatus
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
