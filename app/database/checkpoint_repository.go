package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLCheckpointRepository persists source checkpoints in SQLite.
type SQLCheckpointRepository struct {
	db *DB
}

var _ CheckpointRepository = (*SQLCheckpointRepository)(nil)

// NewCheckpointRepository creates a new source-checkpoint repository.
func NewCheckpointRepository(db *DB) *SQLCheckpointRepository {
	return &SQLCheckpointRepository{db: db}
}

const checkpointColumns = `source_id, last_checked_at, strategy, strategy_overridden,
       last_item_count, last_new_item_count, created_at, updated_at`

func scanCheckpoint(scanner interface{ Scan(...any) error }) (SourceCheckpoint, error) {
	var (
		checkpoint    SourceCheckpoint
		lastCheckedAt sql.NullString
		overridden    int
		createdAt     string
		updatedAt     string
	)
	err := scanner.Scan(
		&checkpoint.SourceID, &lastCheckedAt, &checkpoint.Strategy, &overridden,
		&checkpoint.LastItemCount, &checkpoint.LastNewItemCount, &createdAt, &updatedAt,
	)
	if err != nil {
		return SourceCheckpoint{}, err
	}
	checkpoint.LastCheckedAt = parseNullableTime(lastCheckedAt)
	checkpoint.StrategyOverridden = overridden != 0
	checkpoint.CreatedAt = parseTime(createdAt)
	checkpoint.UpdatedAt = parseTime(updatedAt)
	return checkpoint, nil
}

// EnsureWithSeed creates the checkpoint row for sourceID if missing, seeding
// its strategy from configuration. A strategy already overridden at runtime
// is never touched: configuration is a seed, the store is truth thereafter.
func (r *SQLCheckpointRepository) EnsureWithSeed(ctx context.Context, sourceID string, seed Strategy) error {
	if !ValidStrategy(seed) {
		seed = StrategyFull
	}
	now := formatTime(time.Now())

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO source_checkpoints (source_id, strategy, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (source_id) DO UPDATE SET
			strategy = CASE WHEN strategy_overridden = 0 THEN excluded.strategy ELSE strategy END,
			updated_at = excluded.updated_at
	`, sourceID, seed, now, now)
	if err != nil {
		return fmt.Errorf("failed to ensure source checkpoint: %w", err)
	}
	return nil
}

func (r *SQLCheckpointRepository) Get(ctx context.Context, sourceID string) (*SourceCheckpoint, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+checkpointColumns+` FROM source_checkpoints WHERE source_id = ?`, sourceID)
	checkpoint, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source checkpoint: %w", err)
	}
	return &checkpoint, nil
}

func (r *SQLCheckpointRepository) List(ctx context.Context) ([]SourceCheckpoint, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+checkpointColumns+` FROM source_checkpoints ORDER BY source_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list source checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []SourceCheckpoint
	for rows.Next() {
		checkpoint, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		checkpoints = append(checkpoints, checkpoint)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoint rows: %w", err)
	}
	return checkpoints, nil
}

func (r *SQLCheckpointRepository) UpdateSweep(ctx context.Context, sourceID string, checkedAt time.Time, itemCount, newItemCount int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE source_checkpoints
		SET last_checked_at = ?, last_item_count = ?, last_new_item_count = ?, updated_at = ?
		WHERE source_id = ?
	`, formatTime(checkedAt), itemCount, newItemCount, formatTime(time.Now()), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update checkpoint sweep: %w", err)
	}
	return nil
}

// SetStrategy records a runtime strategy override; from this point the
// stored value wins over static configuration. The write is synchronous:
// once this returns, Resolve observes the new value.
func (r *SQLCheckpointRepository) SetStrategy(ctx context.Context, sourceID string, strategy Strategy) error {
	now := formatTime(time.Now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO source_checkpoints (source_id, strategy, strategy_overridden, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (source_id) DO UPDATE SET
			strategy = excluded.strategy,
			strategy_overridden = 1,
			updated_at = excluded.updated_at
	`, sourceID, strategy, now, now)
	if err != nil {
		return fmt.Errorf("failed to set source strategy: %w", err)
	}
	return nil
}
