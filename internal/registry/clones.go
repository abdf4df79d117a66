package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mimic/internal/services"
)

// NewClone inserts a draft clone awaiting media ingestion and submission. The
// submit options are fixed at creation and replayed when the job goes out.
func (s *Store) NewClone(ctx context.Context, ownerID, name, audioURL, imageURL string, opts SubmitOptions) (*CloneRecord, error) {
	ownerID = strings.TrimSpace(ownerID)
	name = strings.TrimSpace(name)
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}
	if name == "" {
		return nil, errors.New("clone name is required")
	}

	id := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO clone_records (
            id, owner_id, name, status, audio_url, image_url, fluent, pad_audio, stitch, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		ownerID,
		name,
		StatusDraft,
		nullableString(audioURL),
		nullableString(imageURL),
		opts.Fluent,
		opts.PadAudio,
		opts.Stitch,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert clone: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a clone record by identifier. Returns nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*CloneRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cloneColumns+` FROM clone_records WHERE id = ?`, id)
	record, err := scanClone(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get clone: %w", err)
	}
	return record, nil
}

// GetByJobID fetches the clone owning an external synthesis job.
func (s *Store) GetByJobID(ctx context.Context, jobID string) (*CloneRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cloneColumns+` FROM clone_records WHERE job_id = ? LIMIT 1`, jobID)
	record, err := scanClone(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get clone by job: %w", err)
	}
	return record, nil
}

// List returns clone records, optionally filtered by owner and status set.
// Reads run outside any write lock; a snapshot slightly behind the latest
// write is acceptable.
func (s *Store) List(ctx context.Context, ownerID string, statuses ...Status) ([]*CloneRecord, error) {
	query := `SELECT ` + cloneColumns + ` FROM clone_records`
	var (
		clauses []string
		args    []any
	)
	if strings.TrimSpace(ownerID) != "" {
		clauses = append(clauses, "owner_id = ?")
		args = append(args, strings.TrimSpace(ownerID))
	}
	if len(statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(statuses))+")")
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list clones: %w", err)
	}
	defer rows.Close()

	var records []*CloneRecord
	for rows.Next() {
		record, err := scanClone(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// NextForStatuses returns the oldest clone matching any of the provided statuses.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*CloneRecord, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}

	query := `SELECT ` + cloneColumns + ` FROM clone_records WHERE status IN (` +
		makePlaceholders(len(statuses)) + `) ORDER BY updated_at LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, args...)
	record, err := scanClone(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Transition advances a clone one step along the lifecycle. The status guard
// lives in the UPDATE itself, so a concurrent writer that got there first
// causes a state error instead of a silent regression.
func (s *Store) Transition(ctx context.Context, id string, from, to Status) error {
	if !CanTransition(from, to) {
		return services.Wrap(services.ErrState, "registry", "transition",
			fmt.Sprintf("clone %s cannot move %s -> %s", id, from, to), nil)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE clone_records SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		from,
	)
	if err != nil {
		return fmt.Errorf("transition clone: %w", err)
	}
	return s.explainNoEffect(ctx, res, id, from, to)
}

// SetSubmitted moves an uploading clone to submitted and records its external
// job id. The job id is written exactly once; resubmission hits the guard.
func (s *Store) SetSubmitted(ctx context.Context, id, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return errors.New("job id is required")
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE clone_records SET status = ?, job_id = ?, updated_at = ?
         WHERE id = ? AND status = ? AND job_id IS NULL`,
		StatusSubmitted,
		jobID,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusUploading,
	)
	if err != nil {
		return fmt.Errorf("mark submitted: %w", err)
	}
	return s.explainNoEffect(ctx, res, id, StatusUploading, StatusSubmitted)
}

// MarkReady completes a polling clone in a single write: result URL, thumbnail,
// duration, and the terminal transition land atomically.
func (s *Store) MarkReady(ctx context.Context, id, resultVideoURL, thumbnailURL string, durationSeconds float64) error {
	if strings.TrimSpace(resultVideoURL) == "" {
		return errors.New("result video url is required")
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE clone_records
         SET status = ?, result_video_url = ?, thumbnail_url = ?, duration_seconds = ?,
             error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusReady,
		resultVideoURL,
		nullableString(thumbnailURL),
		durationSeconds,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusPolling,
	)
	if err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	return s.explainNoEffect(ctx, res, id, StatusPolling, StatusReady)
}

// MarkFailed forces a clone to the terminal failed state from any non-terminal
// state, recording the reason.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE clone_records SET status = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?)`,
		StatusFailed,
		nullableString(strings.TrimSpace(message)),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusReady,
		StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		record, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return getErr
		}
		if record == nil {
			return services.Wrap(services.ErrNotFound, "registry", "mark failed", fmt.Sprintf("clone %s", id), nil)
		}
		return services.Wrap(services.ErrState, "registry", "mark failed",
			fmt.Sprintf("clone %s already terminal in %s", id, record.Status), nil)
	}
	return nil
}

// RecordUsage bumps the usage counter and stamps last use. The increment
// happens inside the database, so concurrent bumps never lose a count.
func (s *Store) RecordUsage(ctx context.Context, id string) (*CloneRecord, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE clone_records
         SET usage_count = usage_count + 1, last_used_at = ?, updated_at = ?
         WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("record usage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, services.Wrap(services.ErrNotFound, "registry", "record usage", fmt.Sprintf("clone %s", id), nil)
	}
	return s.GetByID(ctx, id)
}

// Remove deletes a clone by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM clone_records WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete clone: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Stats returns a count of clones grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM clone_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("registry stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates registry state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusDraft:
			health.Draft += count
		case StatusReady:
			health.Ready += count
		case StatusFailed:
			health.Failed += count
		default:
			health.InFlight += count
		}
	}
	return health, nil
}

// explainNoEffect turns a zero-row guarded UPDATE into the precise error: the
// record is either missing or in a state the guard refused.
func (s *Store) explainNoEffect(ctx context.Context, res sql.Result, id string, from, to Status) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	record, getErr := s.GetByID(ctx, id)
	if getErr != nil {
		return getErr
	}
	if record == nil {
		return services.Wrap(services.ErrNotFound, "registry", "transition", fmt.Sprintf("clone %s", id), nil)
	}
	return services.Wrap(services.ErrState, "registry", "transition",
		fmt.Sprintf("clone %s is %s, cannot move %s -> %s", id, record.Status, from, to), nil)
}

const cloneColumns = "id, owner_id, name, status, job_id, audio_url, image_url, fluent, pad_audio, stitch, result_video_url, thumbnail_url, duration_seconds, usage_count, last_used_at, error_message, created_at, updated_at"

func scanClone(scanner interface{ Scan(dest ...any) error }) (*CloneRecord, error) {
	var (
		id           string
		ownerID      string
		name         string
		statusStr    string
		jobID        sql.NullString
		audioURL     sql.NullString
		imageURL     sql.NullString
		fluent       bool
		padAudio     float64
		stitch       bool
		resultURL    sql.NullString
		thumbnailURL sql.NullString
		duration     sql.NullFloat64
		usageCount   sql.NullInt64
		lastUsedRaw  sql.NullString
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&ownerID,
		&name,
		&statusStr,
		&jobID,
		&audioURL,
		&imageURL,
		&fluent,
		&padAudio,
		&stitch,
		&resultURL,
		&thumbnailURL,
		&duration,
		&usageCount,
		&lastUsedRaw,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	record := &CloneRecord{
		ID:              id,
		OwnerID:         ownerID,
		Name:            name,
		Status:          Status(statusStr),
		JobID:           jobID.String,
		AudioURL:        audioURL.String,
		ImageURL:        imageURL.String,
		Options:         SubmitOptions{Fluent: fluent, PadAudio: padAudio, Stitch: stitch},
		ResultVideoURL:  resultURL.String,
		ThumbnailURL:    thumbnailURL.String,
		DurationSeconds: duration.Float64,
		UsageCount:      usageCount.Int64,
		ErrorMessage:    errorMessage.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	if lastUsedRaw.Valid {
		if lastUsed, err := parseTimeString(lastUsedRaw.String); err == nil {
			record.LastUsedAt = &lastUsed
		}
	}
	return record, nil
}
