package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mimic/internal/services"
)

// LookupContent returns the stored record for an owner's content hash, or nil
// when the owner has never uploaded that content to the bucket.
func (s *Store) LookupContent(ctx context.Context, ownerID string, bucket string, contentHash string) (*ContentRecord, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+contentColumns+` FROM content_records
         WHERE owner_id = ? AND bucket = ? AND content_hash = ?`,
		ownerID,
		bucket,
		contentHash,
	)
	record, err := scanContent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup content: %w", err)
	}
	return record, nil
}

// RecordContent indexes a freshly uploaded object under its owner and content
// hash. When another writer indexed the same content first, the unique
// constraint fires and the caller receives a conflict error carrying no
// record; re-read via LookupContent to find the winner.
func (s *Store) RecordContent(ctx context.Context, record *ContentRecord) error {
	if record == nil {
		return errors.New("content record is required")
	}
	if strings.TrimSpace(record.OwnerID) == "" {
		return errors.New("owner id is required")
	}
	if strings.TrimSpace(record.ContentHash) == "" {
		return errors.New("content hash is required")
	}
	if strings.TrimSpace(record.StoragePath) == "" {
		return errors.New("storage path is required")
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO content_records (
            owner_id, bucket, content_hash, storage_path, original_name, byte_size, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.OwnerID,
		record.Bucket,
		record.ContentHash,
		record.StoragePath,
		record.OriginalName,
		record.ByteSize,
		record.CreatedAt.Format(time.RFC3339Nano),
	)
	if isConstraintViolation(err) {
		return services.Wrap(services.ErrConflict, "registry", "record content",
			fmt.Sprintf("content %s already indexed for owner %s", record.ContentHash, record.OwnerID), err)
	}
	if err != nil {
		return fmt.Errorf("record content: %w", err)
	}
	return nil
}

// DeleteContent drops an index entry. The stored object itself is untouched.
func (s *Store) DeleteContent(ctx context.Context, ownerID string, bucket string, contentHash string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM content_records WHERE owner_id = ? AND bucket = ? AND content_hash = ?`,
		ownerID,
		bucket,
		contentHash,
	)
	if err != nil {
		return false, fmt.Errorf("delete content: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

const contentColumns = "owner_id, bucket, content_hash, storage_path, original_name, byte_size, created_at"

func scanContent(scanner interface{ Scan(dest ...any) error }) (*ContentRecord, error) {
	var (
		ownerID      string
		bucketStr    string
		contentHash  string
		storagePath  string
		originalName sql.NullString
		byteSize     sql.NullInt64
		createdRaw   sql.NullString
	)
	if err := scanner.Scan(&ownerID, &bucketStr, &contentHash, &storagePath, &originalName, &byteSize, &createdRaw); err != nil {
		return nil, err
	}

	record := &ContentRecord{
		OwnerID:      ownerID,
		Bucket:       bucketStr,
		ContentHash:  contentHash,
		StoragePath:  storagePath,
		OriginalName: originalName.String,
		ByteSize:     byteSize.Int64,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	return record, nil
}
