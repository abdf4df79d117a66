package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"mimic/internal/logging"
	"mimic/internal/media"
	"mimic/internal/registry"
	"mimic/internal/services"
	"mimic/internal/storage"
)

// Request describes one media payload to ingest. Content must support seeking
// because the payload is read twice: once to hash, once to upload.
type Request struct {
	OwnerID     string
	Bucket      media.Bucket
	Filename    string
	ContentType string
	Size        int64
	Content     io.ReadSeeker
	Progress    storage.ProgressFunc
}

// Result reports where ingested content lives. Duplicate is true when the
// owner already had this exact content in the bucket and no upload happened.
type Result struct {
	URL         string
	ContentHash string
	StoragePath string
	ByteSize    int64
	Duplicate   bool
	Attempts    int
}

// Service runs the ingestion pipeline: validate, hash, dedup, upload, index.
type Service struct {
	store     *registry.Store
	transport *storage.Transport
	objects   storage.ObjectStore
	maxBytes  int64
	logger    *slog.Logger
}

// NewService wires an ingestion pipeline.
func NewService(store *registry.Store, transport *storage.Transport, objects storage.ObjectStore, maxBytes int64, logger *slog.Logger) *Service {
	if maxBytes <= 0 {
		maxBytes = media.MaxUploadBytes
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:     store,
		transport: transport,
		objects:   objects,
		maxBytes:  maxBytes,
		logger:    logger.With(logging.String(logging.FieldComponent, "ingest")),
	}
}

// Ingest validates and stores one payload. Content identical to something the
// owner already uploaded to the same bucket resolves without touching the
// object store. When the dedup index cannot be read the pipeline degrades to
// treating the content as new rather than failing the request.
func (s *Service) Ingest(ctx context.Context, req Request) (Result, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return Result{}, services.Wrap(services.ErrValidation, "ingest", "ingest", "owner id is required", nil)
	}
	if req.Content == nil {
		return Result{}, services.Wrap(services.ErrValidation, "ingest", "ingest", "content is required", nil)
	}
	if err := media.Validate(req.Bucket, req.Filename, req.ContentType, req.Size, s.maxBytes); err != nil {
		return Result{}, err
	}

	digest, err := Digest(req.Content)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "ingest", "ingest", "hash payload", err)
	}
	if _, err := req.Content.Seek(0, io.SeekStart); err != nil {
		return Result{}, fmt.Errorf("rewind payload: %w", err)
	}

	logger := s.logger.With(
		logging.String(logging.FieldOwner, ownerID),
		logging.String(logging.FieldBucket, string(req.Bucket)),
		logging.String(logging.FieldDigest, digest))

	if existing := s.lookupExisting(ctx, logger, ownerID, req.Bucket, digest); existing != nil {
		logger.Info("content already ingested, skipping upload",
			logging.String("storage_path", existing.StoragePath))
		return Result{
			URL:         s.objects.PublicURL(string(req.Bucket), existing.StoragePath),
			ContentHash: digest,
			StoragePath: existing.StoragePath,
			ByteSize:    existing.ByteSize,
			Duplicate:   true,
		}, nil
	}

	key := objectKey(ownerID, digest, req.Filename)
	uploadResult, err := s.transport.Upload(ctx, storage.UploadRequest{
		Bucket:      string(req.Bucket),
		Key:         key,
		ContentType: req.ContentType,
		Size:        req.Size,
		Open: func() (io.ReadCloser, error) {
			if _, seekErr := req.Content.Seek(0, io.SeekStart); seekErr != nil {
				return nil, seekErr
			}
			return io.NopCloser(req.Content), nil
		},
		Progress: req.Progress,
	})
	if err != nil {
		return Result{}, err
	}

	record := &registry.ContentRecord{
		OwnerID:      ownerID,
		Bucket:       string(req.Bucket),
		ContentHash:  digest,
		StoragePath:  key,
		OriginalName: media.SanitizeName(req.Filename),
		ByteSize:     req.Size,
	}
	if err := s.store.RecordContent(ctx, record); err != nil {
		if errors.Is(err, services.ErrConflict) {
			// A concurrent ingest of identical content won the index. Both
			// uploads wrote the same content-addressed key, so nothing is
			// orphaned; adopt the winner.
			if winner := s.lookupExisting(ctx, logger, ownerID, req.Bucket, digest); winner != nil {
				logger.Info("lost dedup race, adopting existing record",
					logging.String("storage_path", winner.StoragePath))
				return Result{
					URL:         s.objects.PublicURL(string(req.Bucket), winner.StoragePath),
					ContentHash: digest,
					StoragePath: winner.StoragePath,
					ByteSize:    winner.ByteSize,
					Duplicate:   true,
					Attempts:    uploadResult.Attempts,
				}, nil
			}
		} else {
			// Dedup is a cost optimization. The upload landed, so an index
			// that cannot accept the record only forfeits a future discount.
			logger.Warn("dedup index rejected record, continuing without it", logging.Error(err))
		}
	}

	logger.Info("content ingested",
		logging.String("storage_path", key),
		logging.Int("attempts", uploadResult.Attempts))
	return Result{
		URL:         uploadResult.URL,
		ContentHash: digest,
		StoragePath: key,
		ByteSize:    req.Size,
		Attempts:    uploadResult.Attempts,
	}, nil
}

// lookupExisting consults the dedup index. Index unavailability is logged and
// treated as a miss so ingestion can continue without it.
func (s *Service) lookupExisting(ctx context.Context, logger *slog.Logger, ownerID string, bucket media.Bucket, digest string) *registry.ContentRecord {
	record, err := s.store.LookupContent(ctx, ownerID, string(bucket), digest)
	if err != nil {
		logger.Warn("dedup index unavailable, treating content as new", logging.Error(err))
		return nil
	}
	return record
}

// objectKey derives a content-addressed object key. The sanitized original
// extension is kept so stored objects remain recognizable.
func objectKey(ownerID, digest, filename string) string {
	ext := strings.ToLower(filepath.Ext(media.SanitizeName(filename)))
	return path.Join(ownerID, digest+ext)
}
