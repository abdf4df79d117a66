package ingest_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"mimic/internal/ingest"
	"mimic/internal/media"
	"mimic/internal/registry"
	"mimic/internal/services"
	"mimic/internal/storage"
	"mimic/internal/testsupport"
)

type fakeObjects struct {
	mu    sync.Mutex
	puts  int
	onPut func()
	fail  error
}

func (f *fakeObjects) Put(_ context.Context, _, _ string, r io.Reader, _ int64, _ string) error {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	f.mu.Lock()
	f.puts++
	onPut := f.onPut
	fail := f.fail
	f.mu.Unlock()
	if onPut != nil {
		onPut()
	}
	return fail
}

func (f *fakeObjects) Remove(context.Context, string, string) error         { return nil }
func (f *fakeObjects) Exists(context.Context, string, string) (bool, error) { return false, nil }
func (f *fakeObjects) PublicURL(bucket, key string) string {
	return "https://cdn.example/" + bucket + "/" + key
}

func (f *fakeObjects) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func newService(t *testing.T, objects storage.ObjectStore) (*ingest.Service, *registry.Store) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	transport := storage.NewTransport(objects, cfg, nil)
	return ingest.NewService(store, transport, objects, 0, nil), store
}

func audioRequest(ownerID string, content []byte) ingest.Request {
	return ingest.Request{
		OwnerID:     ownerID,
		Bucket:      media.BucketVoice,
		Filename:    "sample.mp3",
		ContentType: "audio/mpeg",
		Size:        int64(len(content)),
		Content:     bytes.NewReader(content),
	}
}

func TestIngestUploadsAndIndexesNewContent(t *testing.T) {
	objects := &fakeObjects{}
	svc, store := newService(t, objects)

	result, err := svc.Ingest(context.Background(), audioRequest("owner-1", []byte("voice sample bytes")))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if result.Duplicate {
		t.Fatal("expected fresh content, got duplicate")
	}
	if result.ContentHash == "" || result.URL == "" {
		t.Fatalf("incomplete result: %#v", result)
	}
	if objects.putCount() != 1 {
		t.Fatalf("expected 1 upload, got %d", objects.putCount())
	}

	indexed, err := store.LookupContent(context.Background(), "owner-1", "voice", result.ContentHash)
	if err != nil {
		t.Fatalf("LookupContent failed: %v", err)
	}
	if indexed == nil || indexed.StoragePath != result.StoragePath {
		t.Fatalf("expected content to be indexed, got %#v", indexed)
	}
}

func TestIngestDuplicateSkipsUpload(t *testing.T) {
	objects := &fakeObjects{}
	svc, _ := newService(t, objects)

	content := []byte("identical voice sample")
	first, err := svc.Ingest(context.Background(), audioRequest("owner-1", content))
	if err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}

	second, err := svc.Ingest(context.Background(), audioRequest("owner-1", content))
	if err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}
	if !second.Duplicate {
		t.Fatal("expected duplicate result")
	}
	if second.StoragePath != first.StoragePath {
		t.Fatalf("expected same storage path, got %q vs %q", second.StoragePath, first.StoragePath)
	}
	if objects.putCount() != 1 {
		t.Fatalf("expected no second upload, got %d puts", objects.putCount())
	}
}

func TestIngestDedupScopedPerOwner(t *testing.T) {
	objects := &fakeObjects{}
	svc, _ := newService(t, objects)

	content := []byte("shared between owners")
	if _, err := svc.Ingest(context.Background(), audioRequest("owner-a", content)); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	result, err := svc.Ingest(context.Background(), audioRequest("owner-b", content))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if result.Duplicate {
		t.Fatal("expected upload for a different owner")
	}
	if objects.putCount() != 2 {
		t.Fatalf("expected 2 uploads, got %d", objects.putCount())
	}
}

func TestIngestRejectsDisallowedMedia(t *testing.T) {
	objects := &fakeObjects{}
	svc, _ := newService(t, objects)

	req := ingest.Request{
		OwnerID:     "owner-1",
		Bucket:      media.BucketVoice,
		Filename:    "malware.exe",
		ContentType: "application/octet-stream",
		Size:        128,
		Content:     bytes.NewReader([]byte("nope")),
	}
	_, err := svc.Ingest(context.Background(), req)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if objects.putCount() != 0 {
		t.Fatal("expected no upload for rejected media")
	}
}

func TestIngestPropagatesPermanentUploadFailure(t *testing.T) {
	objects := &fakeObjects{
		fail: services.Wrap(services.ErrPermanent, "storage", "put object", "AccessDenied", errors.New("403")),
	}
	svc, _ := newService(t, objects)

	_, err := svc.Ingest(context.Background(), audioRequest("owner-1", []byte("rejected")))
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if services.IsRetryable(err) {
		t.Fatal("permanent failure must not be retryable")
	}
}

func TestIngestConflictAdoptsWinningRecord(t *testing.T) {
	objects := &fakeObjects{}
	svc, store := newService(t, objects)

	content := []byte("raced content")
	digest, err := ingest.Digest(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}

	// Another ingestion wins the index between our lookup and our record.
	objects.onPut = func() {
		err := store.RecordContent(context.Background(), &registry.ContentRecord{
			OwnerID:     "owner-1",
			Bucket:      "voice",
			ContentHash: digest,
			StoragePath: "owner-1/" + digest + ".mp3",
			ByteSize:    int64(len(content)),
		})
		if err != nil {
			t.Errorf("concurrent RecordContent failed: %v", err)
		}
	}

	result, err := svc.Ingest(context.Background(), audioRequest("owner-1", content))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if !result.Duplicate {
		t.Fatal("expected loser to adopt the winning record as duplicate")
	}
	if result.StoragePath != "owner-1/"+digest+".mp3" {
		t.Fatalf("expected winner's storage path, got %q", result.StoragePath)
	}
}

func TestIngestSucceedsWhenIndexUnavailable(t *testing.T) {
	objects := &fakeObjects{}
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	transport := storage.NewTransport(objects, cfg, nil)
	svc := ingest.NewService(store, transport, objects, 0, nil)

	// Closing the store makes every index call fail; ingestion only loses
	// the dedup discount.
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	result, err := svc.Ingest(context.Background(), audioRequest("owner-1", []byte("still works")))
	if err != nil {
		t.Fatalf("Ingest failed with index down: %v", err)
	}
	if result.Duplicate {
		t.Fatal("expected upload, not duplicate")
	}
	if objects.putCount() != 1 {
		t.Fatalf("expected upload despite index outage, got %d puts", objects.putCount())
	}
}

func TestDigestIsStableAndHexEncoded(t *testing.T) {
	first, err := ingest.Digest(bytes.NewReader([]byte("content")))
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	second, err := ingest.Digest(bytes.NewReader([]byte("content")))
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	if first != second {
		t.Fatalf("digest not stable: %q vs %q", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(first))
	}
	different, err := ingest.Digest(bytes.NewReader([]byte("other")))
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	if different == first {
		t.Fatal("different content must produce different digests")
	}
}
