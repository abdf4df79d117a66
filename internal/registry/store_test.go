package registry_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"mimic/internal/registry"
	"mimic/internal/services"
	"mimic/internal/testsupport"
)

func TestOpenCreatesSchemaAndInserts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record, err := store.NewClone(ctx, "owner-1", "My Clone", "https://cdn/audio.mp3", "https://cdn/face.png", registry.DefaultSubmitOptions())
	if err != nil {
		t.Fatalf("NewClone failed: %v", err)
	}
	if record.ID == "" {
		t.Fatal("expected clone ID to be assigned")
	}
	if record.Status != registry.StatusDraft {
		t.Fatalf("expected draft status, got %s", record.Status)
	}

	fetched, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.Name != "My Clone" {
		t.Fatalf("unexpected fetched record: %#v", fetched)
	}
	if fetched.AudioURL != "https://cdn/audio.mp3" {
		t.Fatalf("unexpected audio url: %q", fetched.AudioURL)
	}
}

func TestNewCloneRequiresOwnerAndName(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if _, err := store.NewClone(ctx, "", "Name", "", "", registry.DefaultSubmitOptions()); err == nil {
		t.Fatal("expected error when owner missing")
	}
	if _, err := store.NewClone(ctx, "owner", "  ", "", "", registry.DefaultSubmitOptions()); err == nil {
		t.Fatal("expected error when name missing")
	}
}

func TestNewCloneStoresSubmitOptions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	opts := registry.SubmitOptions{Fluent: false, PadAudio: 1.5, Stitch: false}
	record, err := store.NewClone(ctx, "owner-1", "Tuned", "https://cdn/a.mp3", "https://cdn/i.png", opts)
	if err != nil {
		t.Fatalf("NewClone failed: %v", err)
	}
	if record.Options != opts {
		t.Fatalf("options = %+v, want %+v", record.Options, opts)
	}

	fetched, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Options != opts {
		t.Fatalf("fetched options = %+v, want %+v", fetched.Options, opts)
	}
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	record, err := store.GetByID(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil record, got %#v", record)
	}
}

func TestTransitionFollowsForwardPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record := testsupport.NewDraftClone(t, store, "owner-1", "Pathing")

	steps := []struct {
		from registry.Status
		to   registry.Status
	}{
		{registry.StatusDraft, registry.StatusUploading},
		{registry.StatusUploading, registry.StatusSubmitted},
		{registry.StatusSubmitted, registry.StatusPolling},
		{registry.StatusPolling, registry.StatusReady},
	}
	for i, step := range steps {
		var err error
		switch step.to {
		case registry.StatusSubmitted:
			err = store.SetSubmitted(ctx, record.ID, fmt.Sprintf("job-%d", i))
		case registry.StatusReady:
			err = store.MarkReady(ctx, record.ID, "https://cdn/result.mp4", "https://cdn/thumb.png", 12.5)
		default:
			err = store.Transition(ctx, record.ID, step.from, step.to)
		}
		if err != nil {
			t.Fatalf("step %s -> %s failed: %v", step.from, step.to, err)
		}
	}

	final, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if final.Status != registry.StatusReady {
		t.Fatalf("expected ready, got %s", final.Status)
	}
	if final.ResultVideoURL != "https://cdn/result.mp4" {
		t.Fatalf("unexpected result url: %q", final.ResultVideoURL)
	}
	if final.DurationSeconds != 12.5 {
		t.Fatalf("unexpected duration: %v", final.DurationSeconds)
	}
}

func TestTransitionRejectsSkipsAndRegressions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record := testsupport.NewDraftClone(t, store, "owner-1", "Strict")

	if err := store.Transition(ctx, record.ID, registry.StatusDraft, registry.StatusPolling); !errors.Is(err, services.ErrState) {
		t.Fatalf("expected state error for skip, got %v", err)
	}

	if err := store.Transition(ctx, record.ID, registry.StatusDraft, registry.StatusUploading); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if err := store.Transition(ctx, record.ID, registry.StatusUploading, registry.StatusDraft); !errors.Is(err, services.ErrState) {
		t.Fatalf("expected state error for regression, got %v", err)
	}

	// The guard inside the UPDATE catches a stale caller whose view of the
	// current state is behind the database.
	if err := store.Transition(ctx, record.ID, registry.StatusDraft, registry.StatusUploading); !errors.Is(err, services.ErrState) {
		t.Fatalf("expected state error for stale transition, got %v", err)
	}
}

func TestTransitionMissingRecordIsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	err := store.Transition(context.Background(), "ghost", registry.StatusDraft, registry.StatusUploading)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetSubmittedWritesJobIDOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record := testsupport.NewDraftClone(t, store, "owner-1", "Jobbed")
	if err := store.Transition(ctx, record.ID, registry.StatusDraft, registry.StatusUploading); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if err := store.SetSubmitted(ctx, record.ID, "job-123"); err != nil {
		t.Fatalf("SetSubmitted failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.JobID != "job-123" {
		t.Fatalf("unexpected job id: %q", fetched.JobID)
	}

	if err := store.SetSubmitted(ctx, record.ID, "job-456"); !errors.Is(err, services.ErrState) {
		t.Fatalf("expected state error on resubmission, got %v", err)
	}

	byJob, err := store.GetByJobID(ctx, "job-123")
	if err != nil {
		t.Fatalf("GetByJobID failed: %v", err)
	}
	if byJob == nil || byJob.ID != record.ID {
		t.Fatalf("expected to find clone by job id, got %#v", byJob)
	}
}

func TestMarkFailedFromAnyNonTerminalState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record := testsupport.NewDraftClone(t, store, "owner-1", "Doomed")
	if err := store.MarkFailed(ctx, record.ID, "provider rejected media"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != registry.StatusFailed {
		t.Fatalf("expected failed, got %s", fetched.Status)
	}
	if fetched.ErrorMessage != "provider rejected media" {
		t.Fatalf("unexpected error message: %q", fetched.ErrorMessage)
	}

	if err := store.MarkFailed(ctx, record.ID, "again"); !errors.Is(err, services.ErrState) {
		t.Fatalf("expected state error on terminal record, got %v", err)
	}
}

func TestRecordUsageIncrementsWithoutLostUpdates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record := testsupport.NewDraftClone(t, store, "owner-1", "Popular")

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.RecordUsage(ctx, record.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("RecordUsage failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.UsageCount != workers {
		t.Fatalf("expected usage count %d, got %d", workers, fetched.UsageCount)
	}
	if fetched.LastUsedAt == nil {
		t.Fatal("expected last used timestamp to be set")
	}
}

func TestConcurrentTransitionsOnDistinctRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first := testsupport.NewDraftClone(t, store, "owner-1", "First")
	second := testsupport.NewDraftClone(t, store, "owner-2", "Second")

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(cloneID string) {
			defer wg.Done()
			if err := store.Transition(ctx, cloneID, registry.StatusDraft, registry.StatusUploading); err != nil {
				errs <- err
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Transition failed: %v", err)
	}

	for _, id := range []string{first.ID, second.ID} {
		fetched, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if fetched.Status != registry.StatusUploading {
			t.Fatalf("expected uploading for %s, got %s", id, fetched.Status)
		}
	}
}

func TestListFiltersByOwnerAndStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	mine := testsupport.NewDraftClone(t, store, "owner-a", "Mine")
	testsupport.NewDraftClone(t, store, "owner-b", "Theirs")

	records, err := store.List(ctx, "owner-a")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != mine.ID {
		t.Fatalf("expected only owner-a records, got %#v", records)
	}

	if err := store.Transition(ctx, mine.ID, registry.StatusDraft, registry.StatusUploading); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	records, err = store.List(ctx, "", registry.StatusUploading)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != mine.ID {
		t.Fatalf("expected uploading filter to match one record, got %#v", records)
	}
}

func TestNextForStatusesReturnsOldest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first := testsupport.NewDraftClone(t, store, "owner-1", "Older")
	testsupport.NewDraftClone(t, store, "owner-1", "Newer")

	next, err := store.NextForStatuses(ctx, registry.StatusDraft)
	if err != nil {
		t.Fatalf("NextForStatuses failed: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("expected oldest draft, got %#v", next)
	}

	none, err := store.NextForStatuses(ctx, registry.StatusPolling)
	if err != nil {
		t.Fatalf("NextForStatuses failed: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no polling records, got %#v", none)
	}
}

func TestRemoveReportsWhetherDeleted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	record := testsupport.NewDraftClone(t, store, "owner-1", "Gone")

	deleted, err := store.Remove(ctx, record.ID)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !deleted {
		t.Fatal("expected record to be deleted")
	}

	deleted, err = store.Remove(ctx, record.ID)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if deleted {
		t.Fatal("expected second delete to be a no-op")
	}
}

func TestHealthAggregatesStatuses(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.NewDraftClone(t, store, "owner-1", "Draft")
	moving := testsupport.NewDraftClone(t, store, "owner-1", "Moving")
	failing := testsupport.NewDraftClone(t, store, "owner-1", "Failing")

	if err := store.Transition(ctx, moving.ID, registry.StatusDraft, registry.StatusUploading); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if err := store.MarkFailed(ctx, failing.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 3 || health.Draft != 1 || health.InFlight != 1 || health.Failed != 1 {
		t.Fatalf("unexpected health summary: %#v", health)
	}
}
