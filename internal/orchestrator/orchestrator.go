package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"mimic/internal/logging"
	"mimic/internal/registry"
	"mimic/internal/services"
	"mimic/internal/synthesis"
)

// SynthesisClient is the provider surface the orchestrator drives.
type SynthesisClient interface {
	Submit(ctx context.Context, req synthesis.SubmitRequest) (synthesis.Job, error)
	Status(ctx context.Context, jobID string) (synthesis.Job, error)
	Delete(ctx context.Context, jobID string) error
}

// Orchestrator advances clone records through their lifecycle: attach media,
// submit to the provider, poll until terminal, persist the outcome.
type Orchestrator struct {
	store  *registry.Store
	client SynthesisClient
	logger *slog.Logger
}

// New constructs an orchestrator over the given store and provider client.
func New(store *registry.Store, client SynthesisClient, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		store:  store,
		client: client,
		logger: logger.With(logging.String(logging.FieldComponent, "orchestrator")),
	}
}

// CreateClone registers a new draft clone pointing at previously ingested
// media. The submit options ride along on the record so the background loop
// forwards them when the job goes out.
func (o *Orchestrator) CreateClone(ctx context.Context, ownerID, name, audioURL, imageURL string, opts registry.SubmitOptions) (*registry.CloneRecord, error) {
	if strings.TrimSpace(audioURL) == "" || strings.TrimSpace(imageURL) == "" {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "create clone",
			"audio and image urls are required", nil)
	}
	record, err := o.store.NewClone(ctx, ownerID, name, audioURL, imageURL, opts)
	if err != nil {
		return nil, err
	}
	o.logger.Info("clone created",
		logging.String(logging.FieldCloneID, record.ID),
		logging.String(logging.FieldOwner, record.OwnerID))
	return record, nil
}

// Step advances one clone a single lifecycle step. It returns the refreshed
// record. Transient provider failures leave the record where it is so the
// next pass retries; permanent ones drive it to failed.
func (o *Orchestrator) Step(ctx context.Context, record *registry.CloneRecord) (*registry.CloneRecord, error) {
	if record == nil {
		return nil, errors.New("record is required")
	}

	var err error
	switch record.Status {
	case registry.StatusDraft:
		err = o.stepDraft(ctx, record)
	case registry.StatusUploading:
		err = o.stepUploading(ctx, record)
	case registry.StatusSubmitted:
		err = o.store.Transition(ctx, record.ID, registry.StatusSubmitted, registry.StatusPolling)
	case registry.StatusPolling:
		err = o.stepPolling(ctx, record)
	default:
		return record, nil
	}
	if err != nil {
		return nil, err
	}
	return o.store.GetByID(ctx, record.ID)
}

// stepDraft verifies the draft references its media and moves it into the
// upload-confirmation state. Drafts without media cannot proceed.
func (o *Orchestrator) stepDraft(ctx context.Context, record *registry.CloneRecord) error {
	if strings.TrimSpace(record.AudioURL) == "" || strings.TrimSpace(record.ImageURL) == "" {
		return o.fail(ctx, record, "clone is missing ingested media")
	}
	return o.store.Transition(ctx, record.ID, registry.StatusDraft, registry.StatusUploading)
}

// stepUploading submits the clone to the provider and records the job id.
func (o *Orchestrator) stepUploading(ctx context.Context, record *registry.CloneRecord) error {
	job, err := o.client.Submit(ctx, synthesis.SubmitRequest{
		AudioURL: record.AudioURL,
		ImageURL: record.ImageURL,
		Fluent:   record.Options.Fluent,
		PadAudio: record.Options.PadAudio,
		Stitch:   record.Options.Stitch,
	})
	if err != nil {
		return o.handleProviderError(ctx, record, "submit", err)
	}

	if err := o.store.SetSubmitted(ctx, record.ID, job.ID); err != nil {
		return err
	}
	o.logger.Info("synthesis job submitted",
		logging.String(logging.FieldCloneID, record.ID),
		logging.String(logging.FieldJobID, job.ID))
	return nil
}

// stepPolling asks the provider for the job state. Cancellation and transient
// failures leave the record in polling so the loop resumes later.
func (o *Orchestrator) stepPolling(ctx context.Context, record *registry.CloneRecord) error {
	if strings.TrimSpace(record.JobID) == "" {
		return o.fail(ctx, record, "polling record has no job id")
	}

	job, err := o.client.Status(ctx, record.JobID)
	if err != nil {
		return o.handleProviderError(ctx, record, "poll", err)
	}

	switch job.Status {
	case synthesis.JobDone:
		if err := o.store.MarkReady(ctx, record.ID, job.ResultURL, job.ThumbnailURL, job.Duration); err != nil {
			return err
		}
		o.logger.Info("clone ready",
			logging.String(logging.FieldCloneID, record.ID),
			logging.String(logging.FieldJobID, record.JobID))
		return nil
	case synthesis.JobError, synthesis.JobRejected:
		detail := job.ErrorDetail
		if detail == "" {
			detail = fmt.Sprintf("provider reported %s", job.Status)
		}
		return o.fail(ctx, record, detail)
	default:
		// Still in flight; stay in polling.
		return nil
	}
}

// CancelJob cancels the provider-side job backing a clone and marks the clone
// failed. A provider that no longer knows the job is treated as cancelled.
func (o *Orchestrator) CancelJob(ctx context.Context, jobID string) (*registry.CloneRecord, error) {
	record, err := o.store.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, services.Wrap(services.ErrNotFound, "orchestrator", "cancel job",
			fmt.Sprintf("no clone for job %s", jobID), nil)
	}
	if record.Status.IsTerminal() {
		return nil, services.Wrap(services.ErrState, "orchestrator", "cancel job",
			fmt.Sprintf("clone %s already %s", record.ID, record.Status), nil)
	}

	if err := o.client.Delete(ctx, jobID); err != nil && !errors.Is(err, services.ErrNotFound) {
		return nil, err
	}
	if err := o.fail(ctx, record, "job cancelled"); err != nil {
		return nil, err
	}
	return o.store.GetByID(ctx, record.ID)
}

// handleProviderError decides whether a provider failure is worth retrying.
// Retryable errors and cancellation leave the record untouched; everything
// else fails the clone with the provider's explanation.
func (o *Orchestrator) handleProviderError(ctx context.Context, record *registry.CloneRecord, operation string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if services.IsRetryable(err) {
		o.logger.Warn("provider call failed, will retry",
			logging.String(logging.FieldCloneID, record.ID),
			logging.String("operation", operation),
			logging.Error(err))
		return nil
	}
	return o.fail(ctx, record, err.Error())
}

func (o *Orchestrator) fail(ctx context.Context, record *registry.CloneRecord, message string) error {
	if err := o.store.MarkFailed(ctx, record.ID, message); err != nil {
		return err
	}
	o.logger.Error("clone failed",
		logging.String(logging.FieldCloneID, record.ID),
		logging.String("reason", message))
	return nil
}
