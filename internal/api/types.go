// Package api defines wire-format types and converters shared by the daemon
// HTTP handlers and the CLI client.
package api

import (
	"time"

	"mimic/internal/registry"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Clone describes a clone record in a transport-friendly format.
type Clone struct {
	ID              string  `json:"id"`
	OwnerID         string  `json:"ownerId"`
	Name            string  `json:"name"`
	Status          string  `json:"status"`
	JobID           string  `json:"jobId,omitempty"`
	AudioURL        string  `json:"audioUrl,omitempty"`
	ImageURL        string  `json:"imageUrl,omitempty"`
	ResultVideoURL  string  `json:"resultVideoUrl,omitempty"`
	ThumbnailURL    string  `json:"thumbnailUrl,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	UsageCount      int64   `json:"usageCount"`
	LastUsedAt      string  `json:"lastUsedAt,omitempty"`
	ErrorMessage    string  `json:"errorMessage,omitempty"`
	CreatedAt       string  `json:"createdAt,omitempty"`
	UpdatedAt       string  `json:"updatedAt,omitempty"`
}

// IngestedFile reports the outcome of a single media ingestion.
type IngestedFile struct {
	Bucket      string `json:"bucket"`
	URL         string `json:"url"`
	ContentHash string `json:"contentHash"`
	StoragePath string `json:"storagePath"`
	ByteSize    int64  `json:"byteSize"`
	Duplicate   bool   `json:"duplicate"`
}

// IngestResponse wraps the per-field ingestion outcomes.
type IngestResponse struct {
	Success bool                    `json:"success"`
	Files   map[string]IngestedFile `json:"files"`
}

// CreateCloneRequest is the payload for starting a new clone job. The
// rendering options use pointers so an absent field keeps the provider
// defaults (fluent and stitch on, no audio padding).
type CreateCloneRequest struct {
	OwnerID  string   `json:"ownerId"`
	Name     string   `json:"name"`
	AudioURL string   `json:"audioUrl"`
	ImageURL string   `json:"imageUrl"`
	Fluent   *bool    `json:"fluent,omitempty"`
	PadAudio *float64 `json:"padAudio,omitempty"`
	Stitch   *bool    `json:"stitch,omitempty"`
}

// SubmitOptions resolves the optional rendering fields against the defaults.
func (r CreateCloneRequest) SubmitOptions() registry.SubmitOptions {
	opts := registry.DefaultSubmitOptions()
	if r.Fluent != nil {
		opts.Fluent = *r.Fluent
	}
	if r.PadAudio != nil {
		opts.PadAudio = *r.PadAudio
	}
	if r.Stitch != nil {
		opts.Stitch = *r.Stitch
	}
	return opts
}

// CloneResponse wraps a single clone.
type CloneResponse struct {
	Success bool  `json:"success"`
	Clone   Clone `json:"clone"`
}

// CloneListResponse wraps a collection of clones.
type CloneListResponse struct {
	Success bool    `json:"success"`
	Clones  []Clone `json:"clones"`
}

// DeleteResponse reports the outcome of a delete operation.
type DeleteResponse struct {
	Success bool   `json:"success"`
	Deleted bool   `json:"deleted"`
	Message string `json:"message,omitempty"`
}

// CreditsResponse wraps the provider account balance.
type CreditsResponse struct {
	Success   bool    `json:"success"`
	Remaining float64 `json:"remaining"`
	Total     float64 `json:"total"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Success          bool           `json:"success"`
	Running          bool           `json:"running"`
	PID              int            `json:"pid"`
	RegistryDBPath   string         `json:"registryDbPath"`
	LockFilePath     string         `json:"lockFilePath"`
	SynthesisReady   bool           `json:"synthesisReady"`
	OrchestratorBusy bool           `json:"orchestratorRunning"`
	CloneStats       map[string]int `json:"cloneStats"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// FromRecord converts a registry record into its API representation.
func FromRecord(record *registry.CloneRecord) Clone {
	if record == nil {
		return Clone{}
	}
	clone := Clone{
		ID:              record.ID,
		OwnerID:         record.OwnerID,
		Name:            record.Name,
		Status:          string(record.Status),
		JobID:           record.JobID,
		AudioURL:        record.AudioURL,
		ImageURL:        record.ImageURL,
		ResultVideoURL:  record.ResultVideoURL,
		ThumbnailURL:    record.ThumbnailURL,
		DurationSeconds: record.DurationSeconds,
		UsageCount:      record.UsageCount,
		ErrorMessage:    record.ErrorMessage,
		CreatedAt:       formatTime(record.CreatedAt),
		UpdatedAt:       formatTime(record.UpdatedAt),
	}
	if record.LastUsedAt != nil {
		clone.LastUsedAt = formatTime(*record.LastUsedAt)
	}
	return clone
}

// FromRecords converts a slice of registry records.
func FromRecords(records []*registry.CloneRecord) []Clone {
	clones := make([]Clone, 0, len(records))
	for _, record := range records {
		clones = append(clones, FromRecord(record))
	}
	return clones
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
