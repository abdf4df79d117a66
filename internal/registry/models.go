package registry

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a clone record.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusUploading Status = "uploading"
	StatusSubmitted Status = "submitted"
	StatusPolling   Status = "polling"
	StatusReady     Status = "ready"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{
	StatusDraft,
	StatusUploading,
	StatusSubmitted,
	StatusPolling,
	StatusReady,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// forwardTransitions holds the single legal forward step from each state.
// failed is reachable from any non-terminal state and handled separately.
var forwardTransitions = map[Status]Status{
	StatusDraft:     StatusUploading,
	StatusUploading: StatusSubmitted,
	StatusSubmitted: StatusPolling,
	StatusPolling:   StatusReady,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further automatic transition can occur.
func (s Status) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

// CanTransition reports whether moving from one status to another is legal.
// The state machine only moves forward; failed is terminal and reachable from
// any non-terminal state.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	if to == StatusFailed {
		return !from.IsTerminal()
	}
	return forwardTransitions[from] == to
}

// SubmitOptions are the provider rendering knobs captured at creation time and
// forwarded verbatim when the clone is submitted.
type SubmitOptions struct {
	Fluent   bool
	PadAudio float64
	Stitch   bool
}

// DefaultSubmitOptions mirrors the provider's recommended defaults.
func DefaultSubmitOptions() SubmitOptions {
	return SubmitOptions{Fluent: true, Stitch: true}
}

// CloneRecord represents a clone and its synthesis job persisted in SQLite.
type CloneRecord struct {
	ID              string
	OwnerID         string
	Name            string
	Status          Status
	JobID           string
	AudioURL        string
	ImageURL        string
	Options         SubmitOptions
	ResultVideoURL  string
	ThumbnailURL    string
	DurationSeconds float64
	UsageCount      int64
	LastUsedAt      *time.Time
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ContentRecord describes one distinct uploaded blob for an owner and bucket.
// Records are immutable once written and uniquely keyed by
// (owner, bucket, digest).
type ContentRecord struct {
	OwnerID      string
	Bucket       string
	ContentHash  string
	StoragePath  string
	OriginalName string
	ByteSize     int64
	CreatedAt    time.Time
}

// HealthSummary describes aggregated clone counts per key lifecycle states.
type HealthSummary struct {
	Total    int
	Draft    int
	InFlight int
	Ready    int
	Failed   int
}
