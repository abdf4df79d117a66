// Package media defines the sample buckets (voice, image, video) and the
// upload validation rules applied before ingestion.
package media
