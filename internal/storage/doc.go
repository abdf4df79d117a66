// Package storage uploads media samples to an S3-compatible object store,
// retrying transient failures with exponential backoff and reporting
// monotonic progress.
package storage
