// Package services defines shared error classification utilities consumed by
// the ingestion pipeline, the upload transport, and the synthesis
// integrations.
//
// Key responsibilities:
//   - Structured error markers plus the Wrap helper that keep stage and
//     operation context attached to failures.
//   - Retryability classification so callers can distinguish transient
//     failures (worth retrying) from validation, configuration, and permanent
//     provider failures (not worth retrying).
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform across the service.
package services
