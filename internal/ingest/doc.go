// Package ingest hashes uploaded media samples and stores them through the
// upload transport, suppressing duplicates via the registry's content index.
//
// Deduplication is best effort. When the index cannot be read or written the
// pipeline logs a warning and stores the sample anyway; only a uniqueness
// conflict changes the outcome, in which case the already-recorded object is
// returned as a duplicate.
package ingest
