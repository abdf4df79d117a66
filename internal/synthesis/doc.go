// Package synthesis is a typed client for the talking-head synthesis
// provider's HTTP API: job submission, status polling, deletion, and credit
// balance queries.
package synthesis
