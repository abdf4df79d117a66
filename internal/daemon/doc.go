// Package daemon coordinates the long-running mimic process.
//
// It wires configuration, the clone registry, the job orchestrator, and the
// HTTP API into a single lifecycle with flock-based locking to prevent
// multiple instances. Individual pipeline steps live in their own packages;
// the daemon focuses on startup, shutdown, and request routing.
package daemon
