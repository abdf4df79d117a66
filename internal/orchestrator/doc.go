// Package orchestrator drives clone records through their lifecycle,
// submitting drafts to the synthesis provider and polling jobs to completion.
//
// The Manager runs a background loop over active records; each Step performs
// at most one provider call and one registry write so a crash between steps
// leaves the record in a resumable state.
package orchestrator
