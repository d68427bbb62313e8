// Package repository holds the authoritative per-subject session state.
package repository

import (
	"context"
	"time"

	"github.com/okian/smartsession/internal/domain/model"
)

// Store provides read/write access to the session roster.
type Store interface {
	// Upsert replaces the whole record for state.SubjectID, creating it if absent.
	Upsert(ctx context.Context, state model.SubjectState) error

	// Snapshot returns every current record. Order is unspecified.
	Snapshot(ctx context.Context) []model.SubjectState

	// Get returns one record or ErrNotFound.
	Get(ctx context.Context, subjectID string) (model.SubjectState, error)

	// Count returns the number of tracked subjects.
	Count(ctx context.Context) int

	// Delete removes a record and reports whether it existed.
	Delete(ctx context.Context, subjectID string) bool

	// Stale returns records whose LastUpdated is before the cutoff.
	Stale(ctx context.Context, before time.Time) []model.SubjectState
}
