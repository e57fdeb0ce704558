package api

import (
	"context"

	"github.com/soaringjerry/comparaholic/internal/services"
)

// Store is the full backend surface. Each service sees only its own slice of it.
type Store interface {
	services.FormStateStore
	services.MigrationStore
	services.ResultsStore
	services.AuthStore
	services.ProfileStore

	// ListAllSubmissions returns every non-deleted row of both tables for a
	// category, claimed visitor rows included. Used by offline tooling.
	ListAllSubmissions(ctx context.Context, category services.CategoryKey) ([]*services.Submission, error)
}

var _ Store = (*memoryStore)(nil)
