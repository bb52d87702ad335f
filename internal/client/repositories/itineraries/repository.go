// Package itineraries is the sync client's local replica of a user's itineraries.
package itineraries

import (
	"context"

	"github.com/mapster/mapster/internal/client/models"
)

type Repository interface {
	// Upsert stores an active record, replacing any older copy.
	Upsert(ctx context.Context, it *models.Itinerary) error
	// Purge removes a record; purging an unknown id is not an error.
	Purge(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Itinerary, error)
	// List returns every stored record ordered by name.
	List(ctx context.Context) ([]*models.Itinerary, error)
	Clear(ctx context.Context) error
}
