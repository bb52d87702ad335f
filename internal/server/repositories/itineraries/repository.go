// Package itineraries persists itineraries, their likes and tombstones.
package itineraries

import (
	"context"
	"time"

	"github.com/mapster/mapster/internal/server/models"
)

// Repository is the itinerary store. Every owner-scoped operation puts the
// owner in its WHERE clause; a row that exists under another owner yields
// common.ErrPermission, anything else missing yields common.ErrorNotFound.
// Ids that are not UUIDs are reported as not found.
type Repository interface {
	// Create inserts it as an active itinerary and fills in it.ID.
	// common.ErrDuplicateName when the owner already has an active one of that name.
	Create(ctx context.Context, it *models.Itinerary) error

	// Update replaces name, description and waypoints of an active
	// itinerary, and the image reference when replaceImage is set. It
	// returns the image key that was stored before the update.
	Update(ctx context.Context, it *models.Itinerary, replaceImage bool, now time.Time) (string, error)

	// SoftDelete turns the itinerary into a tombstone. Deleting a tombstone
	// again succeeds. It returns the image key the row held.
	SoftDelete(ctx context.Context, id, ownerID string, now time.Time) (string, error)

	OwnerOf(ctx context.Context, id string) (string, error)

	// RecordView bumps num_views unless viewerID is the owner and returns
	// the active itinerary as it is after the bump.
	RecordView(ctx context.Context, id, viewerID string) (*models.Itinerary, error)

	// LockActive takes a share lock on an active itinerary row.
	LockActive(ctx context.Context, id string) error
	AddLike(ctx context.Context, id, userID string) error
	// RemoveLike reports whether a like was removed.
	RemoveLike(ctx context.Context, id, userID string) (bool, error)
	DeleteLikes(ctx context.Context, id string) error
	CountLikes(ctx context.Context, id string) (int, error)
	Likes(ctx context.Context, id string) ([]string, error)

	// SelectUpdated returns the owner's records, tombstones included, with
	// last_modified strictly after since, oldest first.
	SelectUpdated(ctx context.Context, ownerID string, since time.Time) ([]models.Record, error)

	// ListPublic returns active itineraries whose name or description
	// contains query (case-insensitive; "" matches all), in the given order.
	ListPublic(ctx context.Context, query string, order models.SortMode) ([]*models.Itinerary, error)
	// ListByOwner returns the owner's active itineraries, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Itinerary, error)
	GetOwned(ctx context.Context, id, ownerID string) (*models.Itinerary, error)
}
