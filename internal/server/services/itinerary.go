package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mapster/mapster/internal/common"
	"github.com/mapster/mapster/internal/dbx"
	"github.com/mapster/mapster/internal/logging"
	"github.com/mapster/mapster/internal/server/images"
	"github.com/mapster/mapster/internal/server/models"
	"github.com/mapster/mapster/internal/server/repositories/repomanager"
	"github.com/mapster/mapster/internal/timex"
)

// AnonymousAuthor is shown when an itinerary's author has no account record.
const AnonymousAuthor = "Anonymous"

// NameResolver resolves a user id to a display name.
type NameResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// ItineraryService manages the itinerary lifecycle: create, edit,
// soft-delete, views and likes.
type ItineraryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	images      images.Store
	names       NameResolver
	log         logging.Logger
	now         func() time.Time
}

func NewItineraryService(db *sql.DB, m repomanager.RepositoryManager, store images.Store, names NameResolver, log logging.Logger) *ItineraryService {
	return &ItineraryService{
		db:          db,
		repomanager: m,
		images:      store,
		names:       names,
		log:         log.With("module", "itineraries"),
		now:         timex.Now,
	}
}

func validate(in models.ItineraryInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: itinerary name is required", common.ErrInvalidInput)
	}
	for i, wp := range in.Waypoints {
		if wp.Latitude < -90 || wp.Latitude > 90 || wp.Longitude < -180 || wp.Longitude > 180 {
			return fmt.Errorf("%w: waypoint %d is out of range", common.ErrInvalidInput, i)
		}
	}
	return nil
}

// putImage stores img under a fresh key and returns the key.
func (s *ItineraryService) putImage(ctx context.Context, img *models.Image, now time.Time) (string, error) {
	key := images.NewKey(now)
	if err := s.images.Put(ctx, key, img.Data, img.Format.ContentType()); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	return key, nil
}

// Create saves a new itinerary owned by ownerID.
func (s *ItineraryService) Create(ctx context.Context, ownerID string, in models.ItineraryInput) (*models.Itinerary, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	now := s.now()

	it := &models.Itinerary{
		OwnerID:        ownerID,
		Name:           in.Name,
		Description:    in.Description,
		Waypoints:      in.Waypoints,
		UploadDatetime: now,
		LastModified:   now,
		Likes:          []string{},
	}
	if it.Waypoints == nil {
		it.Waypoints = []models.Waypoint{}
	}

	if in.Image != nil {
		key, err := s.putImage(ctx, in.Image, now)
		if err != nil {
			return nil, err
		}
		it.ImageKey, it.ImageFormat, it.Image = key, in.Image.Format, in.Image.Data
	}

	if err := s.repomanager.Itineraries(s.db).Create(ctx, it); err != nil {
		dropImage(ctx, s.images, s.log, it.ImageKey)
		return nil, err
	}

	s.log.Info(ctx, "itinerary created", "id", it.ID, "owner", ownerID)
	return it, nil
}

// Update edits an active itinerary of ownerID. The stored image is kept
// unless in.Image is set.
func (s *ItineraryService) Update(ctx context.Context, id, ownerID string, in models.ItineraryInput) (*models.Itinerary, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	now := s.now()

	it := &models.Itinerary{
		ID:          id,
		OwnerID:     ownerID,
		Name:        in.Name,
		Description: in.Description,
		Waypoints:   in.Waypoints,
	}
	if it.Waypoints == nil {
		it.Waypoints = []models.Waypoint{}
	}

	replace := in.Image != nil
	if replace {
		key, err := s.putImage(ctx, in.Image, now)
		if err != nil {
			return nil, err
		}
		it.ImageKey, it.ImageFormat = key, in.Image.Format
	}

	repo := s.repomanager.Itineraries(s.db)
	prevKey, err := repo.Update(ctx, it, replace, now)
	if err != nil {
		if replace {
			dropImage(ctx, s.images, s.log, it.ImageKey)
		}
		return nil, err
	}
	if replace && prevKey != it.ImageKey {
		dropImage(ctx, s.images, s.log, prevKey)
	}

	if it.Likes, err = repo.Likes(ctx, it.ID); err != nil {
		return nil, err
	}
	if replace {
		it.Image = in.Image.Data
	} else if err := loadImage(ctx, s.images, s.log, it); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "itinerary updated", "id", id, "owner", ownerID)
	return it, nil
}

// SoftDelete tombstones the itinerary and drops its likes. Deleting a
// tombstone again succeeds.
func (s *ItineraryService) SoftDelete(ctx context.Context, id, ownerID string) error {
	var prevKey string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Itineraries(tx)

		key, err := repo.SoftDelete(ctx, id, ownerID, s.now())
		if err != nil {
			return err
		}
		prevKey = key
		return repo.DeleteLikes(ctx, id)
	})
	if err != nil {
		return err
	}

	dropImage(ctx, s.images, s.log, prevKey)
	s.log.Info(ctx, "itinerary deleted", "id", id, "owner", ownerID)
	return nil
}

// View records a view by viewerID ("" for anonymous) and returns the detail
// view. Owners viewing their own itinerary do not count.
func (s *ItineraryService) View(ctx context.Context, id, viewerID string) (*models.DetailView, error) {
	it, err := s.repomanager.Itineraries(s.db).RecordView(ctx, id, viewerID)
	if err != nil {
		return nil, err
	}

	author, err := s.names.DisplayName(ctx, it.OwnerID)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		author = AnonymousAuthor
	}

	if err := loadImage(ctx, s.images, s.log, it); err != nil {
		return nil, err
	}

	return &models.DetailView{
		Itinerary:    it,
		AuthorName:   author,
		CreationDate: timex.FormatCreationDate(it.UploadDatetime),
		LikesCount:   it.LikesCount(),
		IsAuthor:     viewerID != "" && viewerID == it.OwnerID,
		HasLiked:     viewerID != "" && it.LikedBy(viewerID),
		NumViews:     it.NumViews,
	}, nil
}

// ToggleLike flips userID's membership in the likes set and returns the
// new state with the count after the toggle.
func (s *ItineraryService) ToggleLike(ctx context.Context, id, userID string) (*models.LikeResult, error) {
	var res models.LikeResult
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Itineraries(tx)

		if err := repo.LockActive(ctx, id); err != nil {
			return err
		}
		removed, err := repo.RemoveLike(ctx, id, userID)
		if err != nil {
			return err
		}
		if !removed {
			if err := repo.AddLike(ctx, id, userID); err != nil {
				return err
			}
		}
		res.Liked = !removed
		res.LikesCount, err = repo.CountLikes(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// GetOwned returns an active itinerary of ownerID with its image, for editing.
func (s *ItineraryService) GetOwned(ctx context.Context, id, ownerID string) (*models.Itinerary, error) {
	it, err := s.repomanager.Itineraries(s.db).GetOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if err := loadImage(ctx, s.images, s.log, it); err != nil {
		return nil, err
	}
	return it, nil
}

// ListMine returns the owner's active itineraries, newest first.
func (s *ItineraryService) ListMine(ctx context.Context, ownerID string) ([]*models.Itinerary, error) {
	its, err := s.repomanager.Itineraries(s.db).ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if err := loadImages(ctx, s.images, s.log, its); err != nil {
		return nil, err
	}
	return its, nil
}
