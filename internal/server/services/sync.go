package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mapster/mapster/internal/common"
	"github.com/mapster/mapster/internal/logging"
	"github.com/mapster/mapster/internal/server/images"
	"github.com/mapster/mapster/internal/server/models"
	"github.com/mapster/mapster/internal/server/repositories/repomanager"
	"github.com/mapster/mapster/internal/timex"
)

// SyncService computes incremental deltas of a user's itineraries.
type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	images      images.Store
	log         logging.Logger
}

func NewSyncService(db *sql.DB, m repomanager.RepositoryManager, store images.Store, log logging.Logger) *SyncService {
	return &SyncService{db: db, repomanager: m, images: store, log: log.With("module", "sync")}
}

// Pull returns every record of userID, tombstones included, modified
// strictly after the watermark. An empty watermark returns everything.
// Like-only changes do not move last_modified and are not reported.
func (s *SyncService) Pull(ctx context.Context, userID, watermark string) ([]models.Record, error) {
	since, err := timex.ParseWatermark(watermark)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidWatermark, err)
	}

	recs, err := s.repomanager.Itineraries(s.db).SelectUpdated(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	var active []*models.Itinerary
	for _, r := range recs {
		if it, ok := r.(*models.Itinerary); ok {
			active = append(active, it)
		}
	}
	if err := loadImages(ctx, s.images, s.log, active); err != nil {
		return nil, err
	}

	s.log.Debug(ctx, "sync pulled", "user", userID, "since", since, "records", len(recs))
	return recs, nil
}
