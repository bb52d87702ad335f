package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mapster/mapster/internal/common"
	"github.com/mapster/mapster/internal/logging"
	"github.com/mapster/mapster/internal/server/images"
	"github.com/mapster/mapster/internal/server/models"
	"github.com/mapster/mapster/internal/server/repositories/repomanager"
)

// SearchService serves public listings and text search. It never returns
// tombstones.
type SearchService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	images      images.Store
	log         logging.Logger
}

func NewSearchService(db *sql.DB, m repomanager.RepositoryManager, store images.Store, log logging.Logger) *SearchService {
	return &SearchService{db: db, repomanager: m, images: store, log: log.With("module", "search")}
}

// ParseFilters reads the search filter payload, a JSON object with optional
// boolean flags mostViewed and mostLiked. mostViewed wins when both are set;
// no flag (or an empty payload) orders by upload date.
func ParseFilters(raw string) (models.SortMode, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.SortRecent, nil
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrFilterParse, err)
	}
	if m == nil {
		return "", fmt.Errorf("%w: filters must be an object", common.ErrFilterParse)
	}

	flag := func(name string) (bool, error) {
		v, ok := m[name]
		if !ok || v == nil {
			return false, nil
		}
		b, ok := v.(bool)
		if !ok {
			return false, fmt.Errorf("%w: %s must be a boolean", common.ErrFilterParse, name)
		}
		return b, nil
	}

	viewed, err := flag("mostViewed")
	if err != nil {
		return "", err
	}
	liked, err := flag("mostLiked")
	if err != nil {
		return "", err
	}

	switch {
	case viewed:
		return models.SortViews, nil
	case liked:
		return models.SortLikes, nil
	default:
		return models.SortRecent, nil
	}
}

// List returns all active itineraries in the given order.
func (s *SearchService) List(ctx context.Context, mode models.SortMode) ([]*models.Itinerary, error) {
	return s.query(ctx, "", mode)
}

// Search matches query case-insensitively against name and description.
func (s *SearchService) Search(ctx context.Context, query, filters string) ([]*models.Itinerary, error) {
	mode, err := ParseFilters(filters)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, query, mode)
}

func (s *SearchService) query(ctx context.Context, query string, mode models.SortMode) ([]*models.Itinerary, error) {
	its, err := s.repomanager.Itineraries(s.db).ListPublic(ctx, query, mode)
	if err != nil {
		return nil, err
	}
	if err := loadImages(ctx, s.images, s.log, its); err != nil {
		return nil, err
	}
	return its, nil
}
