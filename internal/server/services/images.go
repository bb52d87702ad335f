package services

import (
	"context"
	"errors"

	"github.com/mapster/mapster/internal/common"
	"github.com/mapster/mapster/internal/logging"
	"github.com/mapster/mapster/internal/server/images"
	"github.com/mapster/mapster/internal/server/models"
	"golang.org/x/sync/errgroup"
)

// imageFetchConcurrency bounds parallel GETs against the blob store.
const imageFetchConcurrency = 8

// loadImage fills it.Image from the blob store. A missing object leaves the
// itinerary without an image.
func loadImage(ctx context.Context, store images.Store, log logging.Logger, it *models.Itinerary) error {
	if !it.HasImage() {
		return nil
	}
	data, err := store.Get(ctx, it.ImageKey)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			log.Warn(ctx, "image object missing", "itinerary", it.ID, "key", it.ImageKey)
			return nil
		}
		return err
	}
	it.Image = data
	return nil
}

func loadImages(ctx context.Context, store images.Store, log logging.Logger, its []*models.Itinerary) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(imageFetchConcurrency)
	for _, it := range its {
		g.Go(func() error {
			return loadImage(ctx, store, log, it)
		})
	}
	return g.Wait()
}

// dropImage removes an object that is no longer referenced. Failures leave
// an orphan behind and are only logged.
func dropImage(ctx context.Context, store images.Store, log logging.Logger, key string) {
	if key == "" {
		return
	}
	if err := store.Delete(ctx, key); err != nil {
		log.Error(ctx, "failed to delete image object", "key", key, "error", err)
	}
}
