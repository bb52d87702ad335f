// Package services contains the sync client's application logic: signing in
// and keeping the local replica in step with the server.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mapster/mapster/internal/client/client"
	"github.com/mapster/mapster/internal/client/models"
	"github.com/mapster/mapster/internal/client/repositories/itineraries"
	"github.com/mapster/mapster/internal/client/repositories/metadata"
	"github.com/mapster/mapster/internal/dbx"
	"github.com/mapster/mapster/internal/logging"
	"github.com/mapster/mapster/internal/timex"
)

// SyncService keeps a SQLite replica of one user's itineraries.
type SyncService struct {
	client client.Client
	db     *sql.DB
	log    logging.Logger
}

func NewSyncService(c client.Client, db *sql.DB, log logging.Logger) *SyncService {
	return &SyncService{client: c, db: db, log: log.With("module", "sync")}
}

func (s *SyncService) metadataRepo(db dbx.DBTX) *metadata.SQLiteRepository {
	return metadata.NewSQLiteRepository(db)
}

func (s *SyncService) itineraryRepo(db dbx.DBTX) itineraries.Repository {
	return itineraries.NewSQLiteRepository(db)
}

// Login signs in and stores the session. When a different user signs in the
// replica and its watermark are wiped first.
func (s *SyncService) Login(ctx context.Context, username, password string) error {
	tok, err := s.client.Login(ctx, username, password)
	if err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		meta := s.metadataRepo(tx)

		current, err := meta.GetString(ctx, metadata.KeyCurrentUser)
		if err != nil {
			return err
		}
		if current != "" && current != username {
			s.log.Info(ctx, "user changed, clearing replica", "previous", current, "user", username)
			if err := s.itineraryRepo(tx).Clear(ctx); err != nil {
				return err
			}
			if err := meta.Clear(ctx); err != nil {
				return err
			}
		}

		if err := meta.SetString(ctx, metadata.KeyCurrentUser, username); err != nil {
			return err
		}
		return s.saveTokens(ctx, meta, tok)
	})
}

func (s *SyncService) saveTokens(ctx context.Context, meta *metadata.SQLiteRepository, tok *models.Tokens) error {
	if err := meta.SetString(ctx, metadata.KeyAccessToken, tok.AccessToken); err != nil {
		return err
	}
	return meta.SetString(ctx, metadata.KeyRefreshToken, tok.RefreshToken)
}

// pull fetches changes, refreshing the access token once if it was rejected.
func (s *SyncService) pull(ctx context.Context, watermark string) ([]*models.Itinerary, error) {
	meta := s.metadataRepo(s.db)

	access, err := meta.GetString(ctx, metadata.KeyAccessToken)
	if err != nil {
		return nil, err
	}
	if access == "" {
		return nil, client.ErrUnauthorized
	}

	recs, err := s.client.Pull(ctx, access, watermark)
	if !errors.Is(err, client.ErrUnauthorized) {
		return recs, err
	}

	refresh, err := meta.GetString(ctx, metadata.KeyRefreshToken)
	if err != nil {
		return nil, err
	}
	tok, err := s.client.Refresh(ctx, refresh)
	if err != nil {
		return nil, err
	}
	if err := s.saveTokens(ctx, meta, tok); err != nil {
		return nil, err
	}
	return s.client.Pull(ctx, tok.AccessToken, watermark)
}

// SyncOnce pulls everything changed since the stored watermark and applies it
// in one transaction: active records are upserted, tombstones purged. The
// watermark then advances to the newest last_modified seen.
func (s *SyncService) SyncOnce(ctx context.Context) (*models.SyncResult, error) {
	watermark, err := s.metadataRepo(s.db).GetString(ctx, metadata.KeyLastSyncTime)
	if err != nil {
		return nil, err
	}

	recs, err := s.pull(ctx, watermark)
	if err != nil {
		return nil, err
	}

	var res models.SyncResult
	if watermark != "" {
		if res.Watermark, err = timex.ParseWatermark(watermark); err != nil {
			return nil, fmt.Errorf("stored watermark: %w", err)
		}
	}
	latest := res.Watermark

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.itineraryRepo(tx)
		for _, rec := range recs {
			modified, err := timex.ParseWatermark(rec.LastModified)
			if err != nil {
				return fmt.Errorf("record %s: %w", rec.ID, err)
			}
			latest = timex.Later(latest, modified)

			if rec.Deleted {
				if err := repo.Purge(ctx, rec.ID); err != nil {
					return err
				}
				res.Purged++
				continue
			}
			if err := repo.Upsert(ctx, rec); err != nil {
				return err
			}
			res.Upserted++
		}

		if latest.After(res.Watermark) {
			return s.metadataRepo(tx).SetString(ctx, metadata.KeyLastSyncTime, timex.FormatWire(latest))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Watermark = latest
	s.log.Info(ctx, "sync complete", "upserted", res.Upserted, "purged", res.Purged,
		"watermark", timex.FormatWire(latest))
	return &res, nil
}

// Run syncs every interval until ctx is done. A zero interval syncs once.
// Transient failures are logged and retried on the next tick.
func (s *SyncService) Run(ctx context.Context, interval time.Duration) error {
	if _, err := s.SyncOnce(ctx); err != nil {
		if interval == 0 || errors.Is(err, client.ErrUnauthorized) {
			return err
		}
		s.log.Warn(ctx, "sync failed", "error", err)
	}
	if interval == 0 {
		return nil
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := s.SyncOnce(ctx); err != nil {
				if errors.Is(err, client.ErrUnauthorized) {
					return err
				}
				s.log.Warn(ctx, "sync failed", "error", err)
			}
		}
	}
}

// Itineraries lists the replica's contents.
func (s *SyncService) Itineraries(ctx context.Context) ([]*models.Itinerary, error) {
	return s.itineraryRepo(s.db).List(ctx)
}
