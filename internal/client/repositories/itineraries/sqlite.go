package itineraries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mapster/mapster/internal/client/models"
	"github.com/mapster/mapster/internal/common"
	"github.com/mapster/mapster/internal/dbx"
)

// SQLiteRepository implements Repository over a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const columns = `id, user_id, name, description, waypoints, upload_datetime,
	last_modified, num_views, likes, image, image_format`

func (r *SQLiteRepository) Upsert(ctx context.Context, it *models.Itinerary) error {
	wps, err := json.Marshal(orEmpty(it.Waypoints))
	if err != nil {
		return fmt.Errorf("encode waypoints: %w", err)
	}
	likes, err := json.Marshal(orEmpty(it.Likes))
	if err != nil {
		return fmt.Errorf("encode likes: %w", err)
	}

	query := `INSERT INTO itineraries (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id,
			name = excluded.name,
			description = excluded.description,
			waypoints = excluded.waypoints,
			upload_datetime = excluded.upload_datetime,
			last_modified = excluded.last_modified,
			num_views = excluded.num_views,
			likes = excluded.likes,
			image = excluded.image,
			image_format = excluded.image_format`
	_, err = r.db.ExecContext(ctx, query,
		it.ID, it.UserID, it.Name, it.Description, string(wps), it.UploadDatetime,
		it.LastModified, it.NumViews, string(likes), it.Image, it.ImageFormat)
	if err != nil {
		return fmt.Errorf("failed to upsert itinerary: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Purge(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM itineraries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to purge itinerary: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Itinerary, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM itineraries WHERE id = ?`, id)
	it, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	return it, err
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Itinerary, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM itineraries ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select itineraries: %w", err)
	}
	defer rows.Close()

	var result []*models.Itinerary
	for rows.Next() {
		it, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM itineraries`); err != nil {
		return fmt.Errorf("failed to clear itineraries: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.Itinerary, error) {
	var it models.Itinerary
	var wps, likes string
	err := s.Scan(&it.ID, &it.UserID, &it.Name, &it.Description, &wps, &it.UploadDatetime,
		&it.LastModified, &it.NumViews, &likes, &it.Image, &it.ImageFormat)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(wps), &it.Waypoints); err != nil {
		return nil, fmt.Errorf("decode waypoints of %s: %w", it.ID, err)
	}
	if err := json.Unmarshal([]byte(likes), &it.Likes); err != nil {
		return nil, fmt.Errorf("decode likes of %s: %w", it.ID, err)
	}
	return &it, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
