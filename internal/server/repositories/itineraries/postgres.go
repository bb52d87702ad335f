package itineraries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mapster/mapster/internal/common"
	"github.com/mapster/mapster/internal/dbx"
	"github.com/mapster/mapster/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// columns is the projection every itinerary read uses; scanRecord consumes it.
const columns = `i.id, i.owner_id, i.name, i.description, i.waypoints, i.image_key, i.image_format,
		i.upload_datetime, i.last_modified, i.num_views, i.deleted,
		COALESCE((SELECT json_agg(l.user_id ORDER BY l.user_id) FROM itinerary_likes l WHERE l.itinerary_id = i.id), '[]')`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (models.Record, error) {
	var (
		it        models.Itinerary
		format    string
		waypoints []byte
		likes     []byte
		uploaded  sql.NullTime
		deleted   bool
	)
	if err := s.Scan(&it.ID, &it.OwnerID, &it.Name, &it.Description, &waypoints, &it.ImageKey, &format,
		&uploaded, &it.LastModified, &it.NumViews, &deleted, &likes); err != nil {
		return nil, err
	}
	it.LastModified = it.LastModified.UTC()

	if deleted {
		return &models.Tombstone{ID: it.ID, OwnerID: it.OwnerID, LastModified: it.LastModified}, nil
	}

	if uploaded.Valid {
		it.UploadDatetime = uploaded.Time.UTC()
	}
	it.ImageFormat = models.ImageFormat(format)
	if err := json.Unmarshal(waypoints, &it.Waypoints); err != nil {
		return nil, fmt.Errorf("decode waypoints of %s: %w", it.ID, err)
	}
	if err := json.Unmarshal(likes, &it.Likes); err != nil {
		return nil, fmt.Errorf("decode likes of %s: %w", it.ID, err)
	}
	if it.Waypoints == nil {
		it.Waypoints = []models.Waypoint{}
	}
	if it.Likes == nil {
		it.Likes = []string{}
	}
	return &it, nil
}

func scanActive(s scanner) (*models.Itinerary, error) {
	rec, err := scanRecord(s)
	if err != nil {
		return nil, err
	}
	it, ok := rec.(*models.Itinerary)
	if !ok {
		return nil, common.ErrorNotFound
	}
	return it, nil
}

func encodeWaypoints(wps []models.Waypoint) (string, error) {
	if wps == nil {
		wps = []models.Waypoint{}
	}
	b, err := json.Marshal(wps)
	if err != nil {
		return "", fmt.Errorf("encode waypoints: %w", err)
	}
	return string(b), nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// missing explains why an owner-scoped statement matched nothing.
func (r *PostgresRepository) missing(ctx context.Context, id, ownerID string) error {
	owner, err := r.OwnerOf(ctx, id)
	if err != nil {
		return err
	}
	if owner != ownerID {
		return common.ErrPermission
	}
	return common.ErrorNotFound
}

func (r *PostgresRepository) Create(ctx context.Context, it *models.Itinerary) error {
	waypoints, err := encodeWaypoints(it.Waypoints)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO itineraries (owner_id, name, description, waypoints, image_key, image_format, upload_datetime, last_modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id
	`
	err = r.db.QueryRowContext(ctx, query, it.OwnerID, it.Name, it.Description, waypoints,
		it.ImageKey, string(it.ImageFormat), it.UploadDatetime).Scan(&it.ID)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrDuplicateName
		}
		return dbx.StoreError(err)
	}
	it.LastModified = it.UploadDatetime
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, it *models.Itinerary, replaceImage bool, now time.Time) (string, error) {
	if !validID(it.ID) {
		return "", common.ErrorNotFound
	}
	waypoints, err := encodeWaypoints(it.Waypoints)
	if err != nil {
		return "", err
	}

	query := `
		UPDATE itineraries AS i
		SET name = $3, description = $4, waypoints = $5,
			image_key = CASE WHEN $6::boolean THEN $7 ELSE i.image_key END,
			image_format = CASE WHEN $6::boolean THEN $8 ELSE i.image_format END,
			last_modified = GREATEST($9, i.last_modified + interval '1 microsecond')
		FROM itineraries AS prev
		WHERE i.id = $1 AND i.owner_id = $2 AND NOT i.deleted AND prev.id = i.id
		RETURNING prev.image_key, i.image_key, i.image_format, i.upload_datetime, i.last_modified, i.num_views
	`
	var (
		prevKey  string
		format   string
		uploaded sql.NullTime
	)
	err = r.db.QueryRowContext(ctx, query, it.ID, it.OwnerID, it.Name, it.Description, waypoints,
		replaceImage, it.ImageKey, string(it.ImageFormat), now).
		Scan(&prevKey, &it.ImageKey, &format, &uploaded, &it.LastModified, &it.NumViews)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return "", r.missing(ctx, it.ID, it.OwnerID)
		case dbx.IsUniqueViolation(err):
			return "", common.ErrDuplicateName
		}
		return "", dbx.StoreError(err)
	}

	it.ImageFormat = models.ImageFormat(format)
	it.LastModified = it.LastModified.UTC()
	if uploaded.Valid {
		it.UploadDatetime = uploaded.Time.UTC()
	}
	return prevKey, nil
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id, ownerID string, now time.Time) (string, error) {
	if !validID(id) {
		return "", common.ErrorNotFound
	}

	query := `
		UPDATE itineraries AS i
		SET name = '', description = '', waypoints = '[]'::jsonb, image_key = '', image_format = '',
			upload_datetime = NULL, num_views = 0, deleted = TRUE,
			last_modified = GREATEST($3, i.last_modified + interval '1 microsecond')
		FROM itineraries AS prev
		WHERE i.id = $1 AND i.owner_id = $2 AND prev.id = i.id
		RETURNING prev.image_key
	`
	var prevKey string
	if err := r.db.QueryRowContext(ctx, query, id, ownerID, now).Scan(&prevKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", r.missing(ctx, id, ownerID)
		}
		return "", dbx.StoreError(err)
	}
	return prevKey, nil
}

func (r *PostgresRepository) OwnerOf(ctx context.Context, id string) (string, error) {
	if !validID(id) {
		return "", common.ErrorNotFound
	}
	var owner string
	err := r.db.QueryRowContext(ctx, `SELECT owner_id FROM itineraries WHERE id = $1`, id).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrorNotFound
		}
		return "", dbx.StoreError(err)
	}
	return owner, nil
}

func (r *PostgresRepository) RecordView(ctx context.Context, id, viewerID string) (*models.Itinerary, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}

	query := `
		UPDATE itineraries AS i
		SET num_views = i.num_views + CASE WHEN i.owner_id = $2 THEN 0 ELSE 1 END
		WHERE i.id = $1 AND NOT i.deleted
		RETURNING ` + columns
	it, err := scanActive(r.db.QueryRowContext(ctx, query, id, viewerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.StoreError(err)
	}
	return it, nil
}

func (r *PostgresRepository) LockActive(ctx context.Context, id string) error {
	if !validID(id) {
		return common.ErrorNotFound
	}
	var got string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM itineraries WHERE id = $1 AND NOT deleted FOR SHARE`, id).Scan(&got)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		return dbx.StoreError(err)
	}
	return nil
}

func (r *PostgresRepository) AddLike(ctx context.Context, id, userID string) error {
	query := `
		INSERT INTO itinerary_likes (itinerary_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, id, userID); err != nil {
		// A dangling or malformed itinerary id fails the insert itself.
		if dbx.IsForeignKeyViolation(err) || dbx.IsInvalidText(err) {
			return common.ErrorNotFound
		}
		return dbx.StoreError(err)
	}
	return nil
}

func (r *PostgresRepository) RemoveLike(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM itinerary_likes WHERE itinerary_id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, dbx.StoreError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbx.StoreError(err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) DeleteLikes(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM itinerary_likes WHERE itinerary_id = $1`, id); err != nil {
		return dbx.StoreError(err)
	}
	return nil
}

func (r *PostgresRepository) CountLikes(ctx context.Context, id string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM itinerary_likes WHERE itinerary_id = $1`, id).Scan(&n); err != nil {
		return 0, dbx.StoreError(err)
	}
	return n, nil
}

func (r *PostgresRepository) Likes(ctx context.Context, id string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM itinerary_likes WHERE itinerary_id = $1 ORDER BY user_id`, id)
	if err != nil {
		return nil, dbx.StoreError(err)
	}
	defer rows.Close()

	likes := []string{}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, dbx.StoreError(err)
		}
		likes = append(likes, u)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.StoreError(err)
	}
	return likes, nil
}

func (r *PostgresRepository) SelectUpdated(ctx context.Context, ownerID string, since time.Time) ([]models.Record, error) {
	query := `SELECT ` + columns + `
		FROM itineraries AS i
		WHERE i.owner_id = $1 AND i.last_modified > $2
		ORDER BY i.last_modified, i.id`

	rows, err := r.db.QueryContext(ctx, query, ownerID, since)
	if err != nil {
		return nil, dbx.StoreError(err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, dbx.StoreError(err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.StoreError(err)
	}
	return result, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching s literally anywhere.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

const likesCount = `(SELECT count(*) FROM itinerary_likes l WHERE l.itinerary_id = i.id)`

func orderClause(mode models.SortMode) string {
	switch mode {
	case models.SortViews:
		return `i.num_views DESC, i.upload_datetime DESC, i.id`
	case models.SortLikes:
		return likesCount + ` DESC, i.upload_datetime DESC, i.id`
	default:
		return `i.upload_datetime DESC, i.id`
	}
}

func (r *PostgresRepository) ListPublic(ctx context.Context, query string, order models.SortMode) ([]*models.Itinerary, error) {
	where := `NOT i.deleted`
	var args []any
	if query != "" {
		where += ` AND (i.name ILIKE $1 ESCAPE '\' OR i.description ILIKE $1 ESCAPE '\')`
		args = append(args, containsPattern(query))
	}

	q := `SELECT ` + columns + `
		FROM itineraries AS i
		WHERE ` + where + `
		ORDER BY ` + orderClause(order)
	return r.list(ctx, q, args...)
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Itinerary, error) {
	q := `SELECT ` + columns + `
		FROM itineraries AS i
		WHERE i.owner_id = $1 AND NOT i.deleted
		ORDER BY i.upload_datetime DESC, i.id`
	return r.list(ctx, q, ownerID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Itinerary, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbx.StoreError(err)
	}
	defer rows.Close()

	result := []*models.Itinerary{}
	for rows.Next() {
		it, err := scanActive(rows)
		if err != nil {
			return nil, dbx.StoreError(err)
		}
		result = append(result, it)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.StoreError(err)
	}
	return result, nil
}

func (r *PostgresRepository) GetOwned(ctx context.Context, id, ownerID string) (*models.Itinerary, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}

	q := `SELECT ` + columns + `
		FROM itineraries AS i
		WHERE i.id = $1 AND i.owner_id = $2 AND NOT i.deleted`
	it, err := scanActive(r.db.QueryRowContext(ctx, q, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.missing(ctx, id, ownerID)
		}
		return nil, dbx.StoreError(err)
	}
	return it, nil
}
