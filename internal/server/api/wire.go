package api

import (
	"encoding/base64"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mapster/mapster/internal/server/models"
	"github.com/mapster/mapster/internal/timex"
)

// Itinerary is the wire form of an itinerary or a tombstone.
type Itinerary struct {
	ID             string            `json:"_id"`
	UserID         string            `json:"user_id"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Waypoints      []models.Waypoint `json:"waypoints"`
	UploadDatetime string            `json:"upload_datetime"`
	LastModified   string            `json:"last_modified"`
	NumViews       int64             `json:"num_views"`
	Likes          []string          `json:"likes"`
	LikesCount     int               `json:"likes_count"`
	Image          string            `json:"image,omitempty"`
	ImageFormat    string            `json:"image_format"`
	Deleted        bool              `json:"deleted"`
}

// ListEntry is an itinerary as shown in public listings.
type ListEntry struct {
	Itinerary
	TimeSinceUpload string `json:"time_since_upload"`
}

// Detail is the response of the public detail page.
type Detail struct {
	Itinerary    Itinerary `json:"itinerary"`
	AuthorName   string    `json:"author_name"`
	CreationDate string    `json:"creation_date"`
	LikesCount   int       `json:"likes_count"`
	IsAuthor     bool      `json:"is_author"`
	HasLiked     bool      `json:"has_liked"`
	NumViews     int64     `json:"num_views"`
}

func toWire(it *models.Itinerary) Itinerary {
	w := Itinerary{
		ID:             it.ID,
		UserID:         it.OwnerID,
		Name:           it.Name,
		Description:    it.Description,
		Waypoints:      it.Waypoints,
		UploadDatetime: timex.FormatWire(it.UploadDatetime),
		LastModified:   timex.FormatWire(it.LastModified),
		NumViews:       it.NumViews,
		Likes:          it.Likes,
		LikesCount:     it.LikesCount(),
		ImageFormat:    string(it.ImageFormat),
	}
	if w.Waypoints == nil {
		w.Waypoints = []models.Waypoint{}
	}
	if w.Likes == nil {
		w.Likes = []string{}
	}
	if len(it.Image) > 0 {
		w.Image = base64.StdEncoding.EncodeToString(it.Image)
	}
	return w
}

func tombstoneToWire(ts *models.Tombstone) Itinerary {
	return Itinerary{
		ID:           ts.ID,
		UserID:       ts.OwnerID,
		Waypoints:    []models.Waypoint{},
		LastModified: timex.FormatWire(ts.LastModified),
		Likes:        []string{},
		Deleted:      true,
	}
}

func recordToWire(r models.Record) Itinerary {
	switch v := r.(type) {
	case *models.Itinerary:
		return toWire(v)
	case *models.Tombstone:
		return tombstoneToWire(v)
	}
	panic("unreachable")
}

func listToWire(its []*models.Itinerary, now time.Time) []ListEntry {
	out := make([]ListEntry, 0, len(its))
	for _, it := range its {
		e := ListEntry{Itinerary: toWire(it)}
		if !it.UploadDatetime.IsZero() {
			e.TimeSinceUpload = humanize.RelTime(it.UploadDatetime, now, "ago", "from now")
		}
		out = append(out, e)
	}
	return out
}

func detailToWire(d *models.DetailView) Detail {
	return Detail{
		Itinerary:    toWire(d.Itinerary),
		AuthorName:   d.AuthorName,
		CreationDate: d.CreationDate,
		LikesCount:   d.LikesCount,
		IsAuthor:     d.IsAuthor,
		HasLiked:     d.HasLiked,
		NumViews:     d.NumViews,
	}
}
