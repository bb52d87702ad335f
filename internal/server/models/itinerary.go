// Package models defines server-side data models persisted in the database.
package models

import (
	"time"
)

// ImageFormat is the encoding of a stored map image.
type ImageFormat string

const (
	ImageFormatJPG  ImageFormat = "jpg"
	ImageFormatWebP ImageFormat = "webp"
)

// ImageFormatFor infers the stored format from an upload content type.
// Only image/webp is recognized; everything else is kept as jpg.
func ImageFormatFor(contentType string) ImageFormat {
	if contentType == "image/webp" {
		return ImageFormatWebP
	}
	return ImageFormatJPG
}

// ContentType is the MIME type served for the format.
func (f ImageFormat) ContentType() string {
	if f == ImageFormatWebP {
		return "image/webp"
	}
	return "image/jpeg"
}

// Waypoint is one stop of a route. Order within an itinerary is meaningful.
type Waypoint struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Image is a map snapshot attached to an itinerary.
type Image struct {
	Data   []byte
	Format ImageFormat
}

// Record is either an active *Itinerary or a *Tombstone. Sync results mix
// both; everything else only ever sees active itineraries.
type Record interface {
	RecordID() string
	RecordOwner() string
	Modified() time.Time
	isRecord()
}

// Itinerary is an active (non-deleted) itinerary.
type Itinerary struct {
	ID             string
	OwnerID        string
	Name           string
	Description    string
	Waypoints      []Waypoint
	ImageKey       string
	ImageFormat    ImageFormat
	Image          []byte
	UploadDatetime time.Time
	LastModified   time.Time
	NumViews       int64
	Likes          []string
}

func (i *Itinerary) RecordID() string    { return i.ID }
func (i *Itinerary) RecordOwner() string { return i.OwnerID }
func (i *Itinerary) Modified() time.Time { return i.LastModified }
func (*Itinerary) isRecord()             {}

// HasImage reports whether a map snapshot is stored for the itinerary.
func (i *Itinerary) HasImage() bool { return i.ImageKey != "" }

// LikesCount is the size of the likes set.
func (i *Itinerary) LikesCount() int { return len(i.Likes) }

// LikedBy reports whether userID is in the likes set.
func (i *Itinerary) LikedBy(userID string) bool {
	for _, u := range i.Likes {
		if u == userID {
			return true
		}
	}
	return false
}

// Tombstone is what remains of a soft-deleted itinerary.
type Tombstone struct {
	ID           string
	OwnerID      string
	LastModified time.Time
}

func (t *Tombstone) RecordID() string    { return t.ID }
func (t *Tombstone) RecordOwner() string { return t.OwnerID }
func (t *Tombstone) Modified() time.Time { return t.LastModified }
func (*Tombstone) isRecord()             {}

// ItineraryInput carries the user-editable fields of create and update.
// A nil Image on update keeps the stored one.
type ItineraryInput struct {
	Name        string
	Description string
	Waypoints   []Waypoint
	Image       *Image
}

// DetailView is an itinerary as presented on its detail page.
type DetailView struct {
	Itinerary    *Itinerary
	AuthorName   string
	CreationDate string
	LikesCount   int
	IsAuthor     bool
	HasLiked     bool
	NumViews     int64
}

// LikeResult is the outcome of a like toggle.
type LikeResult struct {
	Liked      bool
	LikesCount int
}

// SortMode orders public listings.
type SortMode string

const (
	SortRecent SortMode = "recent"
	SortViews  SortMode = "views"
	SortLikes  SortMode = "likes"
)

// ParseSortMode maps a query value to a SortMode, falling back to recent.
func ParseSortMode(s string) SortMode {
	switch SortMode(s) {
	case SortViews:
		return SortViews
	case SortLikes:
		return SortLikes
	default:
		return SortRecent
	}
}
