// Package models holds the sync client's view of itineraries.
package models

import "time"

// Waypoint is one stop of a route.
type Waypoint struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Itinerary is a record as returned by the sync endpoint. Deleted records
// only carry ID, UserID and LastModified.
type Itinerary struct {
	ID             string     `json:"_id"`
	UserID         string     `json:"user_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Waypoints      []Waypoint `json:"waypoints"`
	UploadDatetime string     `json:"upload_datetime"`
	LastModified   string     `json:"last_modified"`
	NumViews       int64      `json:"num_views"`
	Likes          []string   `json:"likes"`
	Image          string     `json:"image,omitempty"`
	ImageFormat    string     `json:"image_format"`
	Deleted        bool       `json:"deleted"`
}

// Tokens is the credential pair issued by the server.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// SyncResult summarizes one pull.
type SyncResult struct {
	Upserted  int
	Purged    int
	Watermark time.Time
}
