package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/mapster/mapster/internal/common"
	"github.com/mapster/mapster/internal/server/models"
)

// maxWaypoints bounds waypoint_count so a form cannot ask for unbounded allocation.
const maxWaypoints = 1000

// formOverhead is the room left for text fields on top of the image limit.
const formOverhead = 1 << 20

// parseItineraryForm reads the multipart create/update form.
func (s *Server) parseItineraryForm(w http.ResponseWriter, r *http.Request) (models.ItineraryInput, error) {
	var in models.ItineraryInput

	r.Body = http.MaxBytesReader(w, r.Body, s.maxImageBytes+formOverhead)
	if err := r.ParseMultipartForm(s.maxImageBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return in, err
		}
		return in, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	in.Name = strings.TrimSpace(r.FormValue("itinerary_name"))
	in.Description = r.FormValue("itinerary_description")

	wps, err := parseWaypoints(r)
	if err != nil {
		return in, err
	}
	in.Waypoints = wps

	img, err := s.readImage(r)
	if err != nil {
		return in, err
	}
	in.Image = img
	return in, nil
}

func parseWaypoints(r *http.Request) ([]models.Waypoint, error) {
	raw := r.FormValue("waypoint_count")
	if raw == "" {
		return []models.Waypoint{}, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > maxWaypoints {
		return nil, fmt.Errorf("%w: bad waypoint_count %q", common.ErrInvalidInput, raw)
	}

	wps := make([]models.Waypoint, 0, n)
	for i := range n {
		key := func(field string) string { return fmt.Sprintf("waypoints[%d][%s]", i, field) }

		lat, err := strconv.ParseFloat(r.FormValue(key("latitude")), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: waypoint %d latitude", common.ErrInvalidInput, i)
		}
		lon, err := strconv.ParseFloat(r.FormValue(key("longitude")), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: waypoint %d longitude", common.ErrInvalidInput, i)
		}
		wps = append(wps, models.Waypoint{
			Name:      r.FormValue(key("name")),
			Latitude:  lat,
			Longitude: lon,
		})
	}
	return wps, nil
}

// readImage returns the uploaded map_image, or nil when none was sent.
func (s *Server) readImage(r *http.Request) (*models.Image, error) {
	file, header, err := r.FormFile("map_image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading map_image: %v", common.ErrInvalidInput, err)
	}
	if int64(len(data)) > s.maxImageBytes {
		return nil, fmt.Errorf("%w: map_image exceeds %d bytes", common.ErrInvalidInput, s.maxImageBytes)
	}
	if len(data) == 0 {
		return nil, nil
	}

	return &models.Image{
		Data:   data,
		Format: models.ImageFormatFor(header.Header.Get("Content-Type")),
	}, nil
}
