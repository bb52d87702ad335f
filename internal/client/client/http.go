// Package client talks to the Mapster HTTP API and prepares the local replica.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mapster/mapster/internal/client/models"
	"github.com/mapster/mapster/internal/common"
)

// Client is the subset of the API the sync client uses.
type Client interface {
	Login(ctx context.Context, username, password string) (*models.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*models.Tokens, error)
	Pull(ctx context.Context, accessToken, lastSyncTime string) ([]*models.Itinerary, error)
}

type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// do sends the request and decodes a 200 JSON body into out.
func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		var p problem
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &p) == nil && p.Detail != "" {
			return fmt.Errorf("%s %s: %d %s", req.Method, req.URL.Path, resp.StatusCode, p.Detail)
		}
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) Login(ctx context.Context, username, password string) (*models.Tokens, error) {
	var t models.Tokens
	in := map[string]string{"username": username, "password": password}
	if err := c.postJSON(ctx, "/api/auth/login", in, &t); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &t, nil
}

func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (*models.Tokens, error) {
	var t models.Tokens
	if err := c.postJSON(ctx, "/api/auth/refresh", map[string]string{"refresh_token": refreshToken}, &t); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	return &t, nil
}

// Pull fetches every record changed after lastSyncTime ("" for a full pull).
func (c *HTTPClient) Pull(ctx context.Context, accessToken, lastSyncTime string) ([]*models.Itinerary, error) {
	u := c.baseURL + "/api/sync-itineraries"
	if lastSyncTime != "" {
		u += "?lastSyncTime=" + url.QueryEscape(lastSyncTime)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(common.AccessTokenHeaderName, "Bearer "+accessToken)

	var recs []*models.Itinerary
	if err := c.do(req, &recs); err != nil {
		return nil, fmt.Errorf("pull: %w", err)
	}
	return recs, nil
}
