package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mapster/mapster/internal/logging"
	"github.com/mapster/mapster/internal/server/auth"
	"github.com/mapster/mapster/internal/server/config"
	"github.com/mapster/mapster/internal/server/models"
	"github.com/mapster/mapster/internal/server/services"
)

const testSecret = "test-secret"

type fakeAccounts struct {
	Accounts
	register func(ctx context.Context, username, password, name string) (*models.User, error)
	login    func(ctx context.Context, username, password string) (*services.TokenPair, error)
	external func(ctx context.Context, providerUserID, name string) (*services.TokenPair, error)
	refresh  func(ctx context.Context, token string) (*services.TokenPair, error)
}

func (f *fakeAccounts) Register(ctx context.Context, username, password, name string) (*models.User, error) {
	return f.register(ctx, username, password, name)
}

func (f *fakeAccounts) Login(ctx context.Context, username, password string) (*services.TokenPair, error) {
	return f.login(ctx, username, password)
}

func (f *fakeAccounts) LoginExternal(ctx context.Context, providerUserID, name string) (*services.TokenPair, error) {
	return f.external(ctx, providerUserID, name)
}

func (f *fakeAccounts) RefreshToken(ctx context.Context, token string) (*services.TokenPair, error) {
	return f.refresh(ctx, token)
}

type fakeItineraries struct {
	Itineraries
	create     func(ctx context.Context, ownerID string, in models.ItineraryInput) (*models.Itinerary, error)
	update     func(ctx context.Context, id, ownerID string, in models.ItineraryInput) (*models.Itinerary, error)
	softDelete func(ctx context.Context, id, ownerID string) error
	view       func(ctx context.Context, id, viewerID string) (*models.DetailView, error)
	toggleLike func(ctx context.Context, id, userID string) (*models.LikeResult, error)
	getOwned   func(ctx context.Context, id, ownerID string) (*models.Itinerary, error)
	listMine   func(ctx context.Context, ownerID string) ([]*models.Itinerary, error)
}

func (f *fakeItineraries) Create(ctx context.Context, ownerID string, in models.ItineraryInput) (*models.Itinerary, error) {
	return f.create(ctx, ownerID, in)
}

func (f *fakeItineraries) Update(ctx context.Context, id, ownerID string, in models.ItineraryInput) (*models.Itinerary, error) {
	return f.update(ctx, id, ownerID, in)
}

func (f *fakeItineraries) SoftDelete(ctx context.Context, id, ownerID string) error {
	return f.softDelete(ctx, id, ownerID)
}

func (f *fakeItineraries) View(ctx context.Context, id, viewerID string) (*models.DetailView, error) {
	return f.view(ctx, id, viewerID)
}

func (f *fakeItineraries) ToggleLike(ctx context.Context, id, userID string) (*models.LikeResult, error) {
	return f.toggleLike(ctx, id, userID)
}

func (f *fakeItineraries) GetOwned(ctx context.Context, id, ownerID string) (*models.Itinerary, error) {
	return f.getOwned(ctx, id, ownerID)
}

func (f *fakeItineraries) ListMine(ctx context.Context, ownerID string) ([]*models.Itinerary, error) {
	return f.listMine(ctx, ownerID)
}

type fakeSync struct {
	pull func(ctx context.Context, userID, watermark string) ([]models.Record, error)
}

func (f *fakeSync) Pull(ctx context.Context, userID, watermark string) ([]models.Record, error) {
	return f.pull(ctx, userID, watermark)
}

type fakeSearch struct {
	list   func(ctx context.Context, mode models.SortMode) ([]*models.Itinerary, error)
	search func(ctx context.Context, query, filters string) ([]*models.Itinerary, error)
}

func (f *fakeSearch) List(ctx context.Context, mode models.SortMode) ([]*models.Itinerary, error) {
	return f.list(ctx, mode)
}

func (f *fakeSearch) Search(ctx context.Context, query, filters string) ([]*models.Itinerary, error) {
	return f.search(ctx, query, filters)
}

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = testSecret
	cfg.IdentitySecret = "gateway"
	cfg.MaxImageBytes = 64
	cfg.AuthRateLimit = 0
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, deps Deps) *httptest.Server {
	t.Helper()
	s := NewServer(cfg, deps, logging.Nop())
	s.now = func() time.Time { return t0.Add(3 * time.Hour) }
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.GenerateToken(auth.Principal{UserID: userID, Name: userID}, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return tok
}

func doRequest(t *testing.T, method, url, token string, body *bytes.Buffer, contentType string) *http.Response {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type formImage struct {
	contentType string
	data        []byte
}

// itineraryForm builds a create/update multipart body.
func itineraryForm(t *testing.T, fields map[string]string, img *formImage) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if img != nil {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="map_image"; filename="map"`}
		h["Content-Type"] = []string{img.contentType}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(img.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}
