package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mapster/mapster/internal/common"
	"github.com/mapster/mapster/internal/dbx"
	"github.com/mapster/mapster/internal/logging"
	"github.com/mapster/mapster/internal/server/config"
	"github.com/mapster/mapster/internal/server/models"
	"github.com/mapster/mapster/internal/server/repositories/itineraries"
	"github.com/mapster/mapster/internal/server/repositories/refreshtokens"
	"github.com/mapster/mapster/internal/server/repositories/repomanager"
	"github.com/mapster/mapster/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

var errBoom = errors.New("boom")

// -------- in-memory itinerary store mirroring the SQL semantics --------

type memRow struct {
	it      models.Itinerary
	deleted bool
	likes   map[string]bool
}

var _ itineraries.Repository = (*memItineraries)(nil)

type memItineraries struct {
	mu   sync.Mutex
	rows map[string]*memRow
}

func newMemItineraries() *memItineraries {
	return &memItineraries{rows: map[string]*memRow{}}
}

func (m *memItineraries) snapshot(r *memRow) *models.Itinerary {
	it := r.it
	it.Waypoints = append([]models.Waypoint{}, r.it.Waypoints...)
	it.Likes = []string{}
	for u := range r.likes {
		it.Likes = append(it.Likes, u)
	}
	sort.Strings(it.Likes)
	return &it
}

func (m *memItineraries) record(r *memRow) models.Record {
	if r.deleted {
		return &models.Tombstone{ID: r.it.ID, OwnerID: r.it.OwnerID, LastModified: r.it.LastModified}
	}
	return m.snapshot(r)
}

func (m *memItineraries) nameTaken(owner, name, except string) bool {
	for id, r := range m.rows {
		if !r.deleted && id != except && r.it.OwnerID == owner && r.it.Name == name {
			return true
		}
	}
	return false
}

func (m *memItineraries) missing(id, owner string) error {
	r, ok := m.rows[id]
	if ok && r.it.OwnerID != owner {
		return common.ErrPermission
	}
	return common.ErrorNotFound
}

func bump(prev, now time.Time) time.Time {
	next := prev.Add(time.Microsecond)
	if now.After(next) {
		return now
	}
	return next
}

func (m *memItineraries) Create(ctx context.Context, it *models.Itinerary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nameTaken(it.OwnerID, it.Name, "") {
		return common.ErrDuplicateName
	}
	it.ID = uuid.NewString()
	it.LastModified = it.UploadDatetime
	row := &memRow{it: *it, likes: map[string]bool{}}
	row.it.Image = nil
	m.rows[it.ID] = row
	return nil
}

func (m *memItineraries) Update(ctx context.Context, it *models.Itinerary, replaceImage bool, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[it.ID]
	if !ok || r.deleted || r.it.OwnerID != it.OwnerID {
		return "", m.missing(it.ID, it.OwnerID)
	}
	if m.nameTaken(it.OwnerID, it.Name, it.ID) {
		return "", common.ErrDuplicateName
	}
	prev := r.it.ImageKey
	r.it.Name, r.it.Description, r.it.Waypoints = it.Name, it.Description, it.Waypoints
	if replaceImage {
		r.it.ImageKey, r.it.ImageFormat = it.ImageKey, it.ImageFormat
	}
	r.it.LastModified = bump(r.it.LastModified, now)

	it.ImageKey, it.ImageFormat = r.it.ImageKey, r.it.ImageFormat
	it.UploadDatetime, it.LastModified, it.NumViews = r.it.UploadDatetime, r.it.LastModified, r.it.NumViews
	return prev, nil
}

func (m *memItineraries) SoftDelete(ctx context.Context, id, ownerID string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.it.OwnerID != ownerID {
		return "", m.missing(id, ownerID)
	}
	prev := r.it.ImageKey
	r.it = models.Itinerary{ID: id, OwnerID: ownerID, LastModified: bump(r.it.LastModified, now)}
	r.deleted = true
	return prev, nil
}

func (m *memItineraries) OwnerOf(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return "", common.ErrorNotFound
	}
	return r.it.OwnerID, nil
}

func (m *memItineraries) RecordView(ctx context.Context, id, viewerID string) (*models.Itinerary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.deleted {
		return nil, common.ErrorNotFound
	}
	if viewerID != r.it.OwnerID {
		r.it.NumViews++
	}
	return m.snapshot(r), nil
}

func (m *memItineraries) LockActive(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[id]; !ok || r.deleted {
		return common.ErrorNotFound
	}
	return nil
}

func (m *memItineraries) AddLike(ctx context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].likes[userID] = true
	return nil
}

func (m *memItineraries) RemoveLike(ctx context.Context, id, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rows[id]
	if !r.likes[userID] {
		return false, nil
	}
	delete(r.likes, userID)
	return true, nil
}

func (m *memItineraries) DeleteLikes(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].likes = map[string]bool{}
	return nil
}

func (m *memItineraries) CountLikes(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows[id].likes), nil
}

func (m *memItineraries) Likes(ctx context.Context, id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(m.rows[id]).Likes, nil
}

func (m *memItineraries) SelectUpdated(ctx context.Context, ownerID string, since time.Time) ([]models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Record
	for _, r := range m.rows {
		if r.it.OwnerID == ownerID && r.it.LastModified.After(since) {
			out = append(out, m.record(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Modified().Equal(out[j].Modified()) {
			return out[i].Modified().Before(out[j].Modified())
		}
		return out[i].RecordID() < out[j].RecordID()
	})
	return out, nil
}

func (m *memItineraries) active(keep func(*memRow) bool) []*memRow {
	var out []*memRow
	for _, r := range m.rows {
		if !r.deleted && keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func byRecent(a, b *memRow) bool {
	if !a.it.UploadDatetime.Equal(b.it.UploadDatetime) {
		return a.it.UploadDatetime.After(b.it.UploadDatetime)
	}
	return a.it.ID < b.it.ID
}

func (m *memItineraries) ListPublic(ctx context.Context, query string, order models.SortMode) ([]*models.Itinerary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := strings.ToLower(query)
	rows := m.active(func(r *memRow) bool {
		return strings.Contains(strings.ToLower(r.it.Name), q) || strings.Contains(strings.ToLower(r.it.Description), q)
	})
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch order {
		case models.SortViews:
			if a.it.NumViews != b.it.NumViews {
				return a.it.NumViews > b.it.NumViews
			}
		case models.SortLikes:
			if len(a.likes) != len(b.likes) {
				return len(a.likes) > len(b.likes)
			}
		}
		return byRecent(a, b)
	})
	out := []*models.Itinerary{}
	for _, r := range rows {
		out = append(out, m.snapshot(r))
	}
	return out, nil
}

func (m *memItineraries) ListByOwner(ctx context.Context, ownerID string) ([]*models.Itinerary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.active(func(r *memRow) bool { return r.it.OwnerID == ownerID })
	sort.Slice(rows, func(i, j int) bool { return byRecent(rows[i], rows[j]) })
	out := []*models.Itinerary{}
	for _, r := range rows {
		out = append(out, m.snapshot(r))
	}
	return out, nil
}

func (m *memItineraries) GetOwned(ctx context.Context, id, ownerID string) (*models.Itinerary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.deleted || r.it.OwnerID != ownerID {
		return nil, m.missing(id, ownerID)
	}
	return m.snapshot(r), nil
}

// -------- users / refresh tokens --------

type fakeUsersRepo struct {
	users.Repository

	byName    map[string]*models.User
	createErr error
	getErr    error
}

func newFakeUsers(us ...*models.User) *fakeUsersRepo {
	f := &fakeUsersRepo{byName: map[string]*models.User{}}
	for _, u := range us {
		f.byName[u.ID] = u
	}
	return f
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byName[u.ID]; ok {
		return common.ErrUserExists
	}
	f.byName[u.ID] = u
	return nil
}

func (f *fakeUsersRepo) CreateIfAbsent(ctx context.Context, u *models.User) (bool, error) {
	if f.createErr != nil {
		return false, f.createErr
	}
	if _, ok := f.byName[u.ID]; ok {
		return false, nil
	}
	f.byName[u.ID] = u
	return true, nil
}

func (f *fakeUsersRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byName[username]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

type fakeRefreshRepo struct {
	refreshtokens.Repository

	tokens    map[string]*models.RefreshToken
	findErr   error
	delErr    error
	createErr error
}

func newFakeRefresh() *fakeRefreshRepo {
	return &fakeRefreshRepo{tokens: map[string]*models.RefreshToken{}}
}

func (f *fakeRefreshRepo) Create(ctx context.Context, userID, token string, expiresAt time.Time) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.tokens[token] = &models.RefreshToken{UserID: userID, Token: token, Expires: expiresAt}
	return nil
}

func (f *fakeRefreshRepo) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	t, ok := f.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return t, nil
}

func (f *fakeRefreshRepo) Delete(ctx context.Context, token string) error {
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.tokens, token)
	return nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	u  *fakeUsersRepo
	r  *fakeRefreshRepo
	it itineraries.Repository
}

func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.r }
func (m *fakeRepoManager) Itineraries(dbx.DBTX) itineraries.Repository     { return m.it }

// -------- blob store --------

type fakeImages struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	putErr  error
	getErr  error
}

func newFakeImages() *fakeImages {
	return &fakeImages{objects: map[string][]byte{}}
}

func (f *fakeImages) Put(ctx context.Context, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = data
	return nil
}

func (f *fakeImages) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	b, ok := f.objects[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return b, nil
}

func (f *fakeImages) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeImages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// -------- helpers --------

// newTxDB returns a database the services can open transactions on; the
// fakes ignore the handle, so only Begin/Commit/Rollback are exercised.
func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.t = c.t.Add(d)
	return c.t
}

type fixture struct {
	repo   *memItineraries
	images *fakeImages
	users  *fakeUsersRepo
	clock  *fakeClock

	itineraries *ItineraryService
	sync        *SyncService
	search      *SearchService
	accounts    *UserService
}

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTxDB(t)
	f := &fixture{
		repo:   newMemItineraries(),
		images: newFakeImages(),
		users: newFakeUsers(
			&models.User{ID: "alice", Name: "Alice"},
			&models.User{ID: "bob", Name: "Bob"},
		),
		clock: &fakeClock{t: t0},
	}
	rm := &fakeRepoManager{u: f.users, r: newFakeRefresh(), it: f.repo}
	log := logging.Nop()

	f.accounts = NewUserService(db, rm, &config.Config{SecretKey: "k", AccessTokenValidityDuration: time.Hour, RefreshTokenValidityDuration: 2 * time.Hour})
	f.itineraries = NewItineraryService(db, rm, f.images, f.accounts, log)
	f.itineraries.now = f.clock.Now
	f.sync = NewSyncService(db, rm, f.images, log)
	f.search = NewSearchService(db, rm, f.images, log)
	return f
}

func input(name string, wps ...models.Waypoint) models.ItineraryInput {
	return models.ItineraryInput{Name: name, Description: name + " description", Waypoints: wps}
}
