package services

import (
	"context"
	"testing"
	"time"

	"github.com/mapster/mapster/internal/common"
	"github.com/mapster/mapster/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var colosseum = models.Waypoint{Name: "Colosseum", Latitude: 41.8902, Longitude: 12.4922}

func TestCreate_NamesUniquePerOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.itineraries.Create(ctx, "alice", input("Rome Trip", colosseum))
	require.NoError(t, err)
	assert.Equal(t, t0, first.UploadDatetime)
	assert.Equal(t, t0, first.LastModified)
	assert.Zero(t, first.NumViews)
	assert.Empty(t, first.Likes)

	_, err = f.itineraries.Create(ctx, "alice", input("Rome Trip"))
	assert.ErrorIs(t, err, common.ErrDuplicateName)

	_, err = f.itineraries.Create(ctx, "alice", input("rome trip"))
	assert.NoError(t, err, "names are case-sensitive")

	_, err = f.itineraries.Create(ctx, "bob", input("Rome Trip"))
	assert.NoError(t, err, "uniqueness is per owner")

	require.NoError(t, f.itineraries.SoftDelete(ctx, first.ID, "alice"))
	_, err = f.itineraries.Create(ctx, "alice", input("Rome Trip"))
	assert.NoError(t, err, "tombstones release the name")
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	img := &models.Image{Data: []byte("jpg"), Format: models.ImageFormatJPG}

	_, err := f.itineraries.Create(ctx, "alice", models.ItineraryInput{Name: "  ", Image: img})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = f.itineraries.Create(ctx, "alice", input("Bad", models.Waypoint{Latitude: 91}))
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	assert.Empty(t, f.repo.rows)
	assert.Zero(t, f.images.count(), "nothing is uploaded before validation passes")
}

func TestCreate_ImageLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := input("Rome Trip")
	in.Image = &models.Image{Data: []byte("webp-bytes"), Format: models.ImageFormatWebP}

	it, err := f.itineraries.Create(ctx, "alice", in)
	require.NoError(t, err)
	assert.True(t, it.HasImage())
	assert.Equal(t, models.ImageFormatWebP, it.ImageFormat)
	assert.Equal(t, []byte("webp-bytes"), f.images.objects[it.ImageKey])

	_, err = f.itineraries.Create(ctx, "alice", in)
	require.ErrorIs(t, err, common.ErrDuplicateName)
	assert.Equal(t, 1, f.images.count(), "upload of a rejected create is removed again")

	f.images.putErr = errBoom
	_, err = f.itineraries.Create(ctx, "alice", models.ItineraryInput{Name: "Other", Image: in.Image})
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
	assert.Len(t, f.repo.rows, 1)
}

func TestUpdate_OwnerScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	it, err := f.itineraries.Create(ctx, "alice", input("Rome Trip"))
	require.NoError(t, err)
	_, err = f.itineraries.Create(ctx, "alice", input("Paris"))
	require.NoError(t, err)

	_, err = f.itineraries.Update(ctx, it.ID, "bob", input("Stolen"))
	assert.ErrorIs(t, err, common.ErrPermission)

	_, err = f.itineraries.Update(ctx, "not-an-id", "alice", input("x"))
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = f.itineraries.Update(ctx, it.ID, "alice", input("Paris"))
	assert.ErrorIs(t, err, common.ErrDuplicateName)

	_, err = f.itineraries.Update(ctx, it.ID, "alice", input("Rome Trip", colosseum))
	assert.NoError(t, err, "keeping its own name is not a collision")

	assert.Equal(t, "Rome Trip", f.repo.rows[it.ID].it.Name)
}

func TestUpdate_ImageReplacement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := input("Rome Trip")
	in.Image = &models.Image{Data: []byte("v1"), Format: models.ImageFormatJPG}
	it, err := f.itineraries.Create(ctx, "alice", in)
	require.NoError(t, err)
	firstKey := it.ImageKey

	f.clock.Advance(time.Minute)
	kept, err := f.itineraries.Update(ctx, it.ID, "alice", input("Rome Trip", colosseum))
	require.NoError(t, err)
	assert.Equal(t, firstKey, kept.ImageKey)
	assert.Equal(t, []byte("v1"), kept.Image)
	assert.Equal(t, []models.Waypoint{colosseum}, kept.Waypoints)

	f.clock.Advance(time.Minute)
	in.Image = &models.Image{Data: []byte("v2"), Format: models.ImageFormatWebP}
	replaced, err := f.itineraries.Update(ctx, it.ID, "alice", in)
	require.NoError(t, err)
	assert.NotEqual(t, firstKey, replaced.ImageKey)
	assert.Equal(t, models.ImageFormatWebP, replaced.ImageFormat)
	assert.Contains(t, f.images.deleted, firstKey)
	assert.Equal(t, 1, f.images.count())
	assert.Equal(t, t0, replaced.UploadDatetime, "upload date is immutable")
}

func TestSoftDelete_TombstoneInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := input("Rome Trip", colosseum)
	in.Image = &models.Image{Data: []byte("img"), Format: models.ImageFormatJPG}
	it, err := f.itineraries.Create(ctx, "alice", in)
	require.NoError(t, err)
	_, err = f.itineraries.ToggleLike(ctx, it.ID, "bob")
	require.NoError(t, err)
	_, err = f.itineraries.View(ctx, it.ID, "bob")
	require.NoError(t, err)

	// same clock reading as the create: last_modified must still advance
	require.NoError(t, f.itineraries.SoftDelete(ctx, it.ID, "alice"))

	row := f.repo.rows[it.ID]
	assert.True(t, row.deleted)
	assert.Equal(t, it.ID, row.it.ID)
	assert.Equal(t, "alice", row.it.OwnerID)
	assert.Empty(t, row.it.Name)
	assert.Empty(t, row.it.Description)
	assert.Empty(t, row.it.Waypoints)
	assert.Empty(t, row.it.ImageKey)
	assert.True(t, row.it.UploadDatetime.IsZero())
	assert.Zero(t, row.it.NumViews)
	assert.Empty(t, row.likes)
	assert.True(t, row.it.LastModified.After(it.LastModified))
	assert.Zero(t, f.images.count(), "image object removed")

	first := row.it.LastModified
	require.NoError(t, f.itineraries.SoftDelete(ctx, it.ID, "alice"), "repeat delete succeeds")
	assert.True(t, f.repo.rows[it.ID].deleted)
	assert.True(t, f.repo.rows[it.ID].it.LastModified.After(first))

	assert.ErrorIs(t, f.itineraries.SoftDelete(ctx, it.ID, "bob"), common.ErrPermission)
	assert.ErrorIs(t, f.itineraries.SoftDelete(ctx, "missing", "alice"), common.ErrorNotFound)
}

func TestView_Monotonicity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	it, err := f.itineraries.Create(ctx, "alice", input("Rome Trip"))
	require.NoError(t, err)

	v, err := f.itineraries.View(ctx, it.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.NumViews)
	assert.False(t, v.IsAuthor)
	assert.Equal(t, "Alice", v.AuthorName)
	assert.Equal(t, "05/01/2024", v.CreationDate)

	v, err = f.itineraries.View(ctx, it.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.NumViews, "owner views are not counted")
	assert.True(t, v.IsAuthor)

	v, err = f.itineraries.View(ctx, it.ID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.NumViews, "anonymous views count")
	assert.False(t, v.HasLiked)

	assert.Equal(t, t0, f.repo.rows[it.ID].it.LastModified, "views do not touch last_modified")
}

func TestView_AnonymousAuthorAndTombstone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	it, err := f.itineraries.Create(ctx, "ghost", input("Lost"))
	require.NoError(t, err)
	_, err = f.itineraries.ToggleLike(ctx, it.ID, "bob")
	require.NoError(t, err)

	v, err := f.itineraries.View(ctx, it.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, AnonymousAuthor, v.AuthorName)
	assert.True(t, v.HasLiked)
	assert.Equal(t, 1, v.LikesCount)

	require.NoError(t, f.itineraries.SoftDelete(ctx, it.ID, "ghost"))
	_, err = f.itineraries.View(ctx, it.ID, "bob")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestToggleLike_Idempotence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	it, err := f.itineraries.Create(ctx, "alice", input("Rome Trip"))
	require.NoError(t, err)
	_, err = f.itineraries.ToggleLike(ctx, it.ID, "carol")
	require.NoError(t, err)

	res, err := f.itineraries.ToggleLike(ctx, it.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, &models.LikeResult{Liked: true, LikesCount: 2}, res)

	res, err = f.itineraries.ToggleLike(ctx, it.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, &models.LikeResult{Liked: false, LikesCount: 1}, res)

	got, err := f.itineraries.GetOwned(ctx, it.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, got.Likes)
	assert.Equal(t, t0, got.LastModified, "likes do not touch last_modified")

	_, err = f.itineraries.ToggleLike(ctx, "missing", "bob")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetOwnedAndListMine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	older, err := f.itineraries.Create(ctx, "alice", input("Older"))
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	in := input("Newer")
	in.Image = &models.Image{Data: []byte("png"), Format: models.ImageFormatJPG}
	newer, err := f.itineraries.Create(ctx, "alice", in)
	require.NoError(t, err)
	gone, err := f.itineraries.Create(ctx, "alice", input("Gone"))
	require.NoError(t, err)
	require.NoError(t, f.itineraries.SoftDelete(ctx, gone.ID, "alice"))
	_, err = f.itineraries.Create(ctx, "bob", input("Bob's"))
	require.NoError(t, err)

	mine, err := f.itineraries.ListMine(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, newer.ID, mine[0].ID)
	assert.Equal(t, []byte("png"), mine[0].Image)
	assert.Equal(t, older.ID, mine[1].ID)

	_, err = f.itineraries.GetOwned(ctx, older.ID, "bob")
	assert.ErrorIs(t, err, common.ErrPermission)
	_, err = f.itineraries.GetOwned(ctx, gone.ID, "alice")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestMissingImageObjectIsTolerated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := input("Rome Trip")
	in.Image = &models.Image{Data: []byte("img"), Format: models.ImageFormatJPG}
	it, err := f.itineraries.Create(ctx, "alice", in)
	require.NoError(t, err)
	delete(f.images.objects, it.ImageKey)

	v, err := f.itineraries.View(ctx, it.ID, "bob")
	require.NoError(t, err)
	assert.Nil(t, v.Itinerary.Image)

	f.images.getErr = errBoom
	_, err = f.itineraries.View(ctx, it.ID, "bob")
	assert.ErrorIs(t, err, errBoom)
}
