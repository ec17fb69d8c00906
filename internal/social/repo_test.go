package social

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangaverse/internal/manga"
	"mangaverse/pkg/database/dbtest"
	"mangaverse/pkg/models"
)

func setup(t *testing.T) (*Repo, *models.Profile, *models.Profile) {
	t.Helper()
	db := dbtest.Open(t)
	dbtest.CreateUser(t, db, "u-a", "alice", false)
	dbtest.CreateUser(t, db, "u-b", "bob", false)

	r := NewRepo(db)
	a, err := r.GetByUserID(context.Background(), "u-a")
	require.NoError(t, err)
	b, err := r.GetByUsername(context.Background(), "BOB")
	require.NoError(t, err)
	require.NotNil(t, a)
	require.NotNil(t, b)
	return r, a, b
}

func TestProfileDefaults(t *testing.T) {
	_, a, b := setup(t)
	assert.Equal(t, "alice", a.Username)
	assert.Equal(t, "bob", b.Username)
	assert.Equal(t, "images/default-avatar.png", a.Avatar)
}

func TestToggleFavoriteTwiceRestoresState(t *testing.T) {
	r, a, b := setup(t)
	ctx := context.Background()

	m := &models.Manga{Title: "Liked", Author: "X", OwnerID: b.UserID}
	require.NoError(t, manga.NewRepo(r.DB).Create(ctx, m))

	liked, total, err := r.ToggleFavorite(ctx, a.ID, m.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, 1, total)

	liked, total, err = r.ToggleFavorite(ctx, b.ID, m.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, 2, total)

	liked, total, err = r.ToggleFavorite(ctx, a.ID, m.ID)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Equal(t, 1, total)

	ok, err := manga.NewRepo(r.DB).IsFavorite(ctx, a.UserID, m.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = manga.NewRepo(r.DB).IsFavorite(ctx, b.UserID, m.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestToggleFollow(t *testing.T) {
	r, a, b := setup(t)
	ctx := context.Background()

	following, followers, err := r.ToggleFollow(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, following)
	assert.Equal(t, 1, followers)

	is, err := r.IsFollowing(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, is)
	back, err := r.IsFollowing(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, back, "follows are asymmetric")

	list, err := r.Followers(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "alice", list[0].Username)

	following, followers, err = r.ToggleFollow(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, following)
	assert.Zero(t, followers)

	is, err = r.IsFollowing(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, is)
}

func TestSelfFollowRejected(t *testing.T) {
	r, a, _ := setup(t)
	ctx := context.Background()

	_, _, err := r.ToggleFollow(ctx, a.ID, a.ID)
	assert.ErrorIs(t, err, ErrSelfFollow)

	var n int
	require.NoError(t, r.DB.QueryRow(`SELECT COUNT(*) FROM follows`).Scan(&n))
	assert.Zero(t, n)
}

func TestUpdateProfile(t *testing.T) {
	r, a, _ := setup(t)
	ctx := context.Background()

	a.Bio = "hello"
	a.Avatar = "avatars/x.png"
	require.NoError(t, r.Update(ctx, a))

	got, err := r.GetByUserID(ctx, a.UserID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Bio)
	assert.Equal(t, "avatars/x.png", got.Avatar)
}
