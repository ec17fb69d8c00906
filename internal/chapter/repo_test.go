package chapter

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangaverse/internal/manga"
	"mangaverse/pkg/database/dbtest"
	"mangaverse/pkg/models"
)

func setup(t *testing.T) (*Repo, *models.Manga) {
	t.Helper()
	db := dbtest.Open(t)
	owner := dbtest.CreateUser(t, db, "u-owner", "owner", false)
	m := &models.Manga{Title: "Series", Author: "A", OwnerID: owner}
	require.NoError(t, manga.NewRepo(db).Create(context.Background(), m))
	return NewRepo(db), m
}

func addChapter(t *testing.T, r *Repo, mangaID int64, number int) *models.Chapter {
	t.Helper()
	ch := &models.Chapter{MangaID: mangaID, Title: fmt.Sprintf("Part %d", number), Number: number}
	require.NoError(t, r.Create(context.Background(), ch))
	return ch
}

func addPanels(t *testing.T, r *Repo, chapterID int64, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 1; i <= n; i++ {
		p, err := r.AddPanel(context.Background(), chapterID, fmt.Sprintf("p%d.jpg", i), i)
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	return ids
}

func TestCreateChapterSlugAndUniqueNumber(t *testing.T) {
	r, m := setup(t)

	ch := addChapter(t, r, m.ID, 3)
	assert.Equal(t, "chapter-3", ch.Slug)

	dup := &models.Chapter{MangaID: m.ID, Title: "Again", Number: 3}
	assert.ErrorIs(t, r.Create(context.Background(), dup), ErrDuplicateChapter)
}

func TestUpdateMovesSlug(t *testing.T) {
	r, m := setup(t)
	ctx := context.Background()

	ch := addChapter(t, r, m.ID, 1)
	addChapter(t, r, m.ID, 2)

	ch.Number = 5
	require.NoError(t, r.Update(ctx, ch))
	got, err := r.GetBySlug(ctx, m.ID, "chapter-5")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ch.ID, got.ID)

	ch.Number = 2
	assert.ErrorIs(t, r.Update(ctx, ch), ErrDuplicateChapter)
}

func TestNeighbors(t *testing.T) {
	r, m := setup(t)
	ctx := context.Background()

	addChapter(t, r, m.ID, 1)
	mid := addChapter(t, r, m.ID, 4)
	addChapter(t, r, m.ID, 9)

	prev, next, err := r.Neighbors(ctx, m.ID, mid.Number)
	require.NoError(t, err)
	require.NotNil(t, prev)
	require.NotNil(t, next)
	assert.Equal(t, 1, prev.Number)
	assert.Equal(t, 9, next.Number)

	prev, next, err = r.Neighbors(ctx, m.ID, 1)
	require.NoError(t, err)
	assert.Nil(t, prev)
	require.NotNil(t, next)
	assert.Equal(t, 4, next.Number)
}

func TestReorder(t *testing.T) {
	r, m := setup(t)
	ctx := context.Background()

	ch := addChapter(t, r, m.ID, 1)
	ids := addPanels(t, r, ch.ID, 3)

	require.NoError(t, r.Reorder(ctx, ch.ID, []int64{ids[2], ids[0], ids[1]}))
	panels, err := r.ListPanels(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, panels, 3)
	assert.Equal(t, ids[2], panels[0].ID)
	assert.Equal(t, ids[0], panels[1].ID)
	assert.Equal(t, ids[1], panels[2].ID)
	for i, p := range panels {
		assert.Equal(t, i+1, p.PageNumber)
	}
}

func TestReorderRejectsMismatch(t *testing.T) {
	r, m := setup(t)
	ctx := context.Background()

	ch := addChapter(t, r, m.ID, 1)
	other := addChapter(t, r, m.ID, 2)
	ids := addPanels(t, r, ch.ID, 2)
	foreign := addPanels(t, r, other.ID, 1)

	cases := map[string][]int64{
		"missing":   {ids[0]},
		"duplicate": {ids[0], ids[0]},
		"foreign":   {ids[0], foreign[0]},
		"extra":     {ids[0], ids[1], foreign[0]},
	}
	for name, order := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, r.Reorder(ctx, ch.ID, order), ErrReorderMismatch)
		})
	}

	panels, err := r.ListPanels(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, ids[0], panels[0].ID)
}

func TestDeletePanelRenumbers(t *testing.T) {
	r, m := setup(t)
	ctx := context.Background()

	ch := addChapter(t, r, m.ID, 1)
	ids := addPanels(t, r, ch.ID, 4)

	deleted, err := r.DeletePanel(ctx, ids[1])
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, "p2.jpg", deleted.Image)

	panels, err := r.ListPanels(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, panels, 3)
	assert.Equal(t, []int64{ids[0], ids[2], ids[3]}, []int64{panels[0].ID, panels[1].ID, panels[2].ID})
	assert.Equal(t, []int{1, 2, 3}, []int{panels[0].PageNumber, panels[1].PageNumber, panels[2].PageNumber})

	missing, err := r.DeletePanel(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDeleteChapterReturnsAssets(t *testing.T) {
	r, m := setup(t)
	ctx := context.Background()

	ch := addChapter(t, r, m.ID, 1)
	addPanels(t, r, ch.ID, 2)

	assets, err := r.Delete(ctx, ch.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1.jpg", "p2.jpg"}, assets)

	n, err := r.CountPanels(ctx, ch.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	got, err := r.GetByID(ctx, ch.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
