package grpcserver

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"mangaverse/internal/chapter"
	"mangaverse/internal/manga"
	"mangaverse/internal/media"
	"mangaverse/internal/search"
	"mangaverse/pkg/database/dbtest"
	"mangaverse/pkg/models"
)

func startCatalog(t *testing.T) (*Client, *manga.Repo, *chapter.Repo) {
	t.Helper()

	db := dbtest.Open(t)
	dbtest.CreateUser(t, db, "u-a", "alice", false)
	mangas := manga.NewRepo(db)
	store := media.NewLocalStore(t.TempDir(), "/media")

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(NewServer(mangas, search.NewRepo(db), store))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewClient(conn), mangas, chapter.NewRepo(db)
}

func TestGetManga(t *testing.T) {
	client, mangas, _ := startCatalog(t)
	ctx := context.Background()

	m := &models.Manga{Title: "Night Train", Author: "Ren", Genre: models.GenreDrama, Cover: "portadas/x.jpg", OwnerID: "u-a"}
	require.NoError(t, mangas.Create(ctx, m))

	resp, err := client.GetManga(ctx, &GetMangaRequest{Slug: "night-train"})
	require.NoError(t, err)
	require.NotNil(t, resp.Manga)
	assert.Equal(t, m.ID, resp.Manga.ID)
	assert.Equal(t, "Night Train", resp.Manga.Title)
	assert.Equal(t, string(models.GenreDrama), resp.Manga.Genre)
	assert.Equal(t, "/media/portadas/x.jpg", resp.Manga.CoverURL)
	assert.Zero(t, resp.Manga.Favorites)

	_, err = client.GetManga(ctx, &GetMangaRequest{Slug: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.GetManga(ctx, &GetMangaRequest{Slug: " "})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestSearchManga(t *testing.T) {
	client, mangas, _ := startCatalog(t)
	ctx := context.Background()

	for _, title := range []string{"Star Fox", "Star Child", "Moon Child"} {
		require.NoError(t, mangas.Create(ctx, &models.Manga{Title: title, Author: "A", OwnerID: "u-a"}))
	}

	resp, err := client.SearchManga(ctx, &SearchMangaRequest{Query: "star", Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, resp.Total)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Star Child", resp.Items[0].Title)

	_, err = client.SearchManga(ctx, &SearchMangaRequest{Query: ""})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.SearchManga(ctx, &SearchMangaRequest{Query: "star", Offset: -1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestListChapters(t *testing.T) {
	client, mangas, chapters := startCatalog(t)
	ctx := context.Background()

	m := &models.Manga{Title: "Tides", Author: "A", OwnerID: "u-a"}
	require.NoError(t, mangas.Create(ctx, m))
	for _, n := range []int{2, 1} {
		require.NoError(t, chapters.Create(ctx, &models.Chapter{MangaID: m.ID, Number: n}))
	}

	resp, err := client.ListChapters(ctx, &ListChaptersRequest{Slug: "tides"})
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)
	assert.EqualValues(t, 1, resp.Items[0].Number)
	assert.Equal(t, "chapter-1", resp.Items[0].Slug)
	assert.EqualValues(t, 2, resp.Items[1].Number)
}
