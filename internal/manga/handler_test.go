package manga

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangaverse/internal/auth"
	"mangaverse/internal/media"
)

type countingCache struct{ calls int }

func (c *countingCache) Invalidate(context.Context) { c.calls++ }

type handlerFixture struct {
	router *gin.Engine
	repo   *Repo
	cache  *countingCache
	root   string
	owner  string
}

// newHandlerFixture mounts the manga routes with claims for userID injected
// ahead of every request. An empty userID serves anonymous requests.
func newHandlerFixture(t *testing.T, userID string) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo, owner := setupRepo(t)
	root := t.TempDir()
	h := NewHandler(repo, media.NewLocalStore(root, "/media"), nil)
	cache := &countingCache{}
	h.Cache = cache

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set(auth.CtxClaimsKey, &auth.Claims{UserID: userID, Username: userID})
		}
		c.Next()
	})
	h.RegisterPublicRoutes(&r.RouterGroup)
	h.RegisterProtectedRoutes(&r.RouterGroup)
	return &handlerFixture{router: r, repo: repo, cache: cache, root: root, owner: owner}
}

func (f *handlerFixture) do(t *testing.T, method, path, contentType string, body *bytes.Buffer) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func formBody(t *testing.T, fields map[string]string, cover []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if cover != nil {
		fw, err := mw.CreateFormFile("cover", "cover.png")
		require.NoError(t, err)
		_, err = fw.Write(cover)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestDetailReportsViewerFavorite(t *testing.T) {
	f := newHandlerFixture(t, "u-owner")
	ctx := context.Background()
	m := createManga(t, f.repo, f.owner, "Starred")

	detail := func() map[string]any {
		w := f.do(t, http.MethodGet, "/mangas/"+m.Slug, "", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return body
	}

	assert.Equal(t, false, detail()["is_favorite"])

	_, err := f.repo.DB.ExecContext(ctx, `
		INSERT INTO favorites (profile_id, manga_id)
		SELECT id, ? FROM profiles WHERE user_id = ?
	`, m.ID, f.owner)
	require.NoError(t, err)

	body := detail()
	assert.Equal(t, true, body["is_favorite"])
	assert.Equal(t, float64(1), body["favorites"])
}

func TestMutationsInvalidateSuggestCache(t *testing.T) {
	f := newHandlerFixture(t, "u-owner")

	body, ct := formBody(t, map[string]string{"title": "Fresh", "author": "A"}, nil)
	w := f.do(t, http.MethodPost, "/mangas", ct, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 1, f.cache.calls)

	body, ct = formBody(t, map[string]string{"title": "Fresher"}, nil)
	w = f.do(t, http.MethodPut, "/mangas/fresh", ct, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, f.cache.calls)

	w = f.do(t, http.MethodDelete, "/mangas/fresh", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 3, f.cache.calls)

	body, ct = formBody(t, map[string]string{"author": "A"}, nil)
	w = f.do(t, http.MethodPost, "/mangas", ct, body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 3, f.cache.calls, "rejected forms leave the cache alone")
}

func TestCreateFailureRemovesCover(t *testing.T) {
	// No user row backs "u-ghost", so the insert trips the owner foreign key.
	f := newHandlerFixture(t, "u-ghost")

	body, ct := formBody(t, map[string]string{"title": "Orphan", "author": "A"}, []byte("\x89PNG\r\n\x1a\nnot really"))
	w := f.do(t, http.MethodPost, "/mangas", ct, body)
	require.Equal(t, http.StatusInternalServerError, w.Code, w.Body.String())
	assert.Zero(t, f.cache.calls)

	var files []string
	err := filepath.Walk(f.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, strings.TrimPrefix(p, f.root))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, files)
}
