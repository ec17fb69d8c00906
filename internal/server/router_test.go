package server

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangaverse/internal/auth"
	"mangaverse/internal/media"
	"mangaverse/pkg/database/dbtest"
)

type testApp struct {
	t      *testing.T
	router http.Handler
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	router := NewRouter(Deps{
		DB:          dbtest.Open(t),
		Tokens:      auth.TokenService{Secret: []byte("test"), Issuer: "mangaverse", Duration: time.Hour},
		Media:       media.NewLocalStore(root, "/media/"),
		MediaRoot:   root,
		MediaURL:    "/media/",
		MaxUploadMB: 32,
	})
	return &testApp{t: t, router: router}
}

func (a *testApp) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) json(method, target, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, token)
}

type file struct {
	field, name string
	data        []byte
}

func (a *testApp) multipart(method, target, token string, fields map[string]string, files ...file) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(a.t, mw.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(a.t, err)
		_, err = fw.Write(f.data)
		require.NoError(a.t, err)
	}
	require.NoError(a.t, mw.Close())

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return a.do(req, token)
}

func (a *testApp) register(username string) string {
	w := a.json(http.MethodPost, "/accounts/register", "", map[string]string{
		"username": username, "email": username + "@example.com", "password": "password123",
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 6))
	for x := 0; x < 4; x++ {
		for y := 0; y < 6; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func cbzBytes(t *testing.T, pages int) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i := pages; i >= 1; i-- {
		w, err := zw.Create("p" + strconv.Itoa(i) + ".png")
		require.NoError(t, err)
		_, err = w.Write(pngBytes(t))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type panelJSON struct {
	ID         int64  `json:"id"`
	PageNumber int    `json:"page_number"`
	Image      string `json:"image"`
	URL        string `json:"url"`
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	w := app.do(httptest.NewRequest(http.MethodGet, "/health", nil), "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = app.do(httptest.NewRequest(http.MethodGet, "/ready", nil), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ws_clients":0`)
}

func TestPublishingFlow(t *testing.T) {
	app := newTestApp(t)
	alice := app.register("alice")
	bob := app.register("bob")

	// anonymous users cannot create
	w := app.multipart(http.MethodPost, "/mangas", "", map[string]string{"title": "X", "author": "Y"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = app.multipart(http.MethodPost, "/mangas", alice,
		map[string]string{"title": "Steel Garden", "author": "Alice", "genre": "Sci-Fi"},
		file{"cover", "cover.png", pngBytes(t)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Manga struct {
			Slug     string `json:"slug"`
			Genre    string `json:"genre"`
			CoverURL string `json:"cover_url"`
		} `json:"manga"`
	}
	decode(t, w, &created)
	assert.Equal(t, "steel-garden", created.Manga.Slug)
	assert.Equal(t, "sci_fi", created.Manga.Genre)

	// the cover is served from the media root
	w = app.do(httptest.NewRequest(http.MethodGet, created.Manga.CoverURL, nil), "")
	assert.Equal(t, http.StatusOK, w.Code)

	// bob is neither owner nor admin
	w = app.multipart(http.MethodPut, "/mangas/steel-garden", bob, map[string]string{"title": "Stolen"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// chapter 1 with a loose image, a broken PDF and a 3-page archive
	w = app.multipart(http.MethodPost, "/mangas/steel-garden/chapters", alice,
		map[string]string{"number": "1", "title": "Seeds"},
		file{"files", "cover-page.png", pngBytes(t)},
		file{"files", "broken.pdf", []byte("not a pdf")},
		file{"files", "pages.cbz", cbzBytes(t, 3)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var chapterResp struct {
		Chapter struct {
			ID   int64  `json:"id"`
			Slug string `json:"slug"`
		} `json:"chapter"`
		Panels []panelJSON `json:"panels"`
		Failed []struct {
			File string `json:"file"`
		} `json:"failed"`
	}
	decode(t, w, &chapterResp)
	assert.Equal(t, "chapter-1", chapterResp.Chapter.Slug)
	require.Len(t, chapterResp.Panels, 4)
	for i, p := range chapterResp.Panels {
		assert.Equal(t, i+1, p.PageNumber)
	}
	assert.Contains(t, chapterResp.Panels[1].Image, "cbz_page_2.jpg")
	require.Len(t, chapterResp.Failed, 1)
	assert.Equal(t, "broken.pdf", chapterResp.Failed[0].File)

	// duplicate chapter number
	w = app.multipart(http.MethodPost, "/mangas/steel-garden/chapters", alice, map[string]string{"number": "1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// drag-and-drop appends after the last page
	w = app.multipart(http.MethodPost, "/panels/drop", alice,
		map[string]string{"chapter_id": strconv.FormatInt(chapterResp.Chapter.ID, 10)},
		file{"file", "late.png", pngBytes(t)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var dropped struct {
		Success bool        `json:"success"`
		Panels  []panelJSON `json:"panels"`
	}
	decode(t, w, &dropped)
	assert.True(t, dropped.Success)
	require.Len(t, dropped.Panels, 1)
	assert.Equal(t, 5, dropped.Panels[0].PageNumber)

	w = app.multipart(http.MethodPost, "/panels/drop", bob,
		map[string]string{"chapter_id": strconv.FormatInt(chapterResp.Chapter.ID, 10)},
		file{"file", "spam.png", pngBytes(t)})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// reader view
	w = app.do(httptest.NewRequest(http.MethodGet, "/mangas/steel-garden/chapter-1", nil), bob)
	require.Equal(t, http.StatusOK, w.Code)
	var reader struct {
		Panels  []panelJSON `json:"panels"`
		CanEdit bool        `json:"can_edit"`
	}
	decode(t, w, &reader)
	assert.Len(t, reader.Panels, 5)
	assert.False(t, reader.CanEdit)

	// deleting a panel closes the gap
	w = app.do(httptest.NewRequest(http.MethodDelete, "/panels/"+strconv.FormatInt(reader.Panels[0].ID, 10), nil), alice)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = app.do(httptest.NewRequest(http.MethodGet, "/mangas/steel-garden/chapter-1", nil), alice)
	decode(t, w, &reader)
	require.Len(t, reader.Panels, 4)
	assert.Equal(t, 1, reader.Panels[0].PageNumber)
	assert.Equal(t, 4, reader.Panels[3].PageNumber)
	assert.True(t, reader.CanEdit)
}

func TestSocialFlow(t *testing.T) {
	app := newTestApp(t)
	alice := app.register("alice")
	bob := app.register("bob")

	w := app.multipart(http.MethodPost, "/mangas", alice, map[string]string{"title": "Lantern", "author": "Alice"})
	require.Equal(t, http.StatusCreated, w.Code)

	var fav struct {
		Liked bool `json:"liked"`
		Total int  `json:"total"`
	}
	w = app.json(http.MethodPost, "/accounts/favorites/lantern", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &fav)
	assert.True(t, fav.Liked)
	assert.Equal(t, 1, fav.Total)

	w = app.json(http.MethodPost, "/accounts/favorites/lantern", bob, nil)
	decode(t, w, &fav)
	assert.False(t, fav.Liked)
	assert.Equal(t, 0, fav.Total)

	var follow struct {
		Following bool `json:"following"`
		Followers int  `json:"followers"`
	}
	w = app.json(http.MethodPost, "/accounts/u/alice/follow", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &follow)
	assert.True(t, follow.Following)
	assert.Equal(t, 1, follow.Followers)

	w = app.json(http.MethodPost, "/accounts/u/bob/follow", bob, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// messaging
	w = app.json(http.MethodPost, "/accounts/messages/alice", bob, map[string]string{"content": "loved it"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = app.json(http.MethodPost, "/accounts/messages/bob", bob, map[string]string{"content": "hi me"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.json(http.MethodPost, "/accounts/messages/nobody", bob, map[string]string{"content": "hello?"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = app.do(httptest.NewRequest(http.MethodGet, "/accounts/messages", nil), alice)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unread":1`)

	// search redirect to a user profile
	w = app.do(httptest.NewRequest(http.MethodGet, "/search?q=@alice", nil), "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/accounts/u/alice", w.Header().Get("Location"))

	w = app.do(httptest.NewRequest(http.MethodGet, "/accounts/u/alice", nil), "")
	assert.Equal(t, http.StatusOK, w.Code)
}
