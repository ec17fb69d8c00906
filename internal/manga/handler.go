package manga

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mangaverse/internal/auth"
	"mangaverse/internal/media"
	"mangaverse/internal/notify"
	"mangaverse/pkg/models"
)

// CacheInvalidator drops derived catalog data, such as cached search
// suggestions, after a manga changes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context)
}

type Handler struct {
	Repo   *Repo
	Media  media.Store
	Events notify.Publisher
	Cache  CacheInvalidator
}

func NewHandler(repo *Repo, store media.Store, events notify.Publisher) *Handler {
	if events == nil {
		events = notify.Nop{}
	}
	return &Handler{Repo: repo, Media: store, Events: events}
}

func (h *Handler) invalidate(ctx context.Context) {
	if h.Cache != nil {
		h.Cache.Invalidate(ctx)
	}
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/", h.home)
	rg.GET("/mangas", h.list)
	rg.GET("/mangas/:slug", h.detail)
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("/mangas", h.create)
	rg.PUT("/mangas/:slug", h.update)
	rg.DELETE("/mangas/:slug", h.delete)

	rg.POST("/mangas/:slug/arcs", h.createArc)
	rg.PUT("/mangas/:slug/arcs/:id", h.updateArc)
	rg.DELETE("/mangas/:slug/arcs/:id", h.deleteArc)
}

type View struct {
	models.Manga
	URL      string `json:"url"`
	CoverURL string `json:"cover_url"`
}

func (h *Handler) view(m models.Manga) View {
	return View{Manga: m, URL: "/mangas/" + m.Slug, CoverURL: h.Media.URL(m.Cover)}
}

func (h *Handler) views(ms []models.Manga) []View {
	out := make([]View, 0, len(ms))
	for _, m := range ms {
		out = append(out, h.view(m))
	}
	return out
}

func (h *Handler) home(c *gin.Context) {
	ctx := c.Request.Context()
	latest, err := h.Repo.Latest(ctx, 8)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	popular, err := h.Repo.Popular(ctx, 8)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"latest":  h.views(latest),
		"popular": h.views(popular),
		"genres":  models.Genres,
		"notice":  c.Query("notice"),
	})
}

func (h *Handler) list(c *gin.Context) {
	q := ListQuery{Page: parseInt(c.Query("page"), 1), PerPage: PerPage}
	if raw := strings.TrimSpace(c.Query("genre")); raw != "" {
		q.Genre = models.ParseGenre(raw)
		if q.Genre == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown genre", "genres": models.Genres})
			return
		}
	}

	total, err := h.Repo.Count(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count failed"})
		return
	}
	items, err := h.Repo.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":    total,
		"page":     q.Page,
		"per_page": q.PerPage,
		"genre":    q.Genre,
		"items":    h.views(items),
	})
}

type arcWithChapters struct {
	models.Arc
	Chapters []models.Chapter `json:"chapters"`
}

func (h *Handler) detail(c *gin.Context) {
	ctx := c.Request.Context()
	m, err := h.Repo.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	arcs, err := h.Repo.ListArcs(ctx, m.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list arcs failed"})
		return
	}
	chapters, err := h.Repo.ListChapters(ctx, m.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list chapters failed"})
		return
	}
	favorites, err := h.Repo.FavoritesCount(ctx, m.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count favorites failed"})
		return
	}

	claims := auth.MustGetClaims(c)
	isFavorite := false
	if claims != nil {
		if isFavorite, err = h.Repo.IsFavorite(ctx, claims.UserID, m.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "check favorite failed"})
			return
		}
	}

	grouped := make([]arcWithChapters, 0, len(arcs))
	index := make(map[int64]int, len(arcs))
	for i, a := range arcs {
		grouped = append(grouped, arcWithChapters{Arc: a, Chapters: []models.Chapter{}})
		index[a.ID] = i
	}
	loose := make([]models.Chapter, 0)
	for _, ch := range chapters {
		if ch.ArcID != nil {
			if i, ok := index[*ch.ArcID]; ok {
				grouped[i].Chapters = append(grouped[i].Chapters, ch)
				continue
			}
		}
		loose = append(loose, ch)
	}

	c.JSON(http.StatusOK, gin.H{
		"manga":       h.view(*m),
		"arcs":        grouped,
		"chapters":    loose,
		"favorites":   favorites,
		"is_favorite": isFavorite,
		"can_edit":    auth.CanModify(claims, m.OwnerID),
	})
}

type mangaForm struct {
	Title    *string `form:"title" json:"title"`
	Author   *string `form:"author" json:"author"`
	Genre    *string `form:"genre" json:"genre"`
	Synopsis *string `form:"synopsis" json:"synopsis"`
}

// apply validates the submitted fields and copies them onto m. On create
// every required field must be present; on update missing fields are kept.
func (f mangaForm) apply(m *models.Manga, creating bool) error {
	if f.Title != nil {
		m.Title = strings.TrimSpace(*f.Title)
	}
	if f.Author != nil {
		m.Author = strings.TrimSpace(*f.Author)
	}
	if f.Synopsis != nil {
		m.Synopsis = strings.TrimSpace(*f.Synopsis)
	}
	if f.Genre != nil {
		g := models.ParseGenre(*f.Genre)
		if g == "" {
			return errors.New("unknown genre")
		}
		m.Genre = g
	} else if creating {
		m.Genre = models.GenreOther
	}

	switch {
	case m.Title == "":
		return errors.New("title is required")
	case len([]rune(m.Title)) > 200:
		return errors.New("title must be at most 200 chars")
	case m.Author == "":
		return errors.New("author is required")
	case len([]rune(m.Author)) > 100:
		return errors.New("author must be at most 100 chars")
	}
	return nil
}

func (h *Handler) create(c *gin.Context) {
	claims := auth.MustGetClaims(c)

	var form mangaForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	m := models.Manga{OwnerID: claims.UserID}
	if err := form.apply(&m, true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if fh, err := c.FormFile("cover"); err == nil {
		key, err := media.SaveUpload(ctx, h.Media, media.CoverKey(fh.Filename), fh)
		if err != nil {
			slog.Error("save cover failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "save cover failed"})
			return
		}
		m.Cover = key
	}

	if err := h.Repo.Create(ctx, &m); err != nil {
		slog.Error("create manga failed", "title", m.Title, "error", err)
		if m.Cover != "" {
			if err := h.Media.Delete(ctx, m.Cover); err != nil {
				slog.Warn("delete orphaned cover failed", "key", m.Cover, "error", err)
			}
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	h.invalidate(ctx)

	notify.Emit(ctx, h.Events, notify.SubjectMangaCreated, notify.MangaCreated{
		MangaID: m.ID,
		Slug:    m.Slug,
		Title:   m.Title,
		OwnerID: m.OwnerID,
		At:      time.Now().UTC(),
	})

	c.JSON(http.StatusCreated, gin.H{"manga": h.view(m), "notice": "manga created"})
}

// ResolveOwned loads the manga named by the :slug parameter and checks that
// the requester may modify it. It writes the error response itself and
// returns ok=false when the request must stop.
func ResolveOwned(c *gin.Context, repo *Repo) (*models.Manga, bool) {
	m, err := repo.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return nil, false
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	if !auth.CanModify(auth.MustGetClaims(c), m.OwnerID) {
		c.JSON(http.StatusForbidden, gin.H{"error": auth.ErrForbidden.Error()})
		return nil, false
	}
	return m, true
}

func (h *Handler) update(c *gin.Context) {
	m, ok := ResolveOwned(c, h.Repo)
	if !ok {
		return
	}

	var form mangaForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if err := form.apply(m, false); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	oldCover, newCover := "", ""
	if fh, err := c.FormFile("cover"); err == nil {
		key, err := media.SaveUpload(ctx, h.Media, media.CoverKey(fh.Filename), fh)
		if err != nil {
			slog.Error("save cover failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "save cover failed"})
			return
		}
		oldCover, m.Cover, newCover = m.Cover, key, key
	}

	if err := h.Repo.Update(ctx, m); err != nil {
		slog.Error("update manga failed", "slug", m.Slug, "error", err)
		if newCover != "" {
			if err := h.Media.Delete(ctx, newCover); err != nil {
				slog.Warn("delete orphaned cover failed", "key", newCover, "error", err)
			}
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	h.invalidate(ctx)
	if oldCover != "" {
		if err := h.Media.Delete(ctx, oldCover); err != nil {
			slog.Warn("delete old cover failed", "key", oldCover, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"manga": h.view(*m), "notice": "manga updated"})
}

func (h *Handler) delete(c *gin.Context) {
	m, ok := ResolveOwned(c, h.Repo)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	assets, err := h.Repo.Delete(ctx, m.ID)
	if err != nil {
		slog.Error("delete manga failed", "slug", m.Slug, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	h.invalidate(ctx)
	for _, key := range assets {
		if err := h.Media.Delete(ctx, key); err != nil {
			slog.Warn("delete manga asset failed", "key", key, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "deleted", "notice": "manga deleted"})
}

type arcReq struct {
	Title string `json:"title" form:"title"`
	Order *int   `json:"order" form:"order"`
}

func (h *Handler) createArc(c *gin.Context) {
	m, ok := ResolveOwned(c, h.Repo)
	if !ok {
		return
	}

	var req arcReq
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	a := models.Arc{MangaID: m.ID, Title: strings.TrimSpace(req.Title)}
	if req.Order != nil {
		a.Order = *req.Order
	}
	if a.Title == "" || len([]rune(a.Title)) > 200 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title must be 1-200 chars"})
		return
	}

	if err := h.Repo.CreateArc(c.Request.Context(), &a); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, a)
}

// ownedArc resolves both the manga and the :id arc, rejecting arcs that
// belong to a different manga.
func (h *Handler) ownedArc(c *gin.Context) (*models.Arc, bool) {
	m, ok := ResolveOwned(c, h.Repo)
	if !ok {
		return nil, false
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return nil, false
	}
	a, err := h.Repo.GetArc(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return nil, false
	}
	if a == nil || a.MangaID != m.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	return a, true
}

func (h *Handler) updateArc(c *gin.Context) {
	a, ok := h.ownedArc(c)
	if !ok {
		return
	}

	var req arcReq
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if t := strings.TrimSpace(req.Title); t != "" {
		if len([]rune(t)) > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title must be 1-200 chars"})
			return
		}
		a.Title = t
	}
	if req.Order != nil {
		a.Order = *req.Order
	}

	if err := h.Repo.UpdateArc(c.Request.Context(), a); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) deleteArc(c *gin.Context) {
	a, ok := h.ownedArc(c)
	if !ok {
		return
	}
	if err := h.Repo.DeleteArc(c.Request.Context(), a.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
