package chapter

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"mangaverse/internal/auth"
	"mangaverse/internal/ingest"
	"mangaverse/internal/manga"
	"mangaverse/internal/media"
	"mangaverse/pkg/models"
)

type Handler struct {
	Repo     *Repo
	Mangas   *manga.Repo
	Pipeline *ingest.Pipeline
	Media    media.Store
}

func NewHandler(repo *Repo, mangas *manga.Repo, pipeline *ingest.Pipeline, store media.Store) *Handler {
	return &Handler{Repo: repo, Mangas: mangas, Pipeline: pipeline, Media: store}
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/mangas/:slug/:chapter", h.detail)
	rg.GET("/mangas/:slug/:chapter/epub", h.epub)
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("/mangas/:slug/chapters", h.create)
	rg.PUT("/mangas/:slug/chapters/:chapter", h.update)
	rg.DELETE("/mangas/:slug/chapters/:chapter", h.delete)
	rg.POST("/mangas/:slug/chapters/:chapter/panels", h.upload)
	rg.PUT("/mangas/:slug/chapters/:chapter/reorder", h.reorder)

	rg.POST("/panels/drop", h.drop)
	rg.DELETE("/panels/:id", h.deletePanel)
}

type panelView struct {
	models.Panel
	URL string `json:"url"`
}

func (h *Handler) panelViews(ps []models.Panel) []panelView {
	out := make([]panelView, 0, len(ps))
	for _, p := range ps {
		out = append(out, panelView{Panel: p, URL: h.Media.URL(p.Image)})
	}
	return out
}

func (h *Handler) target(m *models.Manga, ch *models.Chapter) ingest.Target {
	return ingest.Target{ChapterID: ch.ID, Number: ch.Number, MangaSlug: m.Slug, ChapterSlug: ch.Slug}
}

// lookup resolves :slug and :chapter for read-only routes.
func (h *Handler) lookup(c *gin.Context) (*models.Manga, *models.Chapter, bool) {
	ctx := c.Request.Context()
	m, err := h.Mangas.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return nil, nil, false
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, nil, false
	}
	ch, err := h.Repo.GetBySlug(ctx, m.ID, c.Param("chapter"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return nil, nil, false
	}
	if ch == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, nil, false
	}
	return m, ch, true
}

// owned is lookup plus the ownership check of the parent manga.
func (h *Handler) owned(c *gin.Context) (*models.Manga, *models.Chapter, bool) {
	m, ok := manga.ResolveOwned(c, h.Mangas)
	if !ok {
		return nil, nil, false
	}
	ch, err := h.Repo.GetBySlug(c.Request.Context(), m.ID, c.Param("chapter"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return nil, nil, false
	}
	if ch == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, nil, false
	}
	return m, ch, true
}

func (h *Handler) detail(c *gin.Context) {
	m, ch, ok := h.lookup(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	panels, err := h.Repo.ListPanels(ctx, ch.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list panels failed"})
		return
	}
	prev, next, err := h.Repo.Neighbors(ctx, m.ID, ch.Number)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "neighbors failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"manga":    gin.H{"title": m.Title, "slug": m.Slug},
		"chapter":  ch,
		"panels":   h.panelViews(panels),
		"prev":     prev,
		"next":     next,
		"can_edit": auth.CanModify(auth.MustGetClaims(c), m.OwnerID),
	})
}

func (h *Handler) epub(c *gin.Context) {
	m, ch, ok := h.lookup(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	panels, err := h.Repo.ListPanels(ctx, ch.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list panels failed"})
		return
	}
	if len(panels) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "chapter has no panels"})
		return
	}

	var buf bytes.Buffer
	if err := WriteEPUB(ctx, h.Media, m, ch, panels, &buf); err != nil {
		slog.Error("epub export failed", "manga", m.Slug, "chapter", ch.Slug, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+EPUBFilename(m, ch)+`"`)
	c.Data(http.StatusOK, "application/epub+zip", buf.Bytes())
}

type chapterForm struct {
	Title  *string `form:"title" json:"title"`
	Number *int    `form:"number" json:"number"`
	ArcID  *string `form:"arc_id" json:"arc_id"`
}

// apply copies the form onto ch. An empty arc_id detaches the chapter.
func (f chapterForm) apply(c *gin.Context, repo *manga.Repo, m *models.Manga, ch *models.Chapter, creating bool) error {
	if f.Title != nil {
		ch.Title = strings.TrimSpace(*f.Title)
	}
	if len([]rune(ch.Title)) > 200 {
		return invalid("title must be at most 200 chars")
	}

	if f.Number != nil {
		ch.Number = *f.Number
	} else if creating {
		return invalid("number is required")
	}
	if ch.Number < 1 {
		return invalid("number must be at least 1")
	}

	if f.ArcID != nil {
		raw := strings.TrimSpace(*f.ArcID)
		if raw == "" {
			ch.ArcID = nil
			return nil
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return invalid("invalid arc_id")
		}
		if err := repo.ArcBelongsTo(c.Request.Context(), id, m.ID); err != nil {
			return err
		}
		ch.ArcID = &id
	}
	return nil
}

func (h *Handler) create(c *gin.Context) {
	m, ok := manga.ResolveOwned(c, h.Mangas)
	if !ok {
		return
	}

	var form chapterForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	ch := models.Chapter{MangaID: m.ID}
	if err := form.apply(c, h.Mangas, m, &ch, true); err != nil {
		writeFormError(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.Repo.Create(ctx, &ch); err != nil {
		if errors.Is(err, ErrDuplicateChapter) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		slog.Error("create chapter failed", "manga", m.Slug, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}

	res, err := h.Pipeline.Ingest(ctx, h.target(m, &ch), uploads(c))
	if err != nil {
		slog.Error("ingest failed", "manga", m.Slug, "chapter", ch.Slug, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed", "chapter": ch, "result": res})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"chapter": ch, "panels": h.panelViews(res.Created), "failed": res.Failed})
}

func (h *Handler) update(c *gin.Context) {
	m, ch, ok := h.owned(c)
	if !ok {
		return
	}

	var form chapterForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	oldSlug := ch.Slug
	if err := form.apply(c, h.Mangas, m, ch, false); err != nil {
		writeFormError(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.Repo.Update(ctx, ch); err != nil {
		if errors.Is(err, ErrDuplicateChapter) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if _, err := MovePanelAssets(ctx, h.Repo, h.Media, m.Slug, oldSlug, ch); err != nil {
		slog.Warn("move panel assets failed", "chapter", ch.ID, "from", oldSlug, "to", ch.Slug, "error", err)
	}
	c.JSON(http.StatusOK, ch)
}

func (h *Handler) delete(c *gin.Context) {
	_, ch, ok := h.owned(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	assets, err := h.Repo.Delete(ctx, ch.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	for _, key := range assets {
		if err := h.Media.Delete(ctx, key); err != nil {
			slog.Warn("delete panel asset failed", "key", key, "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// upload is the bulk panel upload: every "files" part becomes one or more
// panels appended to the chapter.
func (h *Handler) upload(c *gin.Context) {
	m, ch, ok := h.owned(c)
	if !ok {
		return
	}

	files := uploads(c)
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files uploaded"})
		return
	}

	res, err := h.Pipeline.Ingest(c.Request.Context(), h.target(m, ch), files)
	if err != nil {
		slog.Error("ingest failed", "manga", m.Slug, "chapter", ch.Slug, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed", "result": res})
		return
	}
	if len(res.Created) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no file could be processed", "failed": res.Failed})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"panels": h.panelViews(res.Created), "failed": res.Failed})
}

// drop accepts one file for an existing chapter id and always answers JSON.
func (h *Handler) drop(c *gin.Context) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.PostForm("chapter_id")), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid chapter_id"})
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "missing file"})
		return
	}

	ctx := c.Request.Context()
	ch, err := h.Repo.GetByID(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "get failed"})
		return
	}
	if ch == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "chapter not found"})
		return
	}
	m, err := h.Mangas.GetByID(ctx, ch.MangaID)
	if err != nil || m == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "get failed"})
		return
	}
	if !auth.CanModify(auth.MustGetClaims(c), m.OwnerID) {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": auth.ErrForbidden.Error()})
		return
	}

	res, err := h.Pipeline.Ingest(ctx, h.target(m, ch), []ingest.Upload{ingest.FromMultipart(fh)})
	if err != nil {
		slog.Error("drop upload failed", "chapter_id", ch.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "upload failed"})
		return
	}
	if len(res.Created) == 0 {
		msg := "file could not be processed"
		if len(res.Failed) > 0 {
			msg = res.Failed[0].Error
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "panels": h.panelViews(res.Created)})
}

type reorderReq struct {
	Order []int64 `json:"order" binding:"required"`
}

func (h *Handler) reorder(c *gin.Context) {
	_, ch, ok := h.owned(c)
	if !ok {
		return
	}

	var req reorderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ctx := c.Request.Context()
	if err := h.Repo.Reorder(ctx, ch.ID, req.Order); err != nil {
		if errors.Is(err, ErrReorderMismatch) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reorder failed"})
		return
	}

	panels, err := h.Repo.ListPanels(ctx, ch.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list panels failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "panels": h.panelViews(panels)})
}

func (h *Handler) deletePanel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	ctx := c.Request.Context()
	p, err := h.Repo.GetPanel(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	ch, err := h.Repo.GetByID(ctx, p.ChapterID)
	if err != nil || ch == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	m, err := h.Mangas.GetByID(ctx, ch.MangaID)
	if err != nil || m == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if !auth.CanModify(auth.MustGetClaims(c), m.OwnerID) {
		c.JSON(http.StatusForbidden, gin.H{"error": auth.ErrForbidden.Error()})
		return
	}

	deleted, err := h.Repo.DeletePanel(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if deleted != nil {
		if err := h.Media.Delete(ctx, deleted.Image); err != nil {
			slog.Warn("delete panel asset failed", "key", deleted.Image, "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

type invalidError string

func (e invalidError) Error() string { return string(e) }

func invalid(msg string) error { return invalidError(msg) }

func writeFormError(c *gin.Context, err error) {
	var ie invalidError
	if errors.As(err, &ie) || errors.Is(err, manga.ErrArcNotInManga) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	slog.Error("chapter form lookup failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
}

// uploads collects the repeatable "files" field of a multipart request.
func uploads(c *gin.Context) []ingest.Upload {
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return nil
	}
	fhs := form.File["files"]
	out := make([]ingest.Upload, 0, len(fhs))
	for _, fh := range fhs {
		out = append(out, ingest.FromMultipart(fh))
	}
	return out
}
