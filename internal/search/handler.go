package search

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"mangaverse/internal/auth"
	"mangaverse/internal/media"
	"mangaverse/pkg/models"
)

type Handler struct {
	Repo  *Repo
	Users *auth.Repo
	Media media.Store
	Cache SuggestCache // nil disables caching
}

func NewHandler(repo *Repo, users *auth.Repo, store media.Store, cache SuggestCache) *Handler {
	return &Handler{Repo: repo, Users: users, Media: store, Cache: cache}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/search", h.search)
	rg.GET("/search/suggest", h.suggest)
}

func (h *Handler) search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enter a term to search", "notice": "enter a term to search"})
		return
	}

	ctx := c.Request.Context()
	if name, ok := strings.CutPrefix(q, "@"); ok {
		name = strings.TrimSpace(name)
		u, err := h.Users.GetByUsername(ctx, name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
		if u == nil {
			c.Redirect(http.StatusFound, "/?notice="+url.QueryEscape("user not found"))
			return
		}
		c.Redirect(http.StatusFound, "/accounts/u/"+url.PathEscape(u.Username))
		return
	}

	page := 1
	if n, err := strconv.Atoi(c.Query("page")); err == nil && n > 0 {
		page = n
	}

	total, err := h.Repo.Count(ctx, q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	items, err := h.Repo.Search(ctx, q, PerPage, (page-1)*PerPage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":    q,
		"total":    total,
		"page":     page,
		"per_page": PerPage,
		"items":    items,
	})
}

func (h *Handler) suggest(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusOK, gin.H{"results": []models.Suggestion{}})
		return
	}

	ctx := c.Request.Context()
	if h.Cache != nil {
		if cached, ok := h.Cache.Get(ctx, q); ok {
			c.JSON(http.StatusOK, gin.H{"results": cached})
			return
		}
	}

	items, err := h.Repo.Search(ctx, q, SuggestLimit, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	results := make([]models.Suggestion, 0, len(items))
	for _, m := range items {
		s := models.Suggestion{
			Title:   m.Title,
			Author:  m.Author,
			URL:     "/mangas/" + m.Slug,
			Snippet: Snippet(m.Synopsis),
		}
		if m.Cover != "" {
			s.Cover = h.Media.URL(m.Cover)
		}
		results = append(results, s)
	}
	if h.Cache != nil {
		h.Cache.Set(ctx, q, results)
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
