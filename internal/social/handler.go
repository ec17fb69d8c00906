package social

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mangaverse/internal/auth"
	"mangaverse/internal/manga"
	"mangaverse/internal/media"
	"mangaverse/pkg/models"
)

const maxBioLen = 500

type Handler struct {
	Repo   *Repo
	Mangas *manga.Repo
	Media  media.Store
}

func NewHandler(repo *Repo, mangas *manga.Repo, store media.Store) *Handler {
	return &Handler{Repo: repo, Mangas: mangas, Media: store}
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/u/:username", h.publicProfile)
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.GET("/profile", h.dashboard)
	rg.PUT("/profile", h.updateProfile)
	rg.POST("/favorites/:slug", h.toggleFavorite)
	rg.POST("/u/:username/follow", h.toggleFollow)
}

type profileView struct {
	models.Profile
	AvatarURL string `json:"avatar_url"`
}

func (h *Handler) view(p models.Profile) profileView {
	return profileView{Profile: p, AvatarURL: h.Media.URL(p.Avatar)}
}

func (h *Handler) views(ps []models.Profile) []profileView {
	out := make([]profileView, 0, len(ps))
	for _, p := range ps {
		out = append(out, h.view(p))
	}
	return out
}

// me loads the requester's profile, answering 404 if the user has none.
func (h *Handler) me(c *gin.Context) (*models.Profile, bool) {
	claims := auth.MustGetClaims(c)
	p, err := h.Repo.GetByUserID(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get profile failed"})
		return nil, false
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return nil, false
	}
	return p, true
}

func (h *Handler) dashboard(c *gin.Context) {
	p, ok := h.me(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	favorites, err := h.Mangas.FavoritedBy(ctx, p.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list favorites failed"})
		return
	}
	following, err := h.Repo.Following(ctx, p.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list following failed"})
		return
	}
	followers, err := h.Repo.Followers(ctx, p.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list followers failed"})
		return
	}
	owned, err := h.Mangas.ListByOwner(ctx, p.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list mangas failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profile":   h.view(*p),
		"favorites": favorites,
		"following": h.views(following),
		"followers": h.views(followers),
		"mangas":    owned,
	})
}

func (h *Handler) updateProfile(c *gin.Context) {
	p, ok := h.me(c)
	if !ok {
		return
	}

	if bio, present := c.GetPostForm("bio"); present {
		bio = strings.TrimSpace(bio)
		if len([]rune(bio)) > maxBioLen {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bio must be at most 500 chars"})
			return
		}
		p.Bio = bio
	}

	ctx := c.Request.Context()
	oldAvatar := ""
	if fh, err := c.FormFile("avatar"); err == nil {
		key, err := media.SaveUpload(ctx, h.Media, media.AvatarKey(fh.Filename), fh)
		if err != nil {
			slog.Error("save avatar failed", "user_id", p.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "save avatar failed"})
			return
		}
		oldAvatar, p.Avatar = p.Avatar, key
	}

	if err := h.Repo.Update(ctx, p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	// the shared default avatar is never removed
	if strings.HasPrefix(oldAvatar, "avatars/") {
		if err := h.Media.Delete(ctx, oldAvatar); err != nil {
			slog.Warn("delete old avatar failed", "key", oldAvatar, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"profile": h.view(*p), "notice": "profile updated"})
}

func (h *Handler) publicProfile(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := h.Repo.GetByUsername(ctx, c.Param("username"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get profile failed"})
		return
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	owned, err := h.Mangas.ListByOwner(ctx, p.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list mangas failed"})
		return
	}
	favorites, err := h.Mangas.FavoritedBy(ctx, p.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list favorites failed"})
		return
	}
	followers, err := h.Repo.Followers(ctx, p.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list followers failed"})
		return
	}
	following, err := h.Repo.Following(ctx, p.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list following failed"})
		return
	}

	isFollowing, isSelf := false, false
	if claims := auth.MustGetClaims(c); claims != nil {
		isSelf = claims.UserID == p.UserID
		if viewer, err := h.Repo.GetByUserID(ctx, claims.UserID); err == nil && viewer != nil && !isSelf {
			isFollowing, err = h.Repo.IsFollowing(ctx, viewer.ID, p.ID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "check follow failed"})
				return
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"profile":      h.view(*p),
		"mangas":       owned,
		"favorites":    favorites,
		"followers":    len(followers),
		"following":    len(following),
		"is_following": isFollowing,
		"is_self":      isSelf,
	})
}

func (h *Handler) toggleFavorite(c *gin.Context) {
	p, ok := h.me(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	m, err := h.Mangas.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	liked, total, err := h.Repo.ToggleFavorite(ctx, p.ID, m.ID)
	if err != nil {
		slog.Error("toggle favorite failed", "profile_id", p.ID, "manga", m.Slug, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "toggle failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": liked, "total": total})
}

func (h *Handler) toggleFollow(c *gin.Context) {
	p, ok := h.me(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	target, err := h.Repo.GetByUsername(ctx, c.Param("username"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get profile failed"})
		return
	}
	if target == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	following, followers, err := h.Repo.ToggleFollow(ctx, p.ID, target.ID)
	if err != nil {
		if errors.Is(err, ErrSelfFollow) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Error("toggle follow failed", "profile_id", p.ID, "target", target.Username, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "toggle failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": following, "followers": followers})
}
