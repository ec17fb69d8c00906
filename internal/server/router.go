// Package server assembles the HTTP API from the domain handlers.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"mangaverse/internal/auth"
	"mangaverse/internal/chapter"
	"mangaverse/internal/ingest"
	"mangaverse/internal/manga"
	"mangaverse/internal/media"
	"mangaverse/internal/messaging"
	"mangaverse/internal/notify"
	"mangaverse/internal/search"
	"mangaverse/internal/social"
)

type Deps struct {
	DB          *sql.DB
	Tokens      auth.TokenService
	Media       media.Store
	MediaRoot   string // served under MediaURL when the store is local
	MediaURL    string
	Events      notify.Publisher
	Cache       search.SuggestCache
	Hub         *messaging.Hub
	MaxUploadMB int
}

// NewRouter wires every handler onto a gin engine. Catalog routes live at
// the root, account and social routes under /accounts.
func NewRouter(d Deps) *gin.Engine {
	if d.Events == nil {
		d.Events = notify.Nop{}
	}
	if d.Hub == nil {
		d.Hub = messaging.NewHub()
	}

	router := gin.Default()
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})
	if d.MaxUploadMB > 0 {
		router.Use(limitBody(int64(d.MaxUploadMB) << 20))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := d.DB.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "not_ready",
				"db_error":   err.Error(),
				"ws_clients": d.Hub.Clients(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "db": "ok", "ws_clients": d.Hub.Clients()})
	})

	if _, local := d.Media.(*media.LocalStore); local && d.MediaRoot != "" && strings.HasPrefix(d.MediaURL, "/") {
		router.Static(strings.TrimSuffix(d.MediaURL, "/"), d.MediaRoot)
	}

	authRepo := auth.NewRepo(d.DB)
	mangaRepo := manga.NewRepo(d.DB)
	chapterRepo := chapter.NewRepo(d.DB)
	pipeline := ingest.NewPipeline(chapterRepo, d.Media, d.Events)

	mangaHandler := manga.NewHandler(mangaRepo, d.Media, d.Events)
	if d.Cache != nil {
		mangaHandler.Cache = d.Cache
	}
	chapterHandler := chapter.NewHandler(chapterRepo, mangaRepo, pipeline, d.Media)
	socialHandler := social.NewHandler(social.NewRepo(d.DB), mangaRepo, d.Media)
	messageHandler := messaging.NewHandler(messaging.NewRepo(d.DB), authRepo, d.Hub, d.Events)
	searchHandler := search.NewHandler(search.NewRepo(d.DB), authRepo, d.Media, d.Cache)

	optional := auth.OptionalAuth(d.Tokens, authRepo)
	required := auth.AuthMiddleware(d.Tokens, authRepo)

	// Catalog
	public := router.Group("/", optional)
	mangaHandler.RegisterPublicRoutes(public)
	chapterHandler.RegisterPublicRoutes(public)
	searchHandler.RegisterRoutes(public)

	protected := router.Group("/", required)
	mangaHandler.RegisterProtectedRoutes(protected)
	chapterHandler.RegisterProtectedRoutes(protected)

	// Accounts and social
	accounts := router.Group("/accounts")
	auth.NewHandler(authRepo, d.Tokens).RegisterRoutes(accounts)
	socialHandler.RegisterPublicRoutes(accounts.Group("", optional))

	accountsAuthed := accounts.Group("", required)
	socialHandler.RegisterProtectedRoutes(accountsAuthed)
	messageHandler.RegisterRoutes(accountsAuthed)

	return router
}

// WithCORS wraps the engine for browser clients of the JSON endpoints.
func WithCORS(h http.Handler, origins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           600,
	}).Handler(h)
}

func limitBody(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		}
		c.Next()
	}
}
