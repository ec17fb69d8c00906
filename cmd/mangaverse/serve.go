package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"mangaverse/internal/auth"
	"mangaverse/internal/grpcserver"
	"mangaverse/internal/manga"
	"mangaverse/internal/media"
	"mangaverse/internal/messaging"
	"mangaverse/internal/notify"
	"mangaverse/internal/search"
	"mangaverse/internal/server"
	"mangaverse/pkg/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, websocket hub and gRPC catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	srvCfg := utils.LoadServerConfig()
	authCfg := utils.LoadAuthConfig()
	mediaCfg := utils.LoadMediaConfig()

	if srvCfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	store, err := media.New(mediaCfg)
	if err != nil {
		return fmt.Errorf("media store: %w", err)
	}

	var events notify.Publisher = notify.Nop{}
	if srvCfg.NatsURL != "" {
		nc, err := notify.NewNatsPublisher(srvCfg.NatsURL)
		if err != nil {
			slog.Warn("nats unavailable, events disabled", "error", err)
		} else {
			defer nc.Close()
			events = nc
		}
	}

	var cache search.SuggestCache
	if srvCfg.RedisURL != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		rc, err := search.NewRedisCacheFromURL(pingCtx, srvCfg.RedisURL)
		cancel()
		if err != nil {
			slog.Warn("redis unavailable, suggest cache disabled", "error", err)
		} else {
			defer rc.Close()
			cache = rc
		}
	}

	tokens := auth.TokenService{
		Secret:   []byte(authCfg.JWTSecret),
		Issuer:   authCfg.JWTIssuer,
		Duration: authCfg.JWTDuration,
	}
	hub := messaging.NewHub()

	router := server.NewRouter(server.Deps{
		DB:          db,
		Tokens:      tokens,
		Media:       store,
		MediaRoot:   mediaCfg.Root,
		MediaURL:    mediaCfg.BaseURL,
		Events:      events,
		Cache:       cache,
		Hub:         hub,
		MaxUploadMB: srvCfg.MaxUploadMB,
	})
	router.MaxMultipartMemory = 32 << 20

	httpSrv := &http.Server{
		Addr:              srvCfg.HTTPAddr,
		Handler:           server.WithCORS(router, srvCfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcSrv := grpcserver.NewGRPCServer(grpcserver.NewServer(manga.NewRepo(db), search.NewRepo(db), store))
	listener, err := net.Listen("tcp", srvCfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("gRPC catalog listening", "addr", srvCfg.GRPCAddr)
		if err := grpcSrv.Serve(listener); err != nil {
			errCh <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("HTTP API listening", "addr", srvCfg.HTTPAddr, "env", srvCfg.Env)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", "signal", sig.String())
	case runErr = <-errCh:
		slog.Error("server error", "error", runErr)
	case <-ctx.Done():
	}

	slog.Info("shutting down servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	grpcSrv.GracefulStop()

	wg.Wait()
	slog.Info("servers stopped")
	return runErr
}
