package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/whycore/basefriends/internal/api"
	"github.com/whycore/basefriends/internal/auth"
	"github.com/whycore/basefriends/internal/cache"
	"github.com/whycore/basefriends/internal/config"
	"github.com/whycore/basefriends/internal/discover"
	"github.com/whycore/basefriends/internal/logging"
	"github.com/whycore/basefriends/internal/metrics"
	"github.com/whycore/basefriends/internal/neynar"
	"github.com/whycore/basefriends/internal/store"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "serve":
		cmdServe()
	default:
		printHelp()
	}
}

func printHelp() {
	fmt.Println("Usage: basefriends <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init    Create a config file at ./basefriends.yaml")
	fmt.Println("  serve   Run the API server")
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./basefriends.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	cfg := config.Default()
	if err := config.Save(*path, cfg); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	abs, _ := filepath.Abs(*path)
	fmt.Println("Config written to:", abs)
}

func cmdServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "./basefriends.yaml", "config path")
	_ = fs.Parse(os.Args[2:])

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logging.Error("config load failed", map[string]any{"path": *cfgPath, "error": err.Error()})
		os.Exit(1)
	}
	if cfg.Neynar.APIKey == "" {
		logging.Warn("NEYNAR_API_KEY not set; candidates will be served from the mock dataset", nil)
	}

	db, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		logging.Error("store open failed", map[string]any{"path": cfg.Storage.DBPath, "error": err.Error()})
		os.Exit(1)
	}
	defer db.Close()

	client := neynar.NewHTTPClient(cfg.Neynar.BaseURL, cfg.Neynar.APIKey)
	pageCache := cache.New(cfg.Cache.TTL, cfg.Cache.SweepCeiling)
	pipeline := discover.New(client, db, cfg.Candidates)
	handler := api.New(pipeline, pageCache, db, client, cfg.Candidates, client.HasKey())
	siwn := auth.New(cfg.Auth, cfg.Server.AppURL, db)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.HandleFunc("/auth/neynar/start", siwn.Start)
	mux.HandleFunc("/auth/neynar/callback", siwn.Callback)

	metrics.StartServer(cfg.Server.MetricsAddr)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Info("api server listening", map[string]any{"addr": cfg.Server.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logging.Error("server exited", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	logging.Info("shutdown complete", nil)
}
