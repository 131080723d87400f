package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ptsched/internal/api"
	"ptsched/internal/capture"
	"ptsched/internal/config"
	appLog "ptsched/internal/log"
	"ptsched/internal/refresh"
	"ptsched/internal/schedule"
	"ptsched/internal/store"
	appSync "ptsched/internal/sync"
	"ptsched/internal/web"
	"ptsched/internal/weekcal"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	renderOnly bool
	debug      bool
}

func main() {
	appLog.Info("ptsched starting", "version", "0.1.0-dev")

	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"role", string(conf.Role),
		"refresh", conf.RefreshCron,
		"data_dir", conf.DataDir,
		"capture", conf.Capture.Enabled,
		"once", flags.once,
		"render_only", flags.renderOnly,
	)

	if err := os.MkdirAll(conf.DataDir, 0o700); err != nil {
		appLog.Error("failed to create data dir", err, "data_dir", conf.DataDir)
		os.Exit(1)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, conf, flags); err != nil && !errors.Is(err, context.Canceled) {
		appLog.Error("ptsched failed", err)
		appLog.Sync()
		os.Exit(1)
	}

	appLog.Info("ptsched exiting")
	appLog.Sync()
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	snapshots, err := store.Open(filepath.Join(conf.DataDir, "ptsched.db"))
	if err != nil {
		return err
	}
	defer snapshots.Close()

	client := api.NewClient(conf.API.BaseURL, conf.API.Token, filepath.Join(conf.DataDir, "api-cache"))

	tracker := schedule.NewTracker(snapshots)
	tracker.Hydrate(weekcal.NextWeekYearAndWeek(time.Now()))

	signal := refresh.NewSignal()

	previewPath := filepath.Join(conf.DataDir, "preview.png")
	boardURL := "http://" + conf.Listen + "/"

	syncer := appSync.NewSyncer(client, tracker, signal, nil)
	if conf.Capture.Enabled {
		syncer.OnSynced = func(ctx context.Context) {
			err := capture.BoardPNG(ctx, capture.Options{
				URL:        boardURL,
				OutputPath: previewPath,
				Width:      conf.Capture.Width,
				Height:     conf.Capture.Height,
			})
			if err != nil {
				appLog.Error("board capture failed", err, "url", boardURL)
				return
			}
			appLog.Debug("board captured", "output", previewPath)
		}
	}

	if flags.renderOnly {
		// Render the board from whatever state the snapshots hydrated; no
		// remote fetch, no server loop beyond what the capture needs.
		return renderOnce(ctx, conf, tracker, signal, client, boardURL, previewPath)
	}

	srv := web.NewServer(conf, tracker, signal, client, nil)
	httpSrv := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLog.Info("HTTP server listening", "listen", "http://"+conf.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if flags.once {
		err := syncer.SyncNextWeek(ctx)
		shutdown(httpSrv)
		return err
	}

	runErr := make(chan error, 1)
	go func() { runErr <- syncer.Run(ctx, conf.RefreshCron) }()

	select {
	case err := <-serverErr:
		return err
	case err := <-runErr:
		shutdown(httpSrv)
		return err
	}
}

// renderOnce serves the board long enough for one capture, then exits. Used
// to regenerate the preview PNG from persisted state without going online.
func renderOnce(ctx context.Context, conf *config.Config, tracker *schedule.Tracker, signal *refresh.Signal, client *api.Client, boardURL, previewPath string) error {
	srv := web.NewServer(conf, tracker, signal, client, nil)
	httpSrv := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("render server failed", err)
		}
	}()
	defer shutdown(httpSrv)

	return capture.BoardPNG(ctx, capture.Options{
		URL:        boardURL,
		OutputPath: previewPath,
		Width:      conf.Capture.Width,
		Height:     conf.Capture.Height,
	})
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLog.Error("HTTP server shutdown failed", err)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/ptsched/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one sync(+capture) cycle and exit")
	flag.BoolVar(&cfg.renderOnly, "render-only", false, "Capture the board from persisted state without syncing")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
