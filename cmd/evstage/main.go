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
	"strings"
	"syscall"
	"time"

	"evstage/internal/config"
	"evstage/internal/events"
	"evstage/internal/feeds"
	appLog "evstage/internal/log"
	"evstage/internal/metrics"
	"evstage/internal/store"
	"evstage/internal/web"
)

const shutdownTimeout = 10 * time.Second

type flagConfig struct {
	configPath string
	listen     string
	importPath string
	name       string
	category   string
	exportPath string
	once       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("evstage starting",
		"listen", conf.Listen,
		"storage", conf.Storage.Driver,
		"categories", len(conf.Categories),
		"feeds", len(conf.Feeds),
		"refresh", conf.RefreshCron,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags, conf); err != nil {
		appLog.Error("evstage failed", err)
		os.Exit(1)
	}
	appLog.Info("evstage exiting")
}

func run(ctx context.Context, flags flagConfig, conf *config.Config) error {
	st, err := store.Open(ctx, conf.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			appLog.Error("failed to close store", err)
		}
	}()

	holder := config.NewHolder(flags.configPath, conf)
	m := metrics.New()
	ev := events.NewService(st, holder, m)
	fd := feeds.NewService(feeds.NewFetcher(conf.CacheDir, conf.FetchTimeout()), ev, holder, m)

	// One-shot modes run in order and exit.
	oneShot := false
	if flags.importPath != "" {
		oneShot = true
		if err := importFile(ctx, ev, flags); err != nil {
			return err
		}
	}
	if flags.once {
		oneShot = true
		for _, res := range fd.RefreshAll(ctx) {
			if res.Err != nil {
				appLog.Error("feed refresh failed", res.Err, "feed", res.Feed.Name)
			}
		}
	}
	if flags.exportPath != "" {
		oneShot = true
		if err := exportAll(ctx, ev, flags.exportPath); err != nil {
			return err
		}
	}
	if oneShot {
		return nil
	}

	return serve(ctx, conf, web.NewServer(holder, ev, fd, m), fd)
}

func importFile(ctx context.Context, ev *events.Service, flags flagConfig) error {
	raw, err := os.ReadFile(flags.importPath)
	if err != nil {
		return fmt.Errorf("read import: %w", err)
	}
	source := strings.TrimSpace(flags.name)
	if source == "" {
		base := filepath.Base(flags.importPath)
		source = strings.TrimSuffix(base, filepath.Ext(base))
	}

	out := ev.Ingest(raw, flags.category, source)
	if !out.Found() {
		return fmt.Errorf("no events found in %s", flags.importPath)
	}
	res, err := ev.Import(ctx, out, source)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	fmt.Printf("Imported %d events (%s) as %q, replaced %d\n", res.Imported, res.Format, res.Source, res.Replaced)
	return nil
}

func exportAll(ctx context.Context, ev *events.Service, path string) error {
	exp, err := ev.Export(ctx, nil)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := config.WriteFileAtomic(path, []byte(exp.Body)); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Printf("Exported %d events to %s\n", exp.Count, path)
	return nil
}

func serve(ctx context.Context, conf *config.Config, srv *web.Server, fd *feeds.Service) error {
	sched, err := feeds.NewScheduler(ctx, conf.RefreshCron, fd)
	if err != nil {
		return err
	}
	sched.Start()

	httpSrv := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("http server listening", "addr", conf.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-errCh:
		if err != nil {
			sched.Stop(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	sched.Stop(shutdownCtx)
	return httpSrv.Shutdown(shutdownCtx)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file (created with defaults if missing)")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.importPath, "import", "", "Import events from a file and exit")
	flag.StringVar(&cfg.name, "name", "", "Source name for -import (defaults to the file name)")
	flag.StringVar(&cfg.category, "category", "", "Category for -import (defaults to the configured default)")
	flag.StringVar(&cfg.exportPath, "export", "", "Write every stored event to an .ics file and exit")
	flag.BoolVar(&cfg.once, "once", false, "Refresh every saved feed once and exit")

	flag.Parse()

	return cfg
}
