package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/speakdrill/internal/app"
	"github.com/MrWong99/speakdrill/internal/config"
	"github.com/MrWong99/speakdrill/internal/display"
	"github.com/MrWong99/speakdrill/internal/observe"
)

const shutdownTimeout = 15 * time.Second

func newRunCmd() *cobra.Command {
	var (
		configPath string
		envPath    string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a drill session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, envPath, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	cmd.Flags().StringVar(&envPath, "env", ".env", "optional .env file with provider secrets")
	return cmd
}

func run(parent context.Context, configPath, envPath string, stderr io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	if err := config.LoadEnv(envPath); err != nil {
		return err
	}

	cfg, fromFile, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// The TUI owns the terminal, so logs go to a file or nowhere.
	mode := display.Resolve(cfg.UI.Mode, os.Stdin, os.Stdout)
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	logOut, closeLog, err := logWriter(cfg.Server.LogFile, mode, stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})))

	slog.Info("speakdrill starting",
		"version", version,
		"config", configPath,
		"from_file", fromFile,
		"ui", mode,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "speakdrill",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	metrics := observe.DefaultMetrics()

	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)
	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}

	application, err := app.New(ctx, cfg, providers, app.WithMetrics(metrics))
	if err != nil {
		_ = providers.Close()
		return fmt.Errorf("init application: %w", err)
	}

	if fromFile {
		w, err := config.NewWatcher(configPath, application.OnConfigChange(level))
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	var srv *http.Server
	if cfg.Server.ListenAddr != "" {
		srv = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           statusMux(application, tel, metrics),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if srv != nil {
		g.Go(func() error {
			slog.Info("status server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		// Ending the drill (quit key, EOF) tears the rest down with it.
		defer stop()
		if err := application.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if srv != nil {
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()

	slog.Info("stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		runErr = errors.Join(runErr, err)
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	if runErr == nil {
		slog.Info("goodbye")
	}
	return runErr
}

// loadConfig reads path, falling back to the defaults when the file does
// not exist. fromFile reports whether path was read.
func loadConfig(path string) (cfg *config.Config, fromFile bool, err error) {
	cfg, err = config.Load(path)
	switch {
	case err == nil:
		return cfg, true, nil
	case errors.Is(err, os.ErrNotExist):
		return config.Default(), false, nil
	default:
		return nil, false, err
	}
}

func logWriter(path string, mode config.UIMode, stderr io.Writer) (io.Writer, func(), error) {
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return f, func() { _ = f.Close() }, nil
	}
	if mode == config.UITUI {
		return io.Discard, func() {}, nil
	}
	return stderr, func() {}, nil
}

func statusMux(a *app.App, tel *observe.Telemetry, m *observe.Metrics) http.Handler {
	mux := http.NewServeMux()
	a.Health().Register(mux)
	mux.Handle("GET /metrics", tel.MetricsHandler())
	mux.Handle("GET /status", a.StatusHandler())
	return observe.Middleware(m)(mux)
}
