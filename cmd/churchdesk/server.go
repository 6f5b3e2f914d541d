package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/churchdesk/internal/api"
	"github.com/kalambet/churchdesk/internal/config"
	"github.com/kalambet/churchdesk/internal/forms"
	"github.com/kalambet/churchdesk/internal/session"
	"github.com/kalambet/churchdesk/internal/storage"
)

const sweepInterval = time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the churchdesk server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running churchdesk server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and storage status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "churchdesk.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func healthURL(cfg config.Config) string {
	return fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "churchdesk version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// The level is a LevelVar so config reloads can change it in place.
	var level slog.LevelVar
	level.Set(cfg.SlogLevel())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	token, err := config.GetAdminToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing admin token: %w", err)
	}
	slog.Info("admin bearer token available")

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL(cfg)); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("churchdesk is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("churchdesk is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir, cfg.Storage.Backend, logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()
	slog.Info("storage opened", "backend", cfg.Storage.Backend, "data_dir", cfg.Storage.DataDir)

	sessions := session.NewRegistry[*forms.Session]("sessions", cfg.Session.TTL)
	drafts := session.NewRegistry[*forms.DraftForm]("drafts", cfg.Session.TTL)

	handler := api.NewRouter(api.Deps{
		Schemas:   store,
		Responses: store,
		Token:     token,
		Sessions:  sessions,
		Drafts:    drafts,
		Logger:    logger,
		LinkFor:   cfg.FormLink,
	})

	addr := cfg.ListenAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "churchdesk listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		sessions.Run(gctx, sweepInterval)
		return nil
	})
	g.Go(func() error {
		drafts.Run(gctx, sweepInterval)
		return nil
	})
	g.Go(func() error {
		// Only the log level is applied live; other keys need a restart.
		err := config.Watch(gctx, func(next config.Config) {
			if next.SlogLevel() != level.Level() {
				level.Set(next.SlogLevel())
				slog.Info("log level changed", "level", next.Log.Level)
			}
			if next.Storage != cfg.Storage || next.Server != cfg.Server || next.Session != cfg.Session {
				slog.Warn("config changed, restart churchdesk to apply server, storage or session settings")
			}
		})
		if err != nil {
			slog.Warn("config watcher stopped", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("churchdesk is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop churchdesk (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to churchdesk (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	running := false
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(healthURL(cfg))
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on %s", cfg.ListenAddr())
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Backend", "%s", cfg.Storage.Backend)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Public URL", "%s", cfg.Server.PublicBaseURL)

	if running {
		admin, err := newAPIClient()
		if err != nil {
			return nil
		}
		resp, err := admin.get(ctx, "/admin/forms")
		if err != nil {
			return nil
		}
		var list []api.FormSummary
		if decodeJSON(resp, &list) == nil {
			active, responses := 0, 0
			for _, f := range list {
				if f.Active {
					active++
				}
				responses += f.Responses
			}
			printStatus("Forms", "%d (%d active)", len(list), active)
			printStatus("Responses", "%d", responses)
		}
	}
	return nil
}

