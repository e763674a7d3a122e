package main

import (
	"context"
	"encoding/json"
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

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/rankd/internal/api"
	"github.com/kalambet/rankd/internal/config"
	"github.com/kalambet/rankd/internal/directory"
	"github.com/kalambet/rankd/internal/rank"
	"github.com/kalambet/rankd/internal/storage"
	"github.com/kalambet/rankd/internal/transport"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the rankd daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running rankd daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show rankd system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "rankd.pid")
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

func runServer() error {
	fmt.Fprintf(os.Stderr, "rankd version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	apiToken, err := config.GetAPIToken()
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}

	// Refuse to start twice. The health endpoint is the source of truth; the
	// PID file only improves the error message.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("rankd is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("rankd is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the ranking manager and its collaborators.
	syncClient := transport.NewClient(cfg.Sync.BaseURL, cfg.Sync.Token)
	dir := directory.NewManager(store, selfPeer())
	manager := rank.NewManager(rank.Deps{
		KV:        store,
		Transport: syncClient,
		Directory: dir,
		Resolver:  dir,
		Decay: newLiveDecay(cfg.Rating.DecayConstant, func() (float64, error) {
			cfg, err := config.Load()
			if err != nil {
				return 0, err
			}
			return cfg.Rating.DecayConstant, nil
		}),
	}, rank.Options{
		Enabled:            cfg.Rating.Enabled,
		ServerSyncInterval: cfg.Sync.ServerInterval,
		LocalSyncDebounce:  cfg.Sync.LocalDebounce,
	})

	handler := api.NewHandler(api.Deps{
		Ranker:       manager,
		Token:        apiToken,
		DefaultLimit: cfg.Rating.MaxResults,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return manager.Run(gCtx)
	})

	// Signal the manager once the sync service answers its health probe; no
	// fetch is attempted before that.
	g.Go(func() error {
		if err := syncClient.WaitReady(gCtx); err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Warn("sync service never became ready", "error", err)
			}
			return nil
		}
		slog.Info("sync service reachable")
		manager.OnFirstSync()
		return nil
	})

	// MCP server on stdio.
	mcpSrv := api.NewMCPServer(manager, cfg.Rating.MaxResults)
	stdioSrv := server.NewStdioServer(mcpSrv)
	g.Go(func() error {
		if err := stdioSrv.Listen(gCtx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})
	slog.Info("MCP server started (stdio transport)")

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "rankd listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// selfPeer returns the caller's own identity for query filtering. Resolved
// from the environment until the sync service carries it in fetch metadata.
func selfPeer() rank.Peer {
	raw := os.Getenv("RANKD_SELF_PEER")
	if raw == "" {
		return rank.Peer{}
	}
	peer, err := rank.ParsePeer(raw)
	if err != nil {
		slog.Warn("invalid RANKD_SELF_PEER, ignoring", "value", raw, "error", err)
		return rank.Peer{}
	}
	return peer
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
		printError("rankd is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop rankd (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to rankd (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Sync service", "%s", cfg.Sync.BaseURL)
	printStatus("Ranking", "%s", enabledLabel(cfg.Rating.Enabled))

	if running {
		if apiToken, tokenErr := config.GetAPIToken(); tokenErr == nil {
			if syncResp, err := apiGet(client, serverURL+"/v1/sync", apiToken); err == nil {
				var status rank.Status
				if json.NewDecoder(syncResp.Body).Decode(&status) == nil {
					printStatus("Server sync", "%s", status.ServerSync)
					printStatus("Local sync", "%s", status.LocalSync)
					if !status.LastServerSync.IsZero() {
						printStatus("Last fetch", "%s", status.LastServerSync.Format(time.RFC3339))
					}
				}
				syncResp.Body.Close()
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
