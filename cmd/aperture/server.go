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

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/scttfrdmn/aperture/internal/api"
	"github.com/scttfrdmn/aperture/internal/config"
	"github.com/scttfrdmn/aperture/internal/ingest"
	"github.com/scttfrdmn/aperture/internal/knowledge"
	"github.com/scttfrdmn/aperture/internal/provider"
	"github.com/scttfrdmn/aperture/internal/retrieval"
	"github.com/scttfrdmn/aperture/internal/storage"
	"github.com/scttfrdmn/aperture/internal/synthesis"
	"github.com/scttfrdmn/aperture/pkg/version"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the aperture server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running aperture server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show aperture system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "aperture.pid")
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
	fmt.Fprintln(os.Stderr, version.Get().String())

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Server.APIToken == "" {
		return fmt.Errorf("no API token configured (set APERTURE_API_TOKEN)")
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("aperture is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("aperture is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Build the model provider and check readiness.
	modelProvider, err := provider.New(provider.Config{
		Kind:          cfg.Provider.Kind,
		OllamaBaseURL: cfg.Provider.OllamaBaseURL,
		OpenAIAPIKey:  cfg.Provider.OpenAIAPIKey,
		OpenAIBaseURL: cfg.Provider.OpenAIBaseURL,
	})
	if err != nil {
		return fmt.Errorf("building model provider: %w", err)
	}
	if !modelProvider.IsRunning(ctx) {
		if cfg.Provider.Kind == "ollama" {
			return fmt.Errorf("ollama is not reachable at %s — start it first", cfg.Provider.OllamaBaseURL)
		}
		printWarning("model provider %s is not reachable, requests will fail until it is", cfg.Provider.Kind)
	}
	if op, ok := modelProvider.(*provider.OllamaProvider); ok {
		for _, model := range []string{cfg.Provider.EmbedModel, cfg.Provider.AnswerModel} {
			if !op.HasModel(ctx, model) {
				printWarning("model %s not found locally — run: ollama pull %s", model, model)
			}
		}
	}
	slog.Info("model provider ready",
		"kind", cfg.Provider.Kind,
		"embed_model", cfg.Provider.EmbedModel,
		"answer_model", cfg.Provider.AnswerModel)

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

	// Wire the knowledge-base components.
	embedder := retrieval.NewEmbedder(modelProvider, cfg.Provider.EmbedModel)
	retriever := retrieval.NewRetriever(embedder, store, cfg.Retrieval.ScanLimit)
	synthesizer := synthesis.New(modelProvider, cfg.Provider.AnswerModel)
	indexer := knowledge.NewIndexer(embedder, store, slog.Default())
	querier := knowledge.NewQuerier(retriever, synthesizer, cfg.Retrieval.TopK, slog.Default())
	deleter := knowledge.NewDeleter(store, slog.Default())

	// Build HTTP handler and server.
	handler := api.NewHandler(api.Deps{
		Indexer: indexer,
		Querier: querier,
		Deleter: deleter,
		Store:   store,
		Token:   cfg.Server.APIToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start the background index worker.
	worker := ingest.NewWorker(store, indexer, 500*time.Millisecond)
	go worker.Run(ctx)

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Indexer: indexer,
		Querier: querier,
		Deleter: deleter,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "aperture listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
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
		printError("aperture is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop aperture (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to aperture (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	serverUp := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			serverUp = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Provider", "%s", cfg.Provider.Kind)
	if cfg.Provider.Kind == "ollama" {
		ollamaResp, err := client.Get(cfg.Provider.OllamaBaseURL + "/api/version")
		if err != nil {
			printStatus("Ollama", "not running")
		} else {
			ollamaResp.Body.Close()
			printStatus("Ollama", "running at %s", cfg.Provider.OllamaBaseURL)
		}
	}
	printStatus("Embed model", "%s", cfg.Provider.EmbedModel)
	printStatus("Answer model", "%s", cfg.Provider.AnswerModel)

	// Show embedding/job counts if server is running.
	if serverUp && cfg.Server.APIToken != "" {
		statsResp, err := apiGet(client, serverURL+"/stats", cfg.Server.APIToken)
		if err == nil {
			var stats struct {
				Embeddings int            `json:"embeddings"`
				Jobs       map[string]int `json:"jobs"`
			}
			if decodeJSON(statsResp, &stats) == nil {
				printStatus("Embeddings", "%d", stats.Embeddings)
				printStatus("Pending jobs", "%d", stats.Jobs["pending"])
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
