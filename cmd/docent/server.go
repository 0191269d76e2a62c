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

	"github.com/docent-ai/docent/internal/agent"
	"github.com/docent-ai/docent/internal/api"
	"github.com/docent-ai/docent/internal/citation"
	"github.com/docent-ai/docent/internal/config"
	"github.com/docent-ai/docent/internal/engine"
	"github.com/docent-ai/docent/internal/index"
	"github.com/docent-ai/docent/internal/ingest"
	"github.com/docent-ai/docent/internal/retrieval"
	"github.com/docent-ai/docent/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the docent server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running docent server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show docent system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "docent.pid")
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
	fmt.Fprintf(os.Stderr, "docent version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to double-start: probe health first, then claim the PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("docent is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("docent is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := engine.NewOllama(cfg.Ollama.BaseURL)
	if !eng.IsRunning(ctx) {
		return fmt.Errorf("inference engine not reachable at %s", cfg.Ollama.BaseURL)
	}
	slog.Info("inference engine ready", "base_url", cfg.Ollama.BaseURL,
		"gen_model", cfg.Ollama.GenModel, "embed_model", cfg.Ollama.EmbedModel)

	idx, err := index.OpenSQLite(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer func() {
		if err := idx.Close(); err != nil {
			slog.Warn("closing index", "error", err)
		}
	}()

	embedder := retrieval.NewEmbedder(eng, cfg.Ollama.EmbedModel)
	selector := retrieval.NewSelector(idx)
	retriever := retrieval.NewRetriever(idx)
	generator := agent.NewEngineGenerator(eng, cfg.Ollama.GenModel)
	mapper := citation.NewMapper(cfg.Retrieval.CitationFloor)
	sessions := session.NewManager()

	qa := agent.New(slog.Default(), embedder, selector, retriever, generator, mapper, agent.Config{
		DocThreshold:    float32(cfg.Retrieval.DocThreshold),
		MaxDocs:         cfg.Retrieval.MaxDocs,
		TopK:            cfg.Retrieval.TopK,
		MMRLambda:       cfg.Retrieval.MMRLambda,
		MinChunks:       cfg.Retrieval.MinChunks,
		MinScore:        float32(cfg.Retrieval.MinScore),
		MemoryThreshold: float32(cfg.Retrieval.MemoryThreshold),
		MaxRounds:       cfg.Retrieval.MaxRounds,
		MaxRetries:      cfg.Retrieval.MaxRetries,
		RetryBackoff:    time.Duration(cfg.Retrieval.RetryBackoffMS) * time.Millisecond,
	})
	pipeline := ingest.NewPipeline(idx, embedder, cfg.Retrieval.ChunkSize)

	appHandler := api.NewAppHandler(api.AppDeps{
		Sessions: sessions,
		Agent:    qa,
		Pipeline: pipeline,
		Index:    idx,
		Token:    cfg.Server.APIToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	// MCP server over stdio, alongside HTTP.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Sessions: sessions,
		Agent:    qa,
		Index:    idx,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "docent listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

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
		printError("docent is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop docent (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to docent (PID %d)", pid)
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
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
			var health struct {
				Documents int `json:"documents"`
				Chunks    int `json:"chunks"`
				Sessions  int `json:"sessions"`
			}
			if decodeErr := decodeJSON(resp, &health); decodeErr == nil {
				printStatus("Documents", "%d", health.Documents)
				printStatus("Chunks", "%d", health.Chunks)
				printStatus("Sessions", "%d", health.Sessions)
			}
		} else {
			resp.Body.Close()
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}

	printStatus("Gen model", "%s", cfg.Ollama.GenModel)
	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
