// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/evaluate"
	"github.com/hyperjump/kotae/internal/fallback"
	"github.com/hyperjump/kotae/internal/generate"
	"github.com/hyperjump/kotae/internal/knowledge"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/pipeline"
	"github.com/hyperjump/kotae/internal/refine"
	"github.com/hyperjump/kotae/internal/rerank"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "kotae server" from the project dir uses the project's
// config. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallbackPath := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallbackPath); statErr == nil {
				cfg, loadErr := config.Load(fallbackPath)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallbackPath, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "batch":
		runBatch()
	case "ingest":
		runIngest()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Embedder embedding.Embedder
	Base     *knowledge.Base
	Pipeline *pipeline.Pipeline
}

func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	embedder, err := embedding.New(&cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	base := knowledge.New(cfg, embedder, logger)
	completer := llm.NewClient(&cfg.LLM)

	refiner := refine.New(completer, logger)
	reranker := rerank.New(rerank.NewLLMScorer(completer, cfg.LLM.Model), &cfg.Rerank, logger)
	generator := generate.New(completer, &cfg.Pipeline, logger)
	evaluator := evaluate.New(completer, cfg.LLM.EvalModel, &cfg.Pipeline, logger)
	fallbackGen := fallback.New(completer, logger)

	p := pipeline.New(
		refiner, base, reranker, generator,
		evaluator, fallbackGen, base, &cfg.Pipeline, logger,
	)

	return &Components{
		Embedder: embedder,
		Base:     base,
		Pipeline: p,
	}, nil
}

// restoreOrBuild makes the knowledge base ready: it loads the persisted
// snapshot, and when that fails, rebuilds from the watched directories.
func restoreOrBuild(ctx context.Context, base *knowledge.Base, cfg *config.Config, logger *zap.Logger) error {
	if err := base.Load(ctx); err == nil {
		return nil
	} else if len(cfg.Watch.Directories) == 0 {
		return fmt.Errorf("no persisted snapshot and no watch directories to build from: %w", err)
	} else {
		logger.Info("no usable snapshot, building from corpus", zap.Error(err))
	}
	return base.Build(ctx, cfg.Watch.Directories)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if err := restoreOrBuild(context.Background(), components.Base, cfg, logger); err != nil {
		// The server still starts; /api/v1/ask returns 503 until a
		// rebuild succeeds.
		logger.Warn("knowledge base not ready", zap.Error(err))
	}

	var watchSvc *watcher.Watcher
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if len(cfg.Watch.Directories) > 0 {
		watchOpts := []watcher.Option{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		base := components.Base
		watchSvc = watcher.New(
			cfg.Watch.Directories,
			cfg.Ingest.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			func() {
				if err := base.Build(context.Background(), cfg.Watch.Directories); err != nil {
					logger.Warn("corpus rebuild failed", zap.Error(err))
				}
			},
			watchOpts...,
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	srv := server.NewServer(components.Pipeline, components.Base, watchSvc, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// buildQuery joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runAsk() {
	askArgs := argsReorder(os.Args[2:])

	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = run the pipeline locally)")
	token := fs.String("token", "", "bearer token for the server API")
	refineFlag := fs.Bool("refine", true, "enable query refinement")
	rerankFlag := fs.Bool("rerank", true, "enable re-ranking")
	evaluateFlag := fs.Bool("evaluate", true, "enable answer evaluation")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printAskUsage(fs) }
	_ = fs.Parse(askArgs)

	if fs.NArg() < 1 {
		printAskUsage(fs)
		os.Exit(1)
	}
	query := buildQuery(fs.Args())
	if query == "" {
		printAskUsage(fs)
		os.Exit(1)
	}

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	opts := models.AskOptions{
		UseQueryRefinement: *refineFlag,
		UseReranking:       *rerankFlag,
		UseEvaluation:      *evaluateFlag,
	}

	if *serverURL != "" {
		result, err := askViaHTTP(*serverURL, *token, query, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteResult(os.Stdout, result, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	components, cfg := mustInitialize(*configPath)
	defer components.Close()
	if err := restoreOrBuild(context.Background(), components.Base, cfg, zap.NewNop()); err != nil {
		fmt.Fprintf(os.Stderr, "Knowledge base not ready: %v\n", err)
		os.Exit(1)
	}

	result := components.Pipeline.ProcessSingle(context.Background(), query, opts)
	if err := cli.WriteResult(os.Stdout, result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runBatch() {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = run the pipeline locally)")
	token := fs.String("token", "", "bearer token for the server API")
	file := fs.String("file", "", "file with one query per line (default: queries from args)")
	outputFormat := fs.String("output", "json", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var queries []string
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read queries: %v\n", err)
			os.Exit(1)
		}
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				queries = append(queries, line)
			}
		}
	} else {
		for _, arg := range fs.Args() {
			if arg = strings.TrimSpace(arg); arg != "" {
				queries = append(queries, arg)
			}
		}
	}
	if len(queries) == 0 {
		fmt.Println("Usage: kotae batch [flags] <query>... or kotae batch --file queries.txt")
		os.Exit(1)
	}

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	opts := models.DefaultAskOptions()

	if *serverURL != "" {
		results, err := batchViaHTTP(*serverURL, *token, queries, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Batch failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteResults(os.Stdout, results, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	components, cfg := mustInitialize(*configPath)
	defer components.Close()
	if err := restoreOrBuild(context.Background(), components.Base, cfg, zap.NewNop()); err != nil {
		fmt.Fprintf(os.Stderr, "Knowledge base not ready: %v\n", err)
		os.Exit(1)
	}

	results := components.Pipeline.ProcessBatch(context.Background(), queries, opts)
	if err := cli.WriteResults(os.Stdout, results, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ingest [flags] <file-or-directory>...")
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	if err := components.Base.Build(context.Background(), fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	stats := components.Base.Stats()
	fmt.Printf("Ingested %d document(s) into %d chunk(s) (%d embedded)\n",
		stats.Documents, stats.Chunks, stats.Vectors)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = inspect local snapshot)")
	token := fs.String("token", "", "bearer token for the server API")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status map[string]interface{}
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL, *token)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = res
	} else {
		components, cfg := mustInitialize(*configPath)
		defer components.Close()
		if err := components.Base.Load(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "No usable snapshot: %v\n", err)
			os.Exit(1)
		}
		stats := components.Base.Stats()
		status = map[string]interface{}{
			"ready":            true,
			"documents":        stats.Documents,
			"chunks":           stats.Chunks,
			"vectors":          stats.Vectors,
			"built_at":         stats.BuiltAt,
			"disk_usage_bytes": stats.DiskBytes,
			"config": map[string]interface{}{
				"embedding_provider":   cfg.Embedding.Provider,
				"embedding_dimensions": cfg.Embedding.Dimensions,
				"database_path":        cfg.Storage.DatabasePath,
				"vector_index_path":    cfg.Storage.VectorIndexPath,
			},
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		printStatusText(status)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func printStatusText(status map[string]interface{}) {
	fmt.Printf("ready:              %v\n", status["ready"])
	fmt.Printf("documents:          %v   # count of ingested documents\n", status["documents"])
	fmt.Printf("chunks:             %v   # count of text chunks\n", status["chunks"])
	fmt.Printf("vectors:            %v   # count of embedded chunks\n", status["vectors"])
	if v, ok := status["disk_usage_bytes"]; ok {
		fmt.Printf("disk_usage_bytes:   %v\n", v)
	}
	if v, ok := status["built_at"]; ok {
		fmt.Printf("built_at:           %v\n", v)
	}
	if cfg, ok := status["config"].(map[string]interface{}); ok {
		fmt.Println()
		fmt.Println("# configuration")
		for _, key := range []string{"embedding_provider", "embedding_dimensions", "database_path", "vector_index_path", "max_iterations", "min_quality_score"} {
			if v, ok := cfg[key]; ok {
				fmt.Printf("%-20s%v\n", key+":", v)
			}
		}
	}
	if dirs, ok := status["watched_directories"].([]interface{}); ok && len(dirs) > 0 {
		fmt.Println()
		fmt.Println("# watched directories")
		for _, d := range dirs {
			fmt.Printf("  %v\n", d)
		}
	}
}

// mustInitialize loads config, builds a quiet logger, and initializes
// components, exiting on any failure. Used by the local (serverless) paths.
func mustInitialize(configPath string) (*Components, *config.Config) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return components, cfg
}

func doJSON(method, url, token string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func askViaHTTP(serverURL, token, query string, opts models.AskOptions) (*models.AnswerResult, error) {
	var result models.AnswerResult
	body := map[string]interface{}{"query": query, "options": opts}
	if err := doJSON(http.MethodPost, serverURL+"/api/v1/ask", token, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func batchViaHTTP(serverURL, token string, queries []string, opts models.AskOptions) ([]*models.AnswerResult, error) {
	var resp struct {
		Results []*models.AnswerResult `json:"results"`
	}
	body := map[string]interface{}{"queries": queries, "options": opts}
	if err := doJSON(http.MethodPost, serverURL+"/api/v1/batch", token, body, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func statusViaHTTP(serverURL, token string) (map[string]interface{}, error) {
	var status map[string]interface{}
	if err := doJSON(http.MethodGet, serverURL+"/api/v1/status", token, nil, &status); err != nil {
		return nil, err
	}
	return status, nil
}

func printAskUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kotae ask [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces, so quoting is optional.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  kotae ask What is the grace period for premium payment?
  kotae ask "Does this policy cover maternity expenses?"
  kotae ask --refine=false --output json your question
  kotae ask --server "" --config ./config.yaml offline question
`)
}

func printUsage() {
	fmt.Println(`kotae - Document question answering over your own corpus

Usage:
  kotae server [flags]             Start the HTTP server
  kotae ask [flags] <question>     Answer a single question
  kotae batch [flags] <q>...       Answer a batch of questions
  kotae ingest [flags] <path>...   Build the knowledge base from documents
  kotae status [flags]             Show knowledge base status
  kotae version                    Show version
  kotae help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging

Ask Flags:
  --config string    Config file path (for local mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to run the pipeline locally.
  --token string     Bearer token for the server API
  --refine           Enable query refinement (default: true)
  --rerank           Enable re-ranking (default: true)
  --evaluate         Enable answer evaluation (default: true)
  --output string    Output format: text or json (default: text)

Batch Flags:
  --file string      File with one query per line
  --server string    Server URL; empty runs locally
  --output string    Output format: text or json (default: json)

Ingest Flags:
  --config string    Config file path

Status Flags:
  --server string    Server URL; empty inspects the local snapshot
  --output string    Output format: text or json (default: text)

Examples:
  kotae server
  kotae ask What is the waiting period for cataract surgery?
  kotae batch --file questions.txt > answers.json
  kotae ingest ./corpus
  kotae status --output json`)
}
