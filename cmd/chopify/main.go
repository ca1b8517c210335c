package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zombor/chopify/internal/inventory"
	"github.com/zombor/chopify/internal/pantry"
	"github.com/zombor/chopify/internal/pipeline"
	"github.com/zombor/chopify/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("chopify")
	var (
		port            = fs.IntLong("port", 8080, "HTTP server port")
		dbPath          = fs.StringLong("db", "chopify.db", "Database file path")
		ocrKey          = fs.StringLong("ocr-key", "", "Google Cloud Vision API key (or set CLOUD_VISION_API_KEY env var)")
		ocrTimeout      = fs.DurationLong("ocr-timeout", 30*time.Second, "Timeout for a single OCR request")
		modelType       = fs.StringLong("model", "gemini", "Extraction model: 'gemini' or 'ollama'")
		geminiKey       = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel     = fs.StringLong("gemini-model", "gemini-2.0-flash-lite", "Google Gemini model name")
		ollamaURL       = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel     = fs.StringLong("ollama-model", "llama3.1", "Ollama model name (must support structured output)")
		modelTimeout    = fs.DurationLong("model-timeout", 60*time.Second, "Timeout for a single extraction request")
		rpm             = fs.IntLong("rpm", 60, "Requests per minute allowed to each upstream (0 disables)")
		breakerFailures = fs.IntLong("breaker-failures", 5, "Consecutive upstream failures before failing fast (0 disables)")
		breakerTimeout  = fs.DurationLong("breaker-timeout", 30*time.Second, "How long to fail fast before probing an upstream again")
		authUser        = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass        = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion     = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("CHOPIFY"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize database
	slog.Info("Initializing database...")
	store, err := inventory.NewBoltStore(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	guardCfg := scanning.GuardConfig{
		RequestsPerMinute: *rpm,
		FailureThreshold:  uint32(max(*breakerFailures, 0)),
		OpenTimeout:       *breakerTimeout,
	}

	// Initialize OCR
	visionKey := *ocrKey
	if visionKey == "" {
		visionKey = os.Getenv("CLOUD_VISION_API_KEY")
	}
	if visionKey == "" {
		slog.Error("Cloud Vision API key is required. Set --ocr-key flag or CLOUD_VISION_API_KEY environment variable")
		os.Exit(1)
	}
	slog.Info("Initializing Cloud Vision OCR...")
	vision, err := scanning.NewVisionOCR(visionKey, *ocrTimeout)
	if err != nil {
		slog.Error("Failed to initialize Cloud Vision", "error", err)
		os.Exit(1)
	}
	detector := scanning.NewGuardedDetector(vision, guardCfg)

	// Initialize extraction model based on type
	var generator scanning.Generator
	switch *modelType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini model...", "model", *geminiModel)
		generator, err = scanning.NewGemini(apiKey, *geminiModel, scanning.DefaultPrompt(), *modelTimeout)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama model...", "url", *ollamaURL, "model", *ollamaModel)
		generator, err = scanning.NewOllama(*ollamaURL, *ollamaModel, scanning.DefaultPrompt(), *modelTimeout)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid model type", "type", *modelType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	guarded := scanning.NewGuardedGenerator(generator, guardCfg)
	defer guarded.Close()

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Initialize pipeline and service
	scanPipeline := pipeline.New(
		detector,
		scanning.NewExtractor(guarded),
		inventory.NewMapper(),
		pipeline.NewMetrics(registry),
	)
	pantryService := pantry.NewService(store, scanPipeline)

	// Initialize server
	basicAuth := pantry.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := pantry.NewServer(pantryService, basicAuth, registry)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")

	// Give in-flight scans time to finish
	ctx, cancel := context.WithTimeout(context.Background(), *ocrTimeout+*modelTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
}
