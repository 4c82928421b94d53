package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/example/docflow/internal/blobstore"
	"github.com/example/docflow/internal/engine"
	"github.com/example/docflow/internal/observability"
	"github.com/example/docflow/internal/pipeline"
	"github.com/example/docflow/internal/services"
	"github.com/example/docflow/internal/storage/sqlite"
	"github.com/example/docflow/internal/web"
)

// Config holds the server configuration.
type Config struct {
	HTTPPort  int
	DebugPort int

	SQLitePath string
	BlobRoot   string
	TierNames  []string
	NextStage  string

	ExtractionEndpoint   string
	GenerativeEndpoint   string
	GenerativeDeployment string
	SpeechEndpoint       string

	SourceLanguage string
	TargetLanguage string

	PromptContainer string
	PromptBlob      string

	URLSigningKey string
	URLTTLHours   int

	WorkerCount         int
	ActivityMaxAttempts int
}

func main() {
	cfg := loadConfig()

	// Enable profiling
	runtime.SetMutexProfileFraction(1)
	runtime.SetBlockProfileRate(1)

	metrics := observability.NewMetrics()

	// Debug server for pprof and metrics
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics)
		// pprof endpoints are registered automatically via import
		addr := fmt.Sprintf(":%d", cfg.DebugPort)
		log.Printf("Starting debug server on %s (pprof + metrics)", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("Debug server error: %v", err)
		}
	}()

	log.Printf("Initializing SQLite storage at %s", cfg.SQLitePath)
	store, err := sqlite.New(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	log.Println("Running database migrations...")
	if err := store.Migrate(context.Background()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Printf("Initializing blob store at %s with tiers %v", cfg.BlobRoot, cfg.TierNames)
	blobs, err := blobstore.NewFileStore(cfg.BlobRoot, cfg.TierNames)
	if err != nil {
		log.Fatalf("Failed to create blob store: %v", err)
	}
	if !contains(cfg.TierNames, cfg.NextStage) {
		log.Fatalf("NEXT_STAGE %q is not a configured tier", cfg.NextStage)
	}
	if !contains(cfg.TierNames, cfg.PromptContainer) {
		log.Fatalf("PROMPT_CONTAINER %q is not a configured tier", cfg.PromptContainer)
	}

	signer, err := blobstore.NewURLSigner([]byte(cfg.URLSigningKey), time.Duration(cfg.URLTTLHours)*time.Hour)
	if err != nil {
		log.Fatalf("Failed to create URL signer: %v", err)
	}

	engineCfg := engine.DefaultConfig()
	engineCfg.WorkerCount = cfg.WorkerCount
	engineCfg.MaxAttempts = cfg.ActivityMaxAttempts
	eng := engine.New(store, engineCfg, metrics)

	activities := pipeline.NewActivities(
		blobs,
		services.NewExtractionClient(cfg.ExtractionEndpoint),
		services.NewGenerativeClient(cfg.GenerativeEndpoint, cfg.GenerativeDeployment),
		services.NewSpeechClient(cfg.SpeechEndpoint),
		pipeline.Config{
			NextStage:      cfg.NextStage,
			PromptTier:     cfg.PromptContainer,
			PromptBlob:     cfg.PromptBlob,
			SourceLanguage: cfg.SourceLanguage,
			TargetLanguage: cfg.TargetLanguage,
		},
	)
	pipeline.Register(eng, activities)

	log.Println("Starting workflow engine...")
	if err := eng.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	webAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	webServer := web.NewServer(webAddr, eng, blobs, signer, metrics)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := webServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Web server shutdown error: %v", err)
		}

		log.Println("Stopping workflow engine...")
		eng.Stop()
	}()

	log.Printf("Starting docflow server on %s", webAddr)
	if err := webServer.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func loadConfig() Config {
	cfg := Config{
		HTTPPort:  8080,
		DebugPort: 6060,

		SQLitePath: "docflow.db",
		BlobRoot:   "blobs",
		TierNames:  []string{"raw", "extracted", "final"},
		NextStage:  "final",

		ExtractionEndpoint:   "http://localhost:7001",
		GenerativeEndpoint:   "http://localhost:7002",
		GenerativeDeployment: "gpt-4o",
		SpeechEndpoint:       "http://localhost:7003",

		SourceLanguage: "en",
		TargetLanguage: "es",

		PromptContainer: "raw",
		PromptBlob:      "prompts.yaml",

		URLTTLHours: 1,

		WorkerCount:         8,
		ActivityMaxAttempts: 3,
	}

	// Override from environment
	readInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if _, err := fmt.Sscanf(v, "%d", dst); err != nil {
				log.Printf("Invalid %s, using default: %v", name, err)
			}
		}
	}
	readString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	readInt("HTTP_PORT", &cfg.HTTPPort)
	readInt("DEBUG_PORT", &cfg.DebugPort)
	readString("SQLITE_PATH", &cfg.SQLitePath)
	readString("BLOB_ROOT", &cfg.BlobRoot)
	readString("NEXT_STAGE", &cfg.NextStage)
	readString("EXTRACTION_ENDPOINT", &cfg.ExtractionEndpoint)
	readString("GENERATIVE_ENDPOINT", &cfg.GenerativeEndpoint)
	readString("GENERATIVE_DEPLOYMENT", &cfg.GenerativeDeployment)
	readString("SPEECH_ENDPOINT", &cfg.SpeechEndpoint)
	readString("TRANSLATION_SOURCE_LANGUAGE", &cfg.SourceLanguage)
	readString("TRANSLATION_TARGET_LANGUAGE", &cfg.TargetLanguage)
	readString("PROMPT_CONTAINER", &cfg.PromptContainer)
	readString("PROMPT_BLOB", &cfg.PromptBlob)
	readString("URL_SIGNING_KEY", &cfg.URLSigningKey)
	readInt("URL_TTL_HOURS", &cfg.URLTTLHours)
	readInt("WORKER_COUNT", &cfg.WorkerCount)
	readInt("ACTIVITY_MAX_ATTEMPTS", &cfg.ActivityMaxAttempts)

	if tiers := os.Getenv("TIER_NAMES"); tiers != "" {
		cfg.TierNames = nil
		for _, tier := range strings.Split(tiers, ",") {
			tier = strings.TrimSpace(tier)
			if tier != "" {
				cfg.TierNames = append(cfg.TierNames, tier)
			}
		}
	}

	if cfg.URLSigningKey == "" {
		log.Fatal("URL_SIGNING_KEY is required (at least 16 bytes)")
	}

	return cfg
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
