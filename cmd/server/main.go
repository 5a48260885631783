package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/veloria/leadchat/internal/api"
	"github.com/veloria/leadchat/internal/config"
	"github.com/veloria/leadchat/internal/core"
	"github.com/veloria/leadchat/internal/export"
	"github.com/veloria/leadchat/internal/llm"
	"github.com/veloria/leadchat/internal/memory"
	"github.com/veloria/leadchat/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Command line flag for document ingestion
	ingestPath := flag.String("ingest", "", "Ingest company documents from the given file into the index and exit")
	flag.Parse()

	ctx := context.Background()

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Initialize LLM client; the Gemini client doubles as the embedder.
	var client llm.Client
	var embedder memory.Embedder
	switch config.AppConfig.LLMProvider {
	case "stub":
		stub := llm.NewStub()
		client, embedder = stub, stub
		log.Println("Using stub LLM provider (offline mode)")
	default:
		gemini, err := llm.NewGemini(ctx, config.AppConfig.GeminiAPIKey)
		if err != nil {
			log.Fatalf("Failed to initialize Gemini client: %v", err)
		}
		client, embedder = gemini, gemini
	}
	defer client.Close()

	// Initialize embedding index and memory service
	index, err := memory.NewIndex(config.AppConfig.IndexDir)
	if err != nil {
		log.Fatalf("Failed to initialize embedding index: %v", err)
	}
	memService, err := memory.NewService(dbStore, index, embedder, config.AppConfig.RecentTurns)
	if err != nil {
		log.Fatalf("Failed to initialize memory service: %v", err)
	}

	// Handle document ingestion if flag is set
	if *ingestPath != "" {
		log.Printf("Starting document ingestion from %s...", *ingestPath)
		numIngested, err := memService.IngestDocumentsFromFile(ctx, *ingestPath)
		if err != nil {
			log.Fatalf("Document ingestion failed: %v", err)
		}
		log.Printf("Document ingestion complete. Ingested %d paragraphs. Exiting.", numIngested)
		os.Exit(0)
	}

	// Initialize lead export, orchestrator and follow-up scheduler
	exporter, err := export.NewLeadWriter(config.AppConfig.LeadsCSV)
	if err != nil {
		log.Fatalf("Failed to initialize leads CSV: %v", err)
	}
	orch := core.NewOrchestrator(dbStore, memService, client, exporter, config.AppConfig.RetrieveTopK)
	scheduler := core.NewFollowUpScheduler(dbStore, memService, orch,
		config.AppConfig.FollowUpThreshold, config.AppConfig.FollowUpMax)

	// Initialize API handlers and router
	apiHandler := api.NewAPIHandler(orch, scheduler, memService, dbStore, config.AppConfig.LLMProvider)
	socketHandler := api.NewSocketHandler(orch)
	router := api.NewRouter(apiHandler, socketHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
