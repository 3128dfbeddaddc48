// Command worker is the ledgerflow background processor: an
// HTTP-triggered document pipeline backed by Postgres, fronted by a
// bearer auth middleware and a cron-driven stale-document sweep.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/syntheit/ledgerflow/internal/category"
	"github.com/syntheit/ledgerflow/internal/chunk"
	"github.com/syntheit/ledgerflow/internal/config"
	"github.com/syntheit/ledgerflow/internal/document"
	"github.com/syntheit/ledgerflow/internal/extract"
	"github.com/syntheit/ledgerflow/internal/ledger"
	"github.com/syntheit/ledgerflow/internal/llmclient"
	"github.com/syntheit/ledgerflow/internal/orchestrator"
	"github.com/syntheit/ledgerflow/internal/scheduler"
	"github.com/syntheit/ledgerflow/internal/store"
	"github.com/syntheit/ledgerflow/internal/transaction"
)

func main() {
	log.Println("🚀 ledgerflow worker starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	db, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	categories := category.NewResolver(db, category.DefaultTTL)
	llm := llmclient.NewClient(cfg.LLMProviderURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMMaxTokens, cfg.LLMTemperature)
	creator := transaction.NewCreator(db, categories, cfg.ExtractionConfidenceThreshold, cfg.AutoApprovalThreshold)
	ledgerSvc := ledger.NewService(db)
	registry := document.NewRegistry(extract.NewTesseractOCR(), int64(cfg.MaxFileSizeMB)*1024*1024)
	storage := orchestrator.NewLocalStorage(os.Getenv("STORAGE_ROOT"))

	chunkParams := chunk.Params{
		MaxChunkSize:            cfg.ChunkerMaxChunkSize,
		Overlap:                 cfg.ChunkerOverlap,
		MaxTransactionsPerChunk: cfg.ChunkerMaxTransactionsPerChunk,
	}

	orch := orchestrator.New(db, storage, cfg.StorageBucket, registry, categories, llm, creator, ledgerSvc, chunkParams, cfg.AutoApprovalThreshold)
	pool := orchestrator.NewPool(orch, orchestrator.DefaultPoolSize)

	sched, err := scheduler.New(db)
	if err != nil {
		log.Fatalf("Failed to set up scheduler: %v", err)
	}
	sched.Start()

	authMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			expected := "Bearer " + cfg.WorkerAPIKey
			if r.Header.Get("Authorization") != expected {
				log.Printf("⚠️ Unauthorized access attempt from %s", r.RemoteAddr)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/process", authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var body struct {
			DocumentID string `json:"document_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DocumentID == "" {
			http.Error(w, "document_id is required", http.StatusBadRequest)
			return
		}

		pool.Submit(body.DocumentID)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("queued"))
	}))

	server := &http.Server{Addr: ":" + cfg.Port, Handler: mux}

	go func() {
		log.Printf("✓ HTTP server listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	log.Println("✓ Scheduler started")
	log.Println("  - Stale-processing sweep: every 15 minutes")
	log.Printf("  - HTTP server: :%s", cfg.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("🛑 Shutting down gracefully...")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ HTTP server shutdown error: %v", err)
	}

	pool.Close()
	log.Println("✓ Worker stopped")
}
