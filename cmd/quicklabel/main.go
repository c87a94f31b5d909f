package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/darrien-wang/QuickLabel/internal/batch"
	"github.com/darrien-wang/QuickLabel/internal/config"
	"github.com/darrien-wang/QuickLabel/internal/database"
	"github.com/darrien-wang/QuickLabel/internal/handlers"
	"github.com/darrien-wang/QuickLabel/internal/models"
	"github.com/darrien-wang/QuickLabel/internal/printqueue"
	"github.com/darrien-wang/QuickLabel/internal/services/printer"
	"github.com/darrien-wang/QuickLabel/internal/services/scanning"
	"github.com/darrien-wang/QuickLabel/internal/sync"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize database (Detects Embedded vs External automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Auto-Migrate Schema
	log.Println("🚀 Synchronizing database schema...")
	err = db.AutoMigrate(
		&models.Batch{},
		&models.Record{},
		&models.WorkstationState{},
	)
	if err != nil {
		log.Printf("⚠️ Migration warning: %v\n", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	// 4. Load persisted batches into the in-memory store
	repo := batch.NewRepository(db)
	store := batch.NewStore()

	persisted, err := repo.LoadAll()
	if err != nil {
		log.Printf("⚠️ Failed to load persisted batches: %v", err)
	}
	for _, b := range persisted {
		store.Put(b)
	}
	state, err := repo.LoadState()
	if err != nil {
		log.Printf("⚠️ Failed to load workstation state: %v", err)
	}
	if state.ActiveBatchID != "" {
		if err := store.SetActive(state.ActiveBatchID); err != nil {
			log.Printf("⚠️ Persisted active batch %s no longer exists", state.ActiveBatchID)
		}
	}
	log.Printf("📦 Loaded %d batches (active: %q)", len(persisted), store.ActiveID())

	// 5. Build the sync session and the print pipeline
	session := sync.NewSession(cfg.Sync, store)

	if state.PrinterID != "" {
		cfg.Print.PrinterID = state.PrinterID
	}
	queue := printqueue.NewProcessor(
		printer.NewGenerator(),
		printer.NewSpoolPrinter(cfg.Print.SpoolDir),
		cfg.Print,
	)
	queue.Start()

	scanner := scanning.NewService(store, session, queue)
	scanner.Start()

	// 6. Restore the previous sync role (best effort — the session is
	// stateless; the persisted hints just re-arm it)
	switch state.LastRole {
	case "host":
		if st, err := session.StartHost(); err != nil {
			log.Printf("⚠️ Sync: could not restore host role: %v", err)
		} else {
			log.Printf("✅ Sync: hosting restored on %s", st.LocalAddress)
		}
	case "client":
		if state.LastHostAddr == "" {
			break
		}
		if err := session.ConnectToHost(state.LastHostAddr); err != nil {
			log.Printf("⚠️ Sync: could not reconnect to %s: %v", state.LastHostAddr, err)
		} else {
			log.Printf("✅ Sync: reconnected to host %s", state.LastHostAddr)
		}
	}

	// 7. Set up HTTP router and serve
	router := handlers.NewRouter(store, repo, scanner, session, queue)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("🚀 QuickLabel workstation on port %s (origin: %s)\n", cfg.APIPort, cfg.Sync.OriginLabel)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sig := <-shutdown
	log.Printf("\n⚠️  Received signal: %v. Shutting down gracefully...\n", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Tear the role down before persisting so no broadcast races the save
	scanner.Stop()
	session.Close()
	queue.Stop()

	if err := repo.SaveAll(store.Batches()); err != nil {
		log.Printf("⚠️ Failed to persist batches on shutdown: %v", err)
	}

	log.Println("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
