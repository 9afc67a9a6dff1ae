package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ParleSec/LetsAuth/internal/core"
	"github.com/ParleSec/LetsAuth/internal/crypto"
	"github.com/ParleSec/LetsAuth/internal/obs"
	"github.com/ParleSec/LetsAuth/internal/rp"
	"github.com/ParleSec/LetsAuth/internal/store"
)

func main() {
	godotenv.Load()

	cfg := core.LoadConfig()
	obs.Init()

	var ledger store.NonceLedger
	var closer io.Closer
	if cfg.DataDir != "" {
		sqlite, err := store.NewSQLite(cfg.DataDir)
		if err != nil {
			log.Fatalf("Failed to open store: %v", err)
		}
		ledger, closer = sqlite, sqlite
		log.Printf("Using SQLite nonce ledger in %s", cfg.DataDir)
	} else {
		memory := store.NewMemory()
		ledger, closer = memory, memory
		log.Println("Using in-memory nonce ledger")
	}
	defer closer.Close()

	keys := crypto.NewJWKSFetcher(cfg.JWKSCacheTTL)
	verifier, err := rp.NewVerifier(keys, ledger, cfg.IdPBaseURL, cfg.RPBaseURL, cfg.ClockSkew)
	if err != nil {
		log.Fatalf("Failed to initialize verifier: %v", err)
	}

	router := core.BaseRouter(cfg)
	rp.NewHandlers(verifier, nil).RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         cfg.RPListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("RP listening on %s (accepting assertions from %s)", cfg.RPListenAddr, cfg.IdPBaseURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited gracefully")
}
