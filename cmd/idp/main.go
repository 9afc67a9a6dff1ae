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
	"github.com/ParleSec/LetsAuth/internal/delivery"
	"github.com/ParleSec/LetsAuth/internal/idp"
	"github.com/ParleSec/LetsAuth/internal/obs"
	"github.com/ParleSec/LetsAuth/internal/origin"
	"github.com/ParleSec/LetsAuth/internal/store"
)

func main() {
	// Load .env if present; real deployments set the environment directly
	godotenv.Load()

	cfg := core.LoadConfig()
	obs.Init()

	var keySet *crypto.KeySet
	var err error
	if cfg.KeyFile != "" {
		keySet, err = crypto.LoadOrCreateKeySet(cfg.KeyFile)
	} else {
		keySet, err = crypto.NewKeySet()
		log.Println("No key file configured; using an ephemeral signing key")
	}
	if err != nil {
		log.Fatalf("Failed to initialize key set: %v", err)
	}
	log.Printf("Signing key ready (kid %s)", keySet.KeyID())

	issuer, err := origin.Canonicalize(cfg.IdPBaseURL)
	if err != nil {
		log.Fatalf("Invalid IdP base URL %q: %v", cfg.IdPBaseURL, err)
	}

	var pending store.PendingStore
	var closer io.Closer
	if cfg.DataDir != "" {
		sqlite, err := store.NewSQLite(cfg.DataDir)
		if err != nil {
			log.Fatalf("Failed to open store: %v", err)
		}
		pending, closer = sqlite, sqlite
		log.Printf("Using SQLite store in %s", cfg.DataDir)
	} else {
		memory := store.NewMemory()
		pending, closer = memory, memory
		log.Println("Using in-memory store")
	}
	defer closer.Close()

	signer := crypto.NewSigner(keySet, issuer, cfg.AssertionTTL)
	svc := idp.NewService(pending, signer, delivery.LogSink{}, cfg.IdPBaseURL, cfg.PendingTTL)

	router := core.BaseRouter(cfg)
	idp.NewHandlers(svc, keySet, cfg.IsDevelopment() || cfg.Debug).RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         cfg.IdPListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("IdP listening on %s (issuer %s)", cfg.IdPListenAddr, issuer)
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
