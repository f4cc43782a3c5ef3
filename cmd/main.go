package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"lottery/internal/config"
	"lottery/internal/contentstore"
	"lottery/internal/handlers"
	"lottery/internal/ledger"
	"lottery/internal/ledger/memledger"
	"lottery/internal/models"
	"lottery/internal/readmodel"
	"lottery/internal/services"
	"lottery/internal/session"
)

func main() {
	// 1. Load configuration from the environment
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	defer logger.Init("lottery", cfg.LogVerbose, false, io.Discard).Close()

	required, err := cfg.Network()
	if err != nil {
		logger.Fatalf("Invalid required network: %v", err)
	}

	// 2. Choose the content store
	var (
		store  contentstore.Store
		health func() bool
	)
	switch cfg.Store {
	case config.StoreMemory:
		store = contentstore.NewMemory()
	default:
		ipfs := contentstore.NewIPFS(cfg.IPFSAPIURL, cfg.IPFSTimeout)
		if !ipfs.Reachable() {
			logger.Warningf("IPFS node at %s is not answering; uploads will fail until it is up", cfg.IPFSAPIURL)
		}
		store, health = ipfs, ipfs.Reachable
	}

	// 3. Build the ledger client, the read model and the services
	backend := memledger.New()
	client := ledger.NewClient(backend, ledger.Options{
		ConfirmTimeout: cfg.ConfirmTimeout,
		PollInterval:   cfg.ConfirmPoll,
		SubmitAttempts: cfg.SubmitAttempts,
		SubmitBackoff:  cfg.SubmitBackoff,
	})
	cache := readmodel.New(client)
	lotteryService := services.NewLotteryService(client, store, cache)
	anchorService := services.NewAnchorService(client, store, cache, cfg.MountUploads)

	// 4. One session per caller, each behind a dev wallet host on the required network
	registry := services.NewSessionRegistry(required, func(who models.Identity) session.Host {
		return session.NewDevHost(required, who)
	})

	// 5. Set up the Gin router
	if !cfg.LogVerbose {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	handlers.NewHTTPHandler(lotteryService, anchorService, registry, health).RegisterRoutes(r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Writes confirm on their own even if nobody polls for them
	go backend.Run(ctx, cfg.ConfirmPoll)

	// 6. Start the background janitor to clean up inactive sessions
	go func() {
		ticker := time.NewTicker(cfg.JanitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := registry.CleanUpInactiveSessions(cfg.SessionIdle); n > 0 {
					logger.Infof("Performed cleanup of %d inactive sessions.", n)
				}
			}
		}
	}()

	// 7. Run the server until interrupted
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Infof("Server starting on %s (network %s, store %s)", cfg.HTTPAddr, required, cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to run server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Graceful shutdown failed: %v", err)
	}
}
