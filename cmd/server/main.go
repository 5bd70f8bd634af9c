package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codyseavey/poe2-price-checker/backend/internal/api/handlers"
	"github.com/codyseavey/poe2-price-checker/backend/internal/config"
	"github.com/codyseavey/poe2-price-checker/backend/internal/database"
	"github.com/codyseavey/poe2-price-checker/backend/internal/metrics"
	"github.com/codyseavey/poe2-price-checker/backend/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	services.SetDebug(cfg.App.Debug)

	if err := database.Initialize(cfg.Database.Path, cfg.App.Debug); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	db := database.GetDB()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	trade := services.NewTradeClient(services.TradeClientOptions{
		BaseURL:        cfg.Trade.BaseURL,
		League:         cfg.Trade.League,
		POESESSID:      cfg.Trade.POESESSID,
		OnlineOnly:     cfg.Trade.OnlineOnly,
		Timeout:        cfg.TradeTimeout(),
		SearchInterval: cfg.SearchInterval(),
		FetchInterval:  cfg.FetchInterval(),
	})

	statSync := services.NewStatSyncService(trade, services.NewStatCacheStore(db))

	evaluator := services.NewTierEvaluator()
	tierWatcher := services.NewTierCatalogWatcher(evaluator, cfg.Tiers.CatalogPath)
	if err := tierWatcher.Reload(); err != nil {
		log.Printf("Tier catalog not loaded, modifiers get neutral scores: %v", err)
	}

	icons := services.NewIconStorageService(cfg.History.IconDir)
	history := services.NewHistoryService(db, icons, cfg.History.MaxScans)
	learning := services.NewLearningService(db, nil)

	var cache *services.SearchCache
	if cfg.Search.CacheSize > 0 {
		cache = services.NewSearchCache(cfg.Search.CacheSize, cfg.SearchCacheTTL())
	}

	searchOpts := services.DefaultSearchOptions()
	searchOpts.MinListings = cfg.Search.MinListings
	searchOpts.MaxRetries = cfg.Search.MaxRetries

	deps := services.PriceServiceDeps{
		Searcher:  trade,
		Stats:     statSync,
		Evaluator: evaluator,
		Cache:     cache,
		History:   history,
		Learning:  learning,
		Icons:     icons,
		League:    trade.League,
		Options:   searchOpts,
	}
	adminDeps := handlers.AdminDeps{
		StatSync:    statSync,
		TierWatcher: tierWatcher,
		Evaluator:   evaluator,
		Cache:       cache,
		History:     history,
		Learning:    learning,
		Session:     trade,
	}

	var rates services.RateSource
	if cfg.Scout.Enabled {
		scout := services.NewScoutClient(cfg.Scout.BaseURL, cfg.Trade.League)
		deps.Scout = scout
		adminDeps.Scout = scout
		rates = scout
		learning.SetRates(scout.Rates)
	}

	priceService := services.NewPriceService(deps)
	maintenance := services.NewMaintenanceWorker(history, statSync, rates, db, cfg.HistoryRetention())
	adminDeps.Maintenance = maintenance

	// Background services
	go func() {
		if _, err := statSync.Sync(ctx); err != nil {
			log.Printf("Initial stat id sync failed, searches run without modifier filters: %v", err)
		}
	}()
	go maintenance.Start(ctx)
	if cfg.Tiers.Watch {
		go func() {
			if err := tierWatcher.Watch(ctx); err != nil {
				log.Printf("Tier watcher stopped: %v", err)
			}
		}()
	}

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), metrics.HTTPMetrics())

	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"league":         trade.League(),
			"stat_ids":       statSync.Resolver().Len(),
			"catalog_loaded": evaluator.Loaded(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterRoutes(router, handlers.Handlers{
		Items:    handlers.NewItemHandler(priceService),
		Prices:   handlers.NewPriceHandler(priceService),
		History:  handlers.NewHistoryHandler(history, icons),
		Learning: handlers.NewLearningHandler(learning),
		Leagues:  handlers.NewLeagueHandler(trade),
		Admin:    handlers.NewAdminHandler(adminDeps),
	}, cfg.Server.AdminKey)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		// Price checks can wait out several rate limit windows
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s (league %s)", cfg.Server.Port, trade.League())
		if cfg.Server.AdminKey == "" {
			log.Println("Warning: ADMIN_KEY not set, admin endpoints are open")
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}
	log.Println("Server stopped")
}
