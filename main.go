// backend/main.go
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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parcelview/propertydata/backend/config"
	"github.com/parcelview/propertydata/backend/database"
	"github.com/parcelview/propertydata/backend/handlers"
	"github.com/parcelview/propertydata/backend/services"
	"github.com/parcelview/propertydata/backend/socrata"
)

func main() {
	log.Println("Starting NYC Property Data Sync Backend...")

	configPath := "backend/config/config.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = "config/config.yaml"
		if _, errFallback := os.Stat(configPath); os.IsNotExist(errFallback) {
			log.Fatalf("Config file not found at default paths. Error: %v", errFallback)
		}
	}

	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	log.Printf("Configuration loaded. Server port: %s, DB name: %s",
		config.AppConfig.Server.Port, config.AppConfig.Database.DBName)
	log.Printf("Socrata base URL: %s", config.AppConfig.Socrata.BaseURL)

	if err := database.InitDB(config.AppConfig.Database); err != nil {
		log.Fatalf("Error initializing database: %v", err)
	}
	defer database.CloseDB()

	// Storage layer over the shared pool.
	datasetStore := database.NewDatasetStore(database.DB)
	freshnessStore := database.NewFreshnessStore(database.DB)
	syncLogStore := database.NewSyncLogStore(database.DB)
	recordStore := database.NewRecordStore(database.DB)

	source := socrata.NewClient(config.AppConfig.Socrata)

	registry := services.NewRegistry(datasetStore)
	if err := registry.SeedBuiltIns(); err != nil {
		log.Fatalf("Error seeding built-in datasets: %v", err)
	}

	scorer := services.NewFreshnessScorer(registry, freshnessStore, recordStore, source, config.AppConfig.Sync)
	scheduler := services.NewRecommendationScheduler(registry, freshnessStore, syncLogStore, config.AppConfig.Sync)
	pipeline := services.NewIngestionPipeline(registry, syncLogStore, recordStore, freshnessStore, source, config.AppConfig.Sync)
	executor := services.NewSyncExecutor(scheduler, pipeline, config.AppConfig.Sync)

	api := &handlers.API{
		Registry:  registry,
		Scorer:    scorer,
		Scheduler: scheduler,
		Executor:  executor,
		Pipeline:  pipeline,
		Freshness: freshnessStore,
		SyncLogs:  syncLogStore,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount("/api", api.Routes())
	r.Handle("/metrics", promhttp.Handler())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.AppConfig.Sync.AutoSyncEnabled {
		coordinator := services.NewSyncCoordinator(scorer, executor, config.AppConfig.Sync)
		go coordinator.Start(ctx)
	} else {
		log.Println("Auto-sync is disabled; syncs run only on request.")
	}

	serverAddr := ":" + config.AppConfig.Server.Port
	server := &http.Server{Addr: serverAddr, Handler: r}

	go func() {
		log.Printf("Server starting on http://localhost%s\n", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Error starting server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutdown signal received, draining connections...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR Server shutdown: %v", err)
	}
	log.Println("Server stopped.")
}
