package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"mirage/api"
	"mirage/config"
	"mirage/handlers"
	"mirage/internal/tasks"
	"mirage/services/catalog"
	"mirage/services/hlsprobe"
	"mirage/services/library"
	"mirage/services/metadata"
	"mirage/services/resolve"
	"mirage/services/subtitles"
	"mirage/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[main] no .env file, using environment variables")
	}

	configPath := os.Getenv("MIRAGE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("data", "settings.json")
	}
	manager := config.NewManager(configPath)
	settings, err := manager.Load()
	if err != nil {
		log.Fatalf("[main] load settings: %v", err)
	}
	if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
		if err := manager.Save(settings); err != nil {
			log.Printf("[main] could not write initial settings: %v", err)
		}
	}

	if settings.Server.LogFile != "" {
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   settings.Server.LogFile,
			MaxSize:    20, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
		}))
	}
	log.Printf("[main] starting mirage on port %d", settings.Server.Port)

	lib, err := library.Open(filepath.Join(settings.Server.DataDir, "library.db"), afero.NewOsFs())
	if err != nil {
		log.Fatalf("[main] open library: %v", err)
	}
	defer lib.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := catalog.NewStore()
	store.StartCleanup(ctx, 5*time.Minute)

	queue := tasks.NewQueue(128)
	queue.Start(ctx, 2)

	subtitleService := subtitles.NewService(nil)
	if settings.Subtitles.ProviderURL != "" {
		subtitleService = subtitles.NewService(subtitles.NewHTTPFetcher(nil, settings.Subtitles.ProviderURL))
	}

	engine := resolve.NewEngine(store, resolve.Deps{
		Library:    lib,
		Runtime:    metadata.NewService(settings.Metadata.TMDBAPIKey, settings.Metadata.TMDBURL, nil),
		Subtitles:  subtitleService,
		Prober:     hlsprobe.New(nil),
		Tasks:      queue,
		Remote:     resolve.NewRemoteLookupClient(nil, settings.Streaming.RemoteLookupURL),
		Aggregator: resolve.NewAggregatorClient(nil, settings.Streaming.AggregatorURL),
	})

	router := utils.NewRouter()
	resolveLimiter := api.NewClientLimiter(rate.Limit(5), 10)
	playbackHandler := handlers.NewPlaybackHandler(engine, manager)
	router.Handle("/playback/resolve",
		resolveLimiter.Throttle(http.HandlerFunc(playbackHandler.Resolve))).
		Methods(http.MethodPost)

	subtitlesHandler := handlers.NewSubtitlesHandler(subtitleService, store)
	router.HandleFunc("/subtitles/{itemID}/{lang}", subtitlesHandler.Serve).
		Methods(http.MethodGet)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", settings.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("[main] listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[main] shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] forced shutdown: %v", err)
	}
	queue.Wait()
	log.Println("[main] stopped")
}
