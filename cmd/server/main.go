package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/stockpulse/assistant/internal/config"
	"github.com/stockpulse/assistant/internal/handlers"
	"github.com/stockpulse/assistant/internal/i18n"
	"github.com/stockpulse/assistant/internal/middleware"
	"github.com/stockpulse/assistant/internal/orchestrator"
	"github.com/stockpulse/assistant/internal/services/analyzer"
	"github.com/stockpulse/assistant/internal/services/breaker"
	"github.com/stockpulse/assistant/internal/services/cache"
	"github.com/stockpulse/assistant/internal/services/data"
	"github.com/stockpulse/assistant/internal/services/intent"
	"github.com/stockpulse/assistant/internal/services/llm"
	"github.com/stockpulse/assistant/internal/services/news"
	"github.com/stockpulse/assistant/internal/services/retrieval"
	"github.com/stockpulse/assistant/internal/services/router"
	"github.com/stockpulse/assistant/internal/services/store"
	"github.com/stockpulse/assistant/internal/services/usage"
	"github.com/stockpulse/assistant/pkg/logger"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		// It's okay if .env doesn't exist
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting chat orchestrator...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	redisStore, err := store.NewRedisStore(&cfg.Storage.Redis, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisStore.Close()

	// Initialize metrics
	metrics := middleware.NewMetrics()

	// Start metrics server if enabled
	if cfg.Monitoring.Metrics.Enabled {
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	// Initialize usage monitor and circuit breaker
	usageMonitor := usage.NewMonitor(cfg.Breaker.QuotaMarkers, metrics, log)
	circuitBreaker := breaker.New(cfg.Breaker.FailureThreshold, cfg.Breaker.ResetTimeout, usageMonitor, log)

	// Initialize LLM client
	llmClient := llm.NewOllamaClient(&cfg.LLM, usageMonitor, log)

	// Initialize cache with its sweep timer
	cacheService := cache.NewStore(&cfg.Cache, log)
	if cfg.Cache.Enabled {
		go func() {
			ticker := time.NewTicker(cfg.Cache.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					cacheService.SweepExpired()
				}
			}
		}()
	}

	// Initialize retrieval index
	index := retrieval.NewIndex(redisStore, log)
	if err := index.Refresh(ctx); err != nil {
		log.WithError(err).Error("Initial index build failed, starting with empty index")
	}
	metrics.SetIndexedArticles(float64(index.Size()))

	// Initialize analyzers and external news
	runner := analyzer.NewRunner(&cfg.Analyzer, log)
	var externalNews data.ExternalNews
	if newsClient := news.NewClient(&cfg.News, log); newsClient != nil {
		externalNews = newsClient
	}

	// Initialize i18n
	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	// Wire the chat pipeline
	classifier := intent.NewClassifier(llmClient, cacheService, circuitBreaker, cfg.LLM.IntentTimeout, log)
	requirementsRouter := router.New()
	dataHandlers := data.NewHandlers(
		redisStore, redisStore, redisStore,
		index, runner, runner, externalNews,
		cfg.Retrieval.Threshold, log,
	)
	orch := orchestrator.New(
		requirementsRouter, classifier, cacheService, dataHandlers,
		llmClient, circuitBreaker, usageMonitor, localizer, metrics, log,
		cfg.Server.MaxMessageLen, cfg.LLM.GenerationTimeout,
	)

	// Initialize rate limiter and HTTP ingress
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)
	chatHandler := handlers.NewChatHandler(
		orch, redisStore, rateLimiter, localizer, metrics, log,
		cfg.Server.RequireSession, cfg.Server.MaxMessageLen,
	)

	r := mux.NewRouter()
	r.HandleFunc("/chatbot/chat", chatHandler.Chat).Methods(http.MethodPost)
	r.HandleFunc("/chatbot/usage", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"today":   usageMonitor.GetDay(),
			"health":  usageMonitor.GetHealth(),
			"breaker": circuitBreaker.Status(),
			"cache":   cacheService.Stats(),
		})
	}).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Keep the breaker gauge current
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.SetBreakerOpen(circuitBreaker.IsOpen())
			}
		}
	}()

	go func() {
		log.WithField("port", cfg.Server.Port).Info("Chat orchestrator listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}

	log.Info("Chat orchestrator stopped")
}
