package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"signalwatch/internal/alerts"
	"signalwatch/internal/config"
	"signalwatch/internal/journal"
	"signalwatch/internal/marketcap"
	"signalwatch/internal/metrics"
	"signalwatch/internal/normalizer"
	"signalwatch/internal/pipeline"
	"signalwatch/internal/store"
)

func main() {
	// Initialize logger
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	// Load .env when present; real deployments use the environment directly
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using environment")
	}

	log.Info("Starting signalwatch service...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	if cfg.LogFile != "" {
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   true,
		}))
	}

	log.WithFields(logrus.Fields{
		"environment":     cfg.Environment,
		"rules_path":      cfg.RulesPath,
		"journal_path":    cfg.JournalPath,
		"pricing_enabled": cfg.PricingEnabled,
		"alert_mode":      cfg.AlertMode,
	}).Info("Configuration loaded")

	// Load scoring rules
	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load rules document")
	}

	log.WithField("version", rules.Version).Info("Rules loaded")

	// Initialize store backend
	backend, closeStore := createBackend(cfg, log)
	defer closeStore()
	st := store.New(backend)

	// Initialize alert journal
	jr, err := journal.Open(cfg.JournalPath, cfg.JournalBackups, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open alert journal")
	}

	log.WithField("path", cfg.JournalPath).Info("Alert journal ready")

	// Initialize alert sender
	alertSender := createAlertSender(cfg, log)

	log.WithField("alert_mode", cfg.AlertMode).Info("Alert sender initialized")

	// Initialize live pricing client
	var pricing pipeline.PricingSource
	if cfg.PricingEnabled {
		pricing = marketcap.NewClient(cfg)
		log.WithField("base_url", cfg.PricingBaseURL).Info("Pricing client initialized")
	}

	// Assemble the pipeline
	pipe := pipeline.New(cfg, rules, log, st, jr, alertSender, pricing)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go pipe.Run(ctx)

	// Start HTTP server (ingest + health + metrics)
	server := newHTTPServer(cfg.HealthPort, pipe, log)
	go func() {
		log.WithField("port", cfg.HealthPort).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithField("signal", sig).Info("Received shutdown signal")

	// Stop accepting signals, then drain in-flight work before cancelling
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown error")
	}

	pipe.Drain(cfg.DrainGrace)
	cancel()

	log.Info("Graceful shutdown complete")
}

// createBackend selects the store backend. Redis failures fall back to the
// in-memory store so a broken cache cannot keep the service down.
func createBackend(cfg *config.Config, log *logrus.Logger) (store.Backend, func()) {
	if cfg.RedisURL == "" {
		log.Info("Using in-memory store")
		return store.NewMemory(), func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb, err := store.NewRedis(ctx, cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, falling back to in-memory store")
		return store.NewMemory(), func() {}
	}

	log.Info("Redis store connected")
	return rdb, func() {
		if err := rdb.Close(); err != nil {
			log.WithError(err).Warn("Error closing Redis connection")
		}
	}
}

func createAlertSender(cfg *config.Config, log *logrus.Logger) alerts.Sender {
	switch cfg.AlertMode {
	case "log":
		return alerts.NewLogSender(log)
	default:
		log.WithField("alert_mode", cfg.AlertMode).Warn("Unknown alert mode, using log")
		return alerts.NewLogSender(log)
	}
}

func newHTTPServer(port int, pipe *pipeline.Pipeline, log *logrus.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/ingest", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var sig normalizer.Signal
		if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, `{"error":"invalid signal payload"}`)
			return
		}

		if err := pipe.Submit(sig); err != nil {
			if errors.Is(err, pipeline.ErrBufferFull) {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, `{"error":"ingest buffer full"}`)
				return
			}
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"error":"shutting down"}`)
			return
		}

		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintf(w, `{"status":"accepted"}`)
	})

	// Health check endpoints
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordHealthCheck(true)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy"}`)
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordHealthCheck(true)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ready"}`)
	})

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
}
