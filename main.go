package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sensorboard/config"
	"sensorboard/log"
	"sensorboard/services"

	"go.uber.org/zap"
)

func main() {
	// Initialize structured logger
	logger := log.GetInstance()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Configuration loaded", zap.Any("config", cfg.Redacted()))

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := services.NewPanelHub(logger)
	flag := &services.LivenessFlag{}
	scheduler := services.RealScheduler{}
	pulses := services.NewPulseScheduler(hub, scheduler, cfg.PulseDuration, cfg.PulseCancelStale)

	// Notice sinks: the page dialog always, Telegram and the webhook when configured
	notifiers := []services.Notifier{services.DisplayNotifier{Display: hub}}
	var sinks []services.SampleSink

	var telegramService *services.TelegramService
	if cfg.TelegramEnabled() {
		telegramService, err = services.NewTelegramService(cfg, logger)
		if err != nil {
			logger.Error("Telegram disabled", zap.Error(err))
		} else {
			notifiers = append(notifiers, telegramService)
			alertSink := services.NewAlertSink(services.NewAnomalyDetector(cfg), telegramService, logger)
			go alertSink.Run(ctx)
			sinks = append(sinks, alertSink)
		}
	}

	if cfg.NoticeWebhookURL != "" {
		notifiers = append(notifiers, services.NewWebhookNotifier(logger, cfg.NoticeWebhookURL))
		logger.Info("Notice webhook initialized", zap.String("url", cfg.NoticeWebhookURL))
	}

	var firebaseService *services.FirebaseService
	var batchWriter *services.BatchWriterService
	if cfg.FirebaseEnabled() {
		firebaseService, err = services.NewFirebaseService(ctx, cfg, logger)
		if err != nil {
			logger.Error("Telemetry mirror disabled", zap.Error(err))
		} else {
			batchWriter = services.NewBatchWriterService(firebaseService, cfg.FirebaseBatchSize, cfg.FirebaseBatchTimeout, logger)
			go batchWriter.Start(ctx)
			sinks = append(sinks, batchWriter)
		}
	}

	notifier := services.NewMultiNotifier(logger, notifiers...)
	monitor := services.NewLivenessMonitor(flag, hub, notifier, scheduler, cfg.LivenessWindow, logger)
	hub.SetLivenessSource(monitor.State)

	router := services.NewTelemetryRouter(hub, pulses, flag, logger, sinks...)

	var session services.Session
	switch cfg.Transport {
	case config.TransportAMQP:
		session = services.NewAMQPSession(cfg.RabbitMQURL, cfg.RabbitMQExchange, cfg.RabbitMQQueue, logger)
	default:
		session = services.NewMQTTSession(logger, cfg.AutoReconnect)
	}

	connMgr := services.NewConnectionManager(cfg, session, router, monitor, hub, logger,
		rand.New(rand.NewSource(time.Now().UnixNano())))

	server := services.NewPanelServer(":"+cfg.HTTPPort, hub, connMgr, cfg.LEDTopic, logger)
	go func() {
		if err := server.ListenAndServe(); err != nil {
			logger.Fatal("Panel server failed", zap.Error(err))
		}
	}()

	// A failed connect leaves the page as is: toggle disabled, no liveness check.
	if err := connMgr.Start(ctx); err != nil {
		logger.Error("Failed to connect to broker", zap.Error(err))
	}

	if firebaseService != nil {
		go func() {
			select {
			case <-monitor.Done():
				writeCtx, writeCancel := context.WithTimeout(ctx, 10*time.Second)
				defer writeCancel()
				if err := firebaseService.WriteLiveness(writeCtx, monitor.State()); err != nil {
					logger.Warn("Failed to mirror liveness", zap.Error(err))
				}
			case <-ctx.Done():
			}
		}()
	}

	logger.Info("Sensor panel started",
		zap.String("transport", cfg.Transport),
		zap.String("http_port", cfg.HTTPPort),
		zap.Duration("liveness_window", cfg.LivenessWindow),
		zap.Bool("telegram", telegramService != nil),
		zap.Bool("mirror", batchWriter != nil),
	)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received, stopping services")

	pulses.Stop()
	if err := connMgr.Close(); err != nil {
		logger.Error("Error closing broker session", zap.Error(err))
	}

	cancel()

	if batchWriter != nil {
		if !batchWriter.WaitForShutdown(5 * time.Second) {
			logger.Warn("Batch writer shutdown timeout")
		}
	}
	if firebaseService != nil {
		firebaseService.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down panel server", zap.Error(err))
	}

	logger.Info("Sensor panel stopped")
}
