package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"sensorboard/config"
	"sensorboard/log"
	"sensorboard/services"

	"go.uber.org/zap"
)

// mirrordump prints the latest mirrored reading of every channel.
func main() {
	logger := log.GetInstance()
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if !cfg.FirebaseEnabled() {
		logger.Fatal("FIREBASE_DB_URL and FIREBASE_SERVICE_ACCOUNT_JSON must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	firebaseService, err := services.NewFirebaseService(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Firebase service", zap.Error(err))
	}
	defer firebaseService.Close()

	latest, err := firebaseService.ReadLatest(ctx)
	if err != nil {
		logger.Fatal("Failed to read mirror", zap.Error(err))
	}

	fmt.Printf("Channels found: %d\n", len(latest))

	channels := make([]string, 0, len(latest))
	for channel := range latest {
		channels = append(channels, channel)
	}
	sort.Strings(channels)

	for _, channel := range channels {
		rec := latest[channel]
		fmt.Fprintf(os.Stdout, "%-12s %-10s %s\n", channel, rec.Value, rec.UpdatedAt)
	}
}
