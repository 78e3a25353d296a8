package services

import (
	"context"
	"fmt"
	"time"

	"sensorboard/config"
	"sensorboard/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	latestPath   = "telemetry/latest"
	historyPath  = "telemetry/history"
	livenessPath = "telemetry/liveness"
)

// MirrorRecord is one stored reading.
type MirrorRecord struct {
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at"`
}

// FirebaseService mirrors displayed telemetry into the Realtime Database.
type FirebaseService struct {
	client *db.Client
	logger *zap.Logger
}

func NewFirebaseService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*FirebaseService, error) {
	conf := &firebase.Config{
		DatabaseURL: cfg.FirebaseDbUrl,
	}

	opt := option.WithCredentialsJSON([]byte(cfg.FirebaseServiceAccountJSON))
	app, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %w", err)
	}

	fs := &FirebaseService{
		client: client,
		logger: logger,
	}

	// Test Firebase connection with retry
	if err := fs.testConnection(ctx); err != nil {
		logger.Error("Firebase connection test failed", zap.Error(err))
		return nil, fmt.Errorf("firebase connection test failed: %w", err)
	}

	return fs, nil
}

// testConnection tests Firebase connection with retry logic
func (fs *FirebaseService) testConnection(ctx context.Context) error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		var data map[string]MirrorRecord
		err := fs.client.NewRef(latestPath).Get(ctx, &data)
		if err == nil {
			fs.logger.Info("Firebase connection successful")
			return nil
		}

		fs.logger.Warn("Firebase connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("failed to connect to Firebase after %d attempts", maxRetries)
}

// mirrorUpdate builds one multi-path update: latest value per channel plus
// a history entry per sample keyed by receive time.
func mirrorUpdate(samples []models.Sample) map[string]interface{} {
	update := make(map[string]interface{}, len(samples)*2)
	for i, s := range samples {
		ts := s.Received
		if ts.IsZero() {
			ts = time.Now()
		}
		rec := MirrorRecord{
			Value:     s.Value,
			UpdatedAt: ts.UTC().Format(time.RFC3339Nano),
		}
		update[fmt.Sprintf("%s/%s", latestPath, s.Channel)] = rec
		update[fmt.Sprintf("%s/%s/%d-%d", historyPath, s.Channel, ts.UnixNano(), i)] = rec
	}
	return update
}

// WriteBatch stores a batch of samples in a single update.
func (fs *FirebaseService) WriteBatch(ctx context.Context, samples []models.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	if err := fs.client.NewRef("/").Update(ctx, mirrorUpdate(samples)); err != nil {
		return fmt.Errorf("error writing telemetry batch: %w", err)
	}
	return nil
}

// WriteLiveness records the resolved gate state.
func (fs *FirebaseService) WriteLiveness(ctx context.Context, state models.LivenessState) error {
	rec := MirrorRecord{
		Value:     string(state),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := fs.client.NewRef(livenessPath).Set(ctx, rec); err != nil {
		return fmt.Errorf("error writing liveness: %w", err)
	}
	return nil
}

// ReadLatest returns the latest mirrored value per channel.
func (fs *FirebaseService) ReadLatest(ctx context.Context) (map[string]MirrorRecord, error) {
	var data map[string]MirrorRecord
	if err := fs.client.NewRef(latestPath).Get(ctx, &data); err != nil {
		return nil, fmt.Errorf("error reading latest telemetry: %w", err)
	}
	return data, nil
}

// Close closes the Firebase connection
func (fs *FirebaseService) Close() error {
	fs.logger.Info("Closing Firebase service")
	// Firebase client doesn't require explicit closing but we log it
	return nil
}
