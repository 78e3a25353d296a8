package services

import (
	"context"
	"sync"
	"time"

	"sensorboard/models"

	"go.uber.org/zap"
)

// BatchStore persists a batch of samples.
type BatchStore interface {
	WriteBatch(ctx context.Context, samples []models.Sample) error
}

// BatchWriterService buffers recognized samples and flushes them to the mirror
type BatchWriterService struct {
	store        BatchStore
	logger       *zap.Logger
	input        chan models.Sample
	buffer       []models.Sample
	bufferMutex  sync.Mutex
	maxBatchSize int
	batchTimeout time.Duration
	retryBackoff time.Duration
	shutdownChan chan bool
}

// NewBatchWriterService creates a new batch writer service
func NewBatchWriterService(store BatchStore, maxBatchSize int, batchTimeout time.Duration, logger *zap.Logger) *BatchWriterService {
	if maxBatchSize <= 0 {
		maxBatchSize = 1
	}
	return &BatchWriterService{
		store:        store,
		logger:       logger,
		input:        make(chan models.Sample, maxBatchSize*4),
		buffer:       make([]models.Sample, 0, maxBatchSize),
		maxBatchSize: maxBatchSize,
		batchTimeout: batchTimeout,
		retryBackoff: time.Second,
		shutdownChan: make(chan bool, 1),
	}
}

// Accept queues a sample without blocking the router.
func (bw *BatchWriterService) Accept(sample models.Sample) {
	select {
	case bw.input <- sample:
	default:
		bw.logger.Warn("Batch writer input full, dropping sample",
			zap.String("channel", string(sample.Channel)))
	}
}

// Start runs the batch loop until ctx is cancelled.
func (bw *BatchWriterService) Start(ctx context.Context) {
	bw.logger.Info("Starting batch writer service",
		zap.Int("max_batch_size", bw.maxBatchSize),
		zap.Duration("batch_timeout", bw.batchTimeout))

	flushTimer := time.NewTimer(bw.batchTimeout)
	defer flushTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			bw.logger.Info("Batch writer received shutdown signal")
			bw.drainInput()
			// The run context is gone; give the final flush its own deadline.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			bw.flushBuffer(flushCtx)
			cancel()
			bw.shutdownChan <- true
			return

		case sample := <-bw.input:
			bw.bufferMutex.Lock()
			bw.buffer = append(bw.buffer, sample)
			currentSize := len(bw.buffer)
			bw.bufferMutex.Unlock()

			if currentSize >= bw.maxBatchSize {
				bw.logger.Debug("Buffer full, flushing", zap.Int("buffer_size", currentSize))

				// Stop and reset timer
				if !flushTimer.Stop() {
					select {
					case <-flushTimer.C:
					default:
					}
				}

				bw.flushBuffer(ctx)
				flushTimer.Reset(bw.batchTimeout)
			}

		case <-flushTimer.C:
			if bw.GetBufferSize() > 0 {
				bw.flushBuffer(ctx)
			}
			flushTimer.Reset(bw.batchTimeout)
		}
	}
}

// drainInput moves queued samples into the buffer.
func (bw *BatchWriterService) drainInput() {
	for {
		select {
		case sample := <-bw.input:
			bw.bufferMutex.Lock()
			bw.buffer = append(bw.buffer, sample)
			bw.bufferMutex.Unlock()
		default:
			return
		}
	}
}

// flushBuffer writes the current buffer and clears it
func (bw *BatchWriterService) flushBuffer(ctx context.Context) {
	bw.bufferMutex.Lock()

	if len(bw.buffer) == 0 {
		bw.bufferMutex.Unlock()
		return
	}

	// Copy buffer for writing (to avoid holding lock during write)
	batch := make([]models.Sample, len(bw.buffer))
	copy(batch, bw.buffer)
	bw.buffer = bw.buffer[:0]

	bw.bufferMutex.Unlock()

	maxRetries := 3
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = bw.store.WriteBatch(ctx, batch)
		if err == nil {
			bw.logger.Debug("Flushed telemetry batch", zap.Int("batch_size", len(batch)))
			return
		}

		bw.logger.Error("Failed to flush telemetry batch",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Int("batch_size", len(batch)),
			zap.Error(err))

		if attempt < maxRetries {
			select {
			case <-time.After(time.Duration(attempt) * bw.retryBackoff):
			case <-ctx.Done():
				attempt = maxRetries
			}
		}
	}

	// If all retries failed, log error (data will be lost)
	bw.logger.Error("Failed to flush batch after all retries, data lost",
		zap.Int("batch_size", len(batch)),
		zap.Error(err))
}

// WaitForShutdown waits for the batch writer to complete shutdown
func (bw *BatchWriterService) WaitForShutdown(timeout time.Duration) bool {
	select {
	case <-bw.shutdownChan:
		return true
	case <-time.After(timeout):
		return false
	}
}

// GetBufferSize returns the current buffer size (for monitoring)
func (bw *BatchWriterService) GetBufferSize() int {
	bw.bufferMutex.Lock()
	defer bw.bufferMutex.Unlock()
	return len(bw.buffer)
}
