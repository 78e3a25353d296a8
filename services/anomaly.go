package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"sensorboard/config"
	"sensorboard/models"

	"go.uber.org/zap"
)

type AnomalyDetector struct {
	config *config.Config
}

func NewAnomalyDetector(cfg *config.Config) *AnomalyDetector {
	return &AnomalyDetector{
		config: cfg,
	}
}

// parseReading extracts a number from a verbatim payload. Unit suffixes the
// gateway appends ("21.5°C", "48%") are tolerated.
func parseReading(value string) (float64, bool) {
	v := strings.TrimSpace(value)
	v = strings.TrimRight(v, "°C%")
	v = strings.TrimSpace(v)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// DetectAnomalies checks a sample against the configured thresholds.
// Non-numeric values never produce an anomaly.
func (ad *AnomalyDetector) DetectAnomalies(sample models.Sample) []*models.Anomaly {
	value, ok := parseReading(sample.Value)
	if !ok {
		return nil
	}

	var anomalies []*models.Anomaly
	add := func(t models.AnomalyType, threshold float64, description string) {
		anomalies = append(anomalies, &models.Anomaly{
			Type:        t,
			Channel:     sample.Channel,
			Value:       value,
			Threshold:   threshold,
			Timestamp:   sample.Received,
			Description: description,
		})
	}

	switch sample.Channel {
	case models.Temperature:
		if value > ad.config.TemperatureMax {
			add(models.TemperatureTooHigh, ad.config.TemperatureMax,
				fmt.Sprintf("Temperature %.1f°C exceeds maximum threshold of %.1f°C", value, ad.config.TemperatureMax))
		}
		if value < ad.config.TemperatureMin {
			add(models.TemperatureTooLow, ad.config.TemperatureMin,
				fmt.Sprintf("Temperature %.1f°C is below minimum threshold of %.1f°C", value, ad.config.TemperatureMin))
		}
	case models.Humidity:
		if value > ad.config.HumidityMax {
			add(models.HumidityTooHigh, ad.config.HumidityMax,
				fmt.Sprintf("Humidity %.1f%% exceeds maximum threshold of %.1f%%", value, ad.config.HumidityMax))
		}
		if value < ad.config.HumidityMin {
			add(models.HumidityTooLow, ad.config.HumidityMin,
				fmt.Sprintf("Humidity %.1f%% is below minimum threshold of %.1f%%", value, ad.config.HumidityMin))
		}
	case models.Battery:
		if value < ad.config.BatteryMin {
			add(models.BatteryLow, ad.config.BatteryMin,
				fmt.Sprintf("Battery %.0f%% is below minimum of %.0f%%", value, ad.config.BatteryMin))
		}
	}

	return anomalies
}

// AnomalyAlerter is the sending half of threshold alerts.
type AnomalyAlerter interface {
	SendAnomalyAlert(anomalies []*models.Anomaly, sample models.Sample) error
}

// AlertSink is a SampleSink that runs detection and sends alerts off the
// router's path.
type AlertSink struct {
	detector *AnomalyDetector
	alerter  AnomalyAlerter
	logger   *zap.Logger
	queue    chan models.Sample
}

// NewAlertSink creates the sink; call Run to start delivering.
func NewAlertSink(detector *AnomalyDetector, alerter AnomalyAlerter, logger *zap.Logger) *AlertSink {
	return &AlertSink{
		detector: detector,
		alerter:  alerter,
		logger:   logger,
		queue:    make(chan models.Sample, 32),
	}
}

// Accept queues the sample; it is dropped when the queue is full.
func (s *AlertSink) Accept(sample models.Sample) {
	select {
	case s.queue <- sample:
	default:
		s.logger.Warn("Alert queue full, dropping sample", zap.String("channel", string(sample.Channel)))
	}
}

// Run processes queued samples until ctx is cancelled.
func (s *AlertSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample := <-s.queue:
			anomalies := s.detector.DetectAnomalies(sample)
			if len(anomalies) == 0 {
				continue
			}
			s.logger.Warn("Anomalies detected",
				zap.String("channel", string(sample.Channel)),
				zap.String("value", sample.Value),
				zap.Int("anomaly_count", len(anomalies)))
			if err := s.alerter.SendAnomalyAlert(anomalies, sample); err != nil {
				s.logger.Error("Failed to send anomaly alert", zap.Error(err))
			}
		}
	}
}
