package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sensorboard/models"

	"go.uber.org/zap"
)

// WebhookNotifier posts notices to an external HTTP endpoint, the
// configured URL as given.
type WebhookNotifier struct {
	logger     *zap.Logger
	apiURL     string
	httpClient *http.Client
}

// WebhookPayload represents the payload sent to the notice endpoint
type WebhookPayload struct {
	Notice    models.Notice `json:"notice"`
	Severity  string        `json:"severity"`
	AlertType string        `json:"alert_type"`
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(logger *zap.Logger, apiURL string) *WebhookNotifier {
	return &WebhookNotifier{
		logger: logger,
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify sends the notice via HTTP POST
func (h *WebhookNotifier) Notify(ctx context.Context, notice models.Notice) error {
	payload := WebhookPayload{
		Notice:    notice,
		Severity:  severityFor(notice.Level),
		AlertType: "sensor_notice",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	endpoint := h.apiURL

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "sensorboard/1.0")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.Error("Failed to send notice webhook",
			zap.Error(err),
			zap.String("url", endpoint),
		)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		h.logger.Info("Notice webhook sent successfully",
			zap.String("title", notice.Title),
			zap.String("severity", payload.Severity),
			zap.Int("status_code", resp.StatusCode),
		)
		return nil
	}

	h.logger.Error("Notice webhook returned error",
		zap.Int("status_code", resp.StatusCode),
		zap.String("status", resp.Status),
	)
	return fmt.Errorf("notice webhook error: %s", resp.Status)
}

// severityFor maps a dialog level to the webhook severity scale
func severityFor(level models.NoticeLevel) string {
	switch level {
	case models.NoticeError:
		return "high"
	case models.NoticeWarning:
		return "medium"
	default:
		return "low"
	}
}
