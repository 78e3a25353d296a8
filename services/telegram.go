package services

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"sensorboard/config"
	"sensorboard/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const alertThrottle = 15 * time.Second

type TelegramService struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	logger         *zap.Logger
	mu             sync.Mutex
	lastAlertTimes map[models.Channel]time.Time // Track last alert time per channel
}

func NewTelegramService(cfg *config.Config, logger *zap.Logger) (*TelegramService, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %w", err)
	}

	chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing chat ID: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	ts := &TelegramService{
		bot:            bot,
		chatID:         chatID,
		logger:         logger,
		lastAlertTimes: make(map[models.Channel]time.Time),
	}

	// Test Telegram connection with retry
	if err := ts.testConnection(); err != nil {
		logger.Error("Telegram connection test failed", zap.Error(err))
		return nil, fmt.Errorf("telegram connection test failed: %w", err)
	}

	return ts, nil
}

// testConnection tests Telegram connection with retry logic
func (ts *TelegramService) testConnection() error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		_, err := ts.bot.GetMe()
		if err == nil {
			ts.logger.Info("Telegram connection successful")
			return nil
		}

		ts.logger.Warn("Telegram connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("failed to connect to Telegram after %d attempts", maxRetries)
}

// Notify sends a panel notice, e.g. the sensor-offline notice.
func (ts *TelegramService) Notify(ctx context.Context, notice models.Notice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ts.send(formatNoticeMessage(notice)); err != nil {
		return fmt.Errorf("error sending telegram notice: %w", err)
	}
	ts.logger.Info("Sent notice", zap.String("title", notice.Title))
	return nil
}

// SendAnomalyAlert sends a threshold alert, throttled per channel.
func (ts *TelegramService) SendAnomalyAlert(anomalies []*models.Anomaly, sample models.Sample) error {
	if len(anomalies) == 0 {
		return nil
	}

	ts.mu.Lock()
	if last, ok := ts.lastAlertTimes[sample.Channel]; ok && time.Since(last) < alertThrottle {
		ts.mu.Unlock()
		ts.logger.Debug("Throttling alert", zap.String("channel", string(sample.Channel)))
		return nil
	}
	ts.lastAlertTimes[sample.Channel] = time.Now()
	ts.mu.Unlock()

	if err := ts.send(formatAnomalyMessage(anomalies, sample)); err != nil {
		return fmt.Errorf("error sending telegram message: %w", err)
	}

	ts.logger.Info("Sent anomaly alert",
		zap.String("channel", string(sample.Channel)),
		zap.Int("anomaly_count", len(anomalies)))
	return nil
}

func (ts *TelegramService) send(text string) error {
	msg := tgbotapi.NewMessage(ts.chatID, text)
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true

	_, err := ts.bot.Send(msg)
	return err
}

// formatNoticeMessage renders a notice for Telegram HTML mode.
func formatNoticeMessage(notice models.Notice) string {
	var sb strings.Builder

	icon := "ℹ️"
	switch notice.Level {
	case models.NoticeError:
		icon = "🔴"
	case models.NoticeWarning:
		icon = "🟡"
	}

	sb.WriteString(fmt.Sprintf("%s <b>%s</b>\n\n", icon, html.EscapeString(notice.Title)))
	sb.WriteString(html.EscapeString(notice.Text))
	if !notice.Timestamp.IsZero() {
		sb.WriteString(fmt.Sprintf("\n\n🕐 %s", notice.Timestamp.Format("2006-01-02 15:04:05")))
	}
	return sb.String()
}

// formatAnomalyMessage creates a mobile-friendly alert message
func formatAnomalyMessage(anomalies []*models.Anomaly, sample models.Sample) string {
	var sb strings.Builder

	sb.WriteString("🚨 <b>SENSOR ALERT</b> 🚨\n\n")
	sb.WriteString(fmt.Sprintf("📡 <b>Channel:</b> %s\n", sample.Channel))
	sb.WriteString(fmt.Sprintf("📊 <b>Reading:</b> %s\n", html.EscapeString(sample.Value)))
	if !sample.Received.IsZero() {
		sb.WriteString(fmt.Sprintf("🕐 <b>Time:</b> %s\n", sample.Received.Format("2006-01-02 15:04:05")))
	}

	sb.WriteString("\n⚠️ <b>Detected Issues:</b>\n")
	for _, anomaly := range anomalies {
		sb.WriteString(fmt.Sprintf("%s %s\n", anomaly.GetAnomalyEmoji(), anomaly.Description))
	}

	return sb.String()
}
