package services

import (
	"context"
	"errors"
	"fmt"

	"sensorboard/models"

	"go.uber.org/zap"
)

// Notifier delivers a user-facing notice.
type Notifier interface {
	Notify(ctx context.Context, notice models.Notice) error
}

// DisplayNotifier shows notices in the page dialog.
type DisplayNotifier struct {
	Display Display
}

func (n DisplayNotifier) Notify(_ context.Context, notice models.Notice) error {
	n.Display.ShowNotice(notice)
	return nil
}

// MultiNotifier fans a notice out to every sink. A failing sink does not
// stop the others.
type MultiNotifier struct {
	notifiers []Notifier
	logger    *zap.Logger
}

// NewMultiNotifier creates a fan-out notifier; nil entries are skipped.
func NewMultiNotifier(logger *zap.Logger, notifiers ...Notifier) *MultiNotifier {
	m := &MultiNotifier{logger: logger}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

func (m *MultiNotifier) Notify(ctx context.Context, notice models.Notice) error {
	var errs []error
	for i, n := range m.notifiers {
		if err := n.Notify(ctx, notice); err != nil {
			m.logger.Error("Notice sink failed",
				zap.Int("sink", i),
				zap.String("title", notice.Title),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("notifier %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
