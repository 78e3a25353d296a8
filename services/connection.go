package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"sensorboard/config"
	"sensorboard/models"

	"go.uber.org/zap"
)

// ConnectionManager owns the single broker session of the panel. It wires
// the router into the session, opens it and, once the broker accepted it,
// subscribes and arms the liveness monitor.
type ConnectionManager struct {
	session Session
	router  MessageHandler
	monitor *LivenessMonitor
	display Display
	logger  *zap.Logger

	opts   ConnectOptions
	filter string

	successOnce      sync.Once
	subscribed       chan error
	subscribeTimeout time.Duration
}

// NewConnectionManager derives the connect options from cfg.
func NewConnectionManager(cfg *config.Config, session Session, router MessageHandler, monitor *LivenessMonitor, display Display, logger *zap.Logger, rnd *rand.Rand) *ConnectionManager {
	secure := SecureTransport(cfg.PanelOrigin)
	return &ConnectionManager{
		session: session,
		router:  router,
		monitor: monitor,
		display: display,
		logger:  logger,
		opts: ConnectOptions{
			Host:      cfg.BrokerHost,
			Port:      BrokerPort(secure, cfg.BrokerSecurePort, cfg.BrokerPlainPort),
			Path:      cfg.BrokerPath,
			ClientID:  NewClientID(cfg.ClientIDPrefix, rnd),
			UseSecure: secure,
			Username:  cfg.BrokerUsername,
			Password:  cfg.BrokerPassword,
		},
		filter:           cfg.SubscribeFilter,
		subscribed:       make(chan error, 1),
		subscribeTimeout: 10 * time.Second,
	}
}

// Options returns the connect options the manager uses.
func (c *ConnectionManager) Options() ConnectOptions {
	return c.opts
}

// Start disables the toggle, registers the callbacks and opens the session.
// Callbacks are registered before Connect so nothing early is lost.
func (c *ConnectionManager) Start(ctx context.Context) error {
	c.display.SetToggle(false)

	c.session.OnConnectionLost(c.onConnectionLost)
	c.session.OnMessage(c.router)

	opts := c.opts
	opts.OnSuccess = func() { c.onConnect(ctx) }

	c.logger.Info("Opening broker session",
		zap.String("host", opts.Host),
		zap.Int("port", opts.Port),
		zap.Bool("secure", opts.UseSecure),
		zap.String("client_id", opts.ClientID))

	if err := c.session.Connect(ctx, opts); err != nil {
		return fmt.Errorf("broker session: %w", err)
	}
	return nil
}

// onConnect arms the liveness check and subscribes. The window starts at
// session success; a subscribe that never completes does not hold it up.
// A transport that reconnects calls this again; only the first call acts.
func (c *ConnectionManager) onConnect(ctx context.Context) {
	c.successOnce.Do(func() {
		c.logger.Info("Broker session established")
		c.monitor.Start()

		subCtx, cancel := context.WithTimeout(ctx, c.subscribeTimeout)
		defer cancel()
		err := c.session.Subscribe(subCtx, c.filter)
		if err != nil {
			c.logger.Error("Subscribe failed", zap.String("filter", c.filter), zap.Error(err))
		}
		c.subscribed <- err
	})
}

// Subscribed delivers the outcome of the post-connect subscription once.
func (c *ConnectionManager) Subscribed() <-chan error {
	return c.subscribed
}

// onConnectionLost only logs; there is no recovery.
func (c *ConnectionManager) onConnectionLost(lost models.ConnectionLost) {
	c.logger.Info("Broker connection lost", zap.Int("code", lost.Code))
	if lost.Code != 0 {
		c.logger.Warn("onConnectionLost",
			zap.Int("code", lost.Code),
			zap.String("message", lost.Message))
	}
}

// Publish forwards a publish through the session.
func (c *ConnectionManager) Publish(ctx context.Context, topic string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.session.Publish(ctx, topic, payload)
}

// Close closes the session and abandons a pending liveness check.
func (c *ConnectionManager) Close() error {
	c.monitor.Stop()
	return c.session.Close()
}
