package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sensorboard/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTSession is a Session backed by paho over WebSocket.
type MQTTSession struct {
	logger        *zap.Logger
	autoReconnect bool

	mu       sync.RWMutex
	client   mqtt.Client
	handler  MessageHandler
	lostFunc func(models.ConnectionLost)
}

// NewMQTTSession creates an unconnected MQTT session.
func NewMQTTSession(logger *zap.Logger, autoReconnect bool) *MQTTSession {
	return &MQTTSession{
		logger:        logger,
		autoReconnect: autoReconnect,
	}
}

func (s *MQTTSession) OnConnectionLost(fn func(models.ConnectionLost)) {
	s.mu.Lock()
	s.lostFunc = fn
	s.mu.Unlock()
}

func (s *MQTTSession) OnMessage(h MessageHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// BrokerURL returns the WebSocket URL for the given options.
func BrokerURL(opts ConnectOptions) string {
	scheme := "ws"
	if opts.UseSecure {
		scheme = "wss"
	}
	path := opts.Path
	if path != "" && path[0] != '/' {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, opts.Host, opts.Port, path)
}

// Connect builds the paho client with the registered callbacks already in
// place and opens the session. OnSuccess runs from paho's connect handler.
func (s *MQTTSession) Connect(ctx context.Context, opts ConnectOptions) error {
	brokerURL := BrokerURL(opts)

	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(brokerURL)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetUsername(opts.Username)
	clientOpts.SetPassword(opts.Password)
	clientOpts.SetKeepAlive(60 * time.Second)
	clientOpts.SetPingTimeout(10 * time.Second)
	clientOpts.SetAutoReconnect(s.autoReconnect)
	clientOpts.SetConnectRetry(false)
	clientOpts.SetCleanSession(true)

	clientOpts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		s.dispatch(msg)
	})

	clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.mu.RLock()
		fn := s.lostFunc
		s.mu.RUnlock()
		if fn == nil {
			return
		}
		lost := models.ConnectionLost{}
		if err != nil {
			lost.Code = 1
			lost.Message = err.Error()
		}
		fn(lost)
	})

	clientOpts.SetOnConnectHandler(func(_ mqtt.Client) {
		s.logger.Info("Connected to MQTT broker", zap.String("broker", brokerURL))
		if opts.OnSuccess != nil {
			opts.OnSuccess()
		}
	})

	client := mqtt.NewClient(clientOpts)
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	s.logger.Info("Connecting to MQTT broker",
		zap.String("broker", brokerURL),
		zap.String("client_id", opts.ClientID),
		zap.Bool("secure", opts.UseSecure))

	token := client.Connect()
	if err := waitToken(ctx, token); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", brokerURL, err)
	}
	return nil
}

// dispatch hands a paho message to the registered handler.
func (s *MQTTSession) dispatch(msg mqtt.Message) {
	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()
	if h == nil {
		return
	}
	h.HandleMessage(models.Message{
		Topic:    msg.Topic(),
		Payload:  string(msg.Payload()),
		Received: time.Now(),
	})
}

func (s *MQTTSession) Subscribe(ctx context.Context, filter string) error {
	client, err := s.connected()
	if err != nil {
		return err
	}
	// nil callback routes deliveries through the default publish handler.
	if err := waitToken(ctx, client.Subscribe(filter, 0, nil)); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", filter, err)
	}
	s.logger.Info("Subscribed to topic filter", zap.String("filter", filter))
	return nil
}

func (s *MQTTSession) Publish(ctx context.Context, topic string, payload []byte) error {
	client, err := s.connected()
	if err != nil {
		return err
	}
	if err := waitToken(ctx, client.Publish(topic, 0, false, payload)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (s *MQTTSession) Close() error {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()
	if client == nil {
		return nil
	}
	s.logger.Info("Disconnecting from MQTT broker")
	client.Disconnect(250)
	return nil
}

func (s *MQTTSession) connected() (mqtt.Client, error) {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()
	if client == nil || !client.IsConnectionOpen() {
		return nil, ErrNotConnected
	}
	return client, nil
}

// waitToken blocks until the token completes or ctx is done.
func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
