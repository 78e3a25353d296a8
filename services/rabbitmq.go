package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"sensorboard/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPSession is a Session that reads broker topics through RabbitMQ's MQTT
// plugin exchange. Topic filters become routing-key bindings on a private queue.
type AMQPSession struct {
	url      string
	exchange string
	queue    string
	logger   *zap.Logger

	mu        sync.RWMutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	handler   MessageHandler
	lostFunc  func(models.ConnectionLost)
	isClosing bool
	cancel    context.CancelFunc
}

// NewAMQPSession creates an unconnected RabbitMQ session.
func NewAMQPSession(url, exchange, queue string, logger *zap.Logger) *AMQPSession {
	return &AMQPSession{
		url:      url,
		exchange: exchange,
		queue:    queue,
		logger:   logger,
	}
}

// TopicToRoutingKey translates an MQTT topic or filter to its AMQP form.
func TopicToRoutingKey(topic string) string {
	segments := strings.Split(topic, "/")
	for i, seg := range segments {
		switch seg {
		case "+":
			segments[i] = "*"
		default:
			segments[i] = strings.ReplaceAll(seg, ".", "/")
		}
	}
	return strings.Join(segments, ".")
}

// RoutingKeyToTopic translates a routing key back to an MQTT topic.
func RoutingKeyToTopic(key string) string {
	segments := strings.Split(key, ".")
	for i, seg := range segments {
		segments[i] = strings.ReplaceAll(seg, "/", ".")
	}
	return strings.Join(segments, "/")
}

func (r *AMQPSession) OnConnectionLost(fn func(models.ConnectionLost)) {
	r.mu.Lock()
	r.lostFunc = fn
	r.mu.Unlock()
}

func (r *AMQPSession) OnMessage(h MessageHandler) {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
}

// Connect dials RabbitMQ, declares the queue and starts consuming. The
// broker host/port in opts are not used; the AMQP URL carries them.
func (r *AMQPSession) Connect(ctx context.Context, opts ConnectOptions) error {
	r.logger.Info("Connecting to RabbitMQ", zap.String("exchange", r.exchange), zap.String("queue", r.queue))

	conn, err := amqp.DialConfig(r.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Properties: amqp.Table{
			"connection_name": opts.ClientID,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	// Set QoS (prefetch count)
	if err := channel.Qos(10, 0, false); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	// Exclusive auto-delete queue: one per panel process, like an MQTT clean session.
	queue, err := channel.QueueDeclare(
		r.queue+"."+opts.ClientID, // name
		false,                     // durable
		true,                      // delete when unused
		true,                      // exclusive
		false,                     // no-wait
		nil,                       // arguments
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	r.logger.Info("Queue declared", zap.String("queue", queue.Name))

	msgs, err := channel.Consume(
		queue.Name,    // queue
		opts.ClientID, // consumer tag
		true,          // auto-ack
		true,          // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	consumeCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.conn = conn
	r.channel = channel
	r.queue = queue.Name
	r.cancel = cancel
	r.mu.Unlock()

	go r.watchClose(conn.NotifyClose(make(chan *amqp.Error, 1)))
	go r.consume(consumeCtx, msgs)

	r.logger.Info("Connected to RabbitMQ successfully")

	if opts.OnSuccess != nil {
		opts.OnSuccess()
	}
	return nil
}

// watchClose reports an unsolicited connection close. No reconnect is attempted.
func (r *AMQPSession) watchClose(closed <-chan *amqp.Error) {
	closeErr, ok := <-closed

	r.mu.RLock()
	closing := r.isClosing
	fn := r.lostFunc
	r.mu.RUnlock()

	if closing {
		r.logger.Info("RabbitMQ connection closed gracefully")
		return
	}
	if fn == nil {
		return
	}

	lost := models.ConnectionLost{}
	if ok && closeErr != nil {
		lost.Code = closeErr.Code
		lost.Message = closeErr.Reason
	}
	fn(lost)
}

func (r *AMQPSession) consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				r.logger.Debug("RabbitMQ delivery channel closed")
				return
			}

			r.mu.RLock()
			h := r.handler
			r.mu.RUnlock()
			if h == nil {
				continue
			}

			received := msg.Timestamp
			if received.IsZero() {
				received = time.Now()
			}
			h.HandleMessage(models.Message{
				Topic:    RoutingKeyToTopic(msg.RoutingKey),
				Payload:  string(msg.Body),
				Received: received,
			})
		}
	}
}

// Subscribe binds the session queue to the exchange for the filter.
func (r *AMQPSession) Subscribe(ctx context.Context, filter string) error {
	r.mu.RLock()
	channel := r.channel
	queue := r.queue
	r.mu.RUnlock()
	if channel == nil {
		return ErrNotConnected
	}

	key := TopicToRoutingKey(filter)
	if err := channel.QueueBind(queue, key, r.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	r.logger.Info("Queue bound to exchange",
		zap.String("queue", queue),
		zap.String("exchange", r.exchange),
		zap.String("routing_key", key))
	return nil
}

// Publish sends payload to topic through the exchange.
func (r *AMQPSession) Publish(ctx context.Context, topic string, payload []byte) error {
	r.mu.RLock()
	channel := r.channel
	r.mu.RUnlock()
	if channel == nil {
		return ErrNotConnected
	}

	err := channel.PublishWithContext(ctx,
		r.exchange,               // exchange
		TopicToRoutingKey(topic), // routing key
		false,                    // mandatory
		false,                    // immediate
		amqp.Publishing{
			ContentType: "text/plain",
			Body:        payload,
			Timestamp:   time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	r.logger.Debug("Published to RabbitMQ", zap.String("topic", topic))
	return nil
}

// Close gracefully closes RabbitMQ connection
func (r *AMQPSession) Close() error {
	r.mu.Lock()
	r.isClosing = true
	channel := r.channel
	conn := r.conn
	cancel := r.cancel
	r.mu.Unlock()

	r.logger.Info("Closing RabbitMQ connection")

	if cancel != nil {
		cancel()
	}

	if channel != nil {
		if err := channel.Close(); err != nil {
			r.logger.Error("Error closing channel", zap.Error(err))
		}
	}

	if conn != nil {
		if err := conn.Close(); err != nil {
			r.logger.Error("Error closing connection", zap.Error(err))
			return err
		}
	}

	r.logger.Info("RabbitMQ connection closed")
	return nil
}
