package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

var (
	rate       = flag.Duration("interval", time.Second, "Interval between telemetry rounds")
	mqttBroker = flag.String("broker", "ws://localhost:80/mqtt", "MQTT broker URL (tcp://, ws:// or wss://)")
	mqttUser   = flag.String("user", "", "MQTT username or token")
	mqttPass   = flag.String("pass", "", "MQTT password")
	prefix     = flag.String("prefix", "node", "Topic prefix")
	ledTopic   = flag.String("led-topic", "node/led", "Topic carrying LED commands")
	unknown    = flag.Bool("unknown", false, "Also publish an unrecognized channel each round")
)

// NodeSimulator produces readings the way the phone gateway does: one
// string payload per channel, no envelope.
type NodeSimulator struct {
	temperature float64
	humidity    float64
	battery     float64
}

func NewNodeSimulator() *NodeSimulator {
	return &NodeSimulator{
		temperature: 24.0,
		humidity:    55.0,
		battery:     100.0,
	}
}

// Next returns the readings of one round keyed by channel.
func (n *NodeSimulator) Next() map[string]string {
	n.temperature += rand.Float64()*0.6 - 0.3
	n.humidity += rand.Float64()*2.0 - 1.0
	if n.humidity < 0 {
		n.humidity = 0
	}
	if n.humidity > 100 {
		n.humidity = 100
	}
	if n.battery > 0 && rand.Float64() < 0.1 {
		n.battery--
	}

	return map[string]string{
		"temperature": fmt.Sprintf("%.1f", n.temperature),
		"humidity":    fmt.Sprintf("%.0f", n.humidity),
		"battery":     fmt.Sprintf("%.0f", n.battery),
	}
}

func main() {
	flag.Parse()

	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Node simulator started",
		zap.String("mqtt_broker", *mqttBroker),
		zap.String("prefix", *prefix),
		zap.Duration("interval", *rate),
	)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(*mqttBroker)
	opts.SetClientID(fmt.Sprintf("nodesim-%d", rand.Intn(1000)))
	opts.SetUsername(*mqttUser)
	opts.SetPassword(*mqttPass)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", *mqttBroker))
		token := client.Subscribe(*ledTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			logger.Info("LED command received",
				zap.String("topic", msg.Topic()),
				zap.String("payload", string(msg.Payload())))
		})
		if token.Wait() && token.Error() != nil {
			logger.Error("Failed to subscribe to LED topic", zap.Error(token.Error()))
		}
	}

	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	mqttClient := mqtt.NewClient(opts)
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		logger.Fatal("Failed to connect to MQTT broker", zap.Error(token.Error()))
	}
	defer mqttClient.Disconnect(250)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping simulator")
		cancel()
	}()

	sim := NewNodeSimulator()
	ticker := time.NewTicker(*rate)
	defer ticker.Stop()

	rounds := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("Simulator stopped", zap.Int("rounds", rounds))
			return

		case <-ticker.C:
			readings := sim.Next()
			if *unknown {
				readings["pressure"] = fmt.Sprintf("%.0f", 1000+rand.Float64()*20)
			}

			for channel, value := range readings {
				topic := fmt.Sprintf("%s/%s", *prefix, channel)
				token := mqttClient.Publish(topic, 0, false, value)
				if token.Wait() && token.Error() != nil {
					logger.Error("Failed to publish reading",
						zap.String("topic", topic),
						zap.Error(token.Error()))
					continue
				}
				logger.Debug("Published reading",
					zap.String("topic", topic),
					zap.String("value", value))
			}

			rounds++
			if rounds%60 == 0 {
				logger.Info("Telemetry rounds published", zap.Int("rounds", rounds))
			}
		}
	}
}
