package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"

	"sensorboard/models"
)

var (
	// ErrNotConnected is returned by session operations issued before Connect succeeded.
	ErrNotConnected = errors.New("session not connected")
)

// MessageHandler receives every inbound message of a session.
type MessageHandler interface {
	HandleMessage(msg models.Message)
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(msg models.Message)

func (f MessageHandlerFunc) HandleMessage(msg models.Message) { f(msg) }

// ConnectOptions carries everything a session needs to open the broker connection.
type ConnectOptions struct {
	Host      string
	Port      int
	Path      string
	ClientID  string
	UseSecure bool
	Username  string
	Password  string

	// OnSuccess runs once the broker accepted the session.
	OnSuccess func()
}

// Session is the messaging capability the panel consumes. Callbacks must be
// registered before Connect so no early message or error is lost.
type Session interface {
	OnConnectionLost(fn func(models.ConnectionLost))
	OnMessage(h MessageHandler)
	Connect(ctx context.Context, opts ConnectOptions) error
	Subscribe(ctx context.Context, filter string) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// SecureTransport derives the transport choice from the origin the panel is
// served under: plaintext only for the loopback name or a local file.
func SecureTransport(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return true
	}
	if strings.EqualFold(u.Scheme, "file") {
		return false
	}
	if strings.EqualFold(u.Hostname(), "localhost") {
		return false
	}
	return true
}

// BrokerPort picks the port matching the transport choice.
func BrokerPort(secure bool, securePort, plainPort int) int {
	if secure {
		return securePort
	}
	return plainPort
}

// NewClientID builds a per-process client identifier from prefix and a
// pseudo-random integer in [0, 1000). Uniqueness is best effort.
func NewClientID(prefix string, rnd *rand.Rand) string {
	var n int
	if rnd != nil {
		n = rnd.Intn(1000)
	} else {
		n = rand.Intn(1000)
	}
	return fmt.Sprintf("%s%d", prefix, n)
}
