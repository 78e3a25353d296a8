package services

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"go.uber.org/zap"
)

//go:embed static/*
var staticFiles embed.FS

// Publisher sends a payload to a broker topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// PanelServer serves the page, the display stream and the LED control.
type PanelServer struct {
	hub       *PanelHub
	publisher Publisher
	ledTopic  string
	logger    *zap.Logger
	server    *http.Server
}

// NewPanelServer creates the HTTP server listening on addr.
func NewPanelServer(addr string, hub *PanelHub, publisher Publisher, ledTopic string, logger *zap.Logger) *PanelServer {
	s := &PanelServer{
		hub:       hub,
		publisher: publisher,
		ledTopic:  ledTopic,
		logger:    logger,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *PanelServer) Handler() http.Handler {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	fileServer := http.FileServer(http.FS(subFS))

	mux := http.NewServeMux()
	mux.Handle("GET /", fileServer)
	mux.HandleFunc("GET /ws", s.hub.ServeWS)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/led", s.handleLED)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

func (s *PanelServer) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Snapshot())
}

type ledRequest struct {
	On *bool `json:"on"`
}

// handleLED publishes the LED command. The toggle is inert until the
// liveness gate enabled it.
func (s *PanelServer) handleLED(w http.ResponseWriter, r *http.Request) {
	if !s.hub.ToggleEnabled() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "control disabled until the sensor is online"})
		return
	}

	var req ledRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil || req.On == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": `expected {"on": true|false}`})
		return
	}

	payload := "off"
	if *req.On {
		payload = "on"
	}

	if err := s.publisher.Publish(r.Context(), s.ledTopic, []byte(payload)); err != nil {
		s.logger.Error("Failed to publish LED command",
			zap.String("topic", s.ledTopic),
			zap.String("payload", payload),
			zap.Error(err))
		status := http.StatusBadGateway
		if errors.Is(err, ErrNotConnected) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{"error": "publish failed"})
		return
	}

	s.logger.Info("LED command published", zap.String("topic", s.ledTopic), zap.String("payload", payload))
	writeJSON(w, http.StatusOK, map[string]string{"led": payload})
}

// ListenAndServe blocks until the server stops. A graceful Shutdown is not an error.
func (s *PanelServer) ListenAndServe() error {
	s.logger.Info("Panel server listening", zap.String("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes viewer streams.
func (s *PanelServer) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
