package services

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"sensorboard/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	viewerBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
)

// viewer is one connected page.
type viewer struct {
	id     string
	conn   *websocket.Conn
	events chan []byte
	once   sync.Once
}

func (v *viewer) close() {
	v.once.Do(func() {
		close(v.events)
	})
}

// PanelHub implements Display. It keeps the current page state and pushes
// every change to connected pages over WebSocket.
type PanelHub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader
	liveness func() models.LivenessState

	mu            sync.RWMutex
	texts         map[string]string
	pulsing       map[string]bool
	toggleEnabled bool
	notice        *models.Notice
	viewers       map[string]*viewer
}

// NewPanelHub creates an empty hub with the toggle disabled.
func NewPanelHub(logger *zap.Logger) *PanelHub {
	return &PanelHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		texts:   make(map[string]string),
		pulsing: make(map[string]bool),
		viewers: make(map[string]*viewer),
	}
}

// SetLivenessSource lets snapshots report the gate state.
func (h *PanelHub) SetLivenessSource(fn func() models.LivenessState) {
	h.mu.Lock()
	h.liveness = fn
	h.mu.Unlock()
}

func (h *PanelHub) SetText(elementID, text string) {
	h.mu.Lock()
	h.texts[elementID] = text
	h.mu.Unlock()

	h.broadcast(models.DisplayEvent{Type: models.EventText, Element: elementID, Text: text})
}

// SetPulse records the last pulse state of the element, the same state
// connected viewers hold after applying the event.
func (h *PanelHub) SetPulse(elementID string, active bool) {
	h.mu.Lock()
	if active {
		h.pulsing[elementID] = true
	} else {
		delete(h.pulsing, elementID)
	}
	h.mu.Unlock()

	h.broadcast(models.DisplayEvent{Type: models.EventPulse, Element: elementID, Active: active})
}

func (h *PanelHub) SetToggle(enabled bool) {
	h.mu.Lock()
	h.toggleEnabled = enabled
	h.mu.Unlock()

	h.broadcast(models.DisplayEvent{Type: models.EventToggle, Enabled: enabled})
}

func (h *PanelHub) ShowNotice(notice models.Notice) {
	h.mu.Lock()
	h.notice = &notice
	h.mu.Unlock()

	h.broadcast(models.DisplayEvent{Type: models.EventNotice, Notice: &notice})
}

// ToggleEnabled reports whether the LED toggle is currently usable.
func (h *PanelHub) ToggleEnabled() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.toggleEnabled
}

// Snapshot returns a copy of the current display state.
func (h *PanelHub) Snapshot() models.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotLocked()
}

func (h *PanelHub) snapshotLocked() models.Snapshot {
	snap := models.Snapshot{
		Texts:         make(map[string]string, len(h.texts)),
		Pulsing:       make(map[string]bool, len(h.pulsing)),
		ToggleEnabled: h.toggleEnabled,
		Liveness:      models.LivenessPending,
	}
	for k, v := range h.texts {
		snap.Texts[k] = v
	}
	for k := range h.pulsing {
		snap.Pulsing[k] = true
	}
	if h.notice != nil {
		n := *h.notice
		snap.Notice = &n
	}
	if h.liveness != nil {
		snap.Liveness = h.liveness()
	}
	return snap
}

// ViewerCount returns the number of connected pages.
func (h *PanelHub) ViewerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// broadcast queues the event for every viewer. A viewer whose buffer is
// full is dropped instead of stalling the router.
func (h *PanelHub) broadcast(event models.DisplayEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal display event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, v := range h.viewers {
		select {
		case v.events <- data:
		default:
			h.logger.Warn("Dropping slow viewer", zap.String("viewer_id", id))
			delete(h.viewers, id)
			v.close()
		}
	}
}

// ServeWS upgrades the request and streams display events until the page
// goes away. The first frame is a full snapshot.
func (h *PanelHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	v := &viewer{
		id:     uuid.NewString(),
		conn:   conn,
		events: make(chan []byte, viewerBuffer),
	}

	// Snapshot and registration happen under one lock so no event slips between them.
	h.mu.Lock()
	snap := h.snapshotLocked()
	data, err := json.Marshal(models.DisplayEvent{Type: models.EventSnapshot, Snapshot: &snap})
	if err != nil {
		h.mu.Unlock()
		h.logger.Error("Failed to marshal snapshot", zap.Error(err))
		conn.Close()
		return
	}
	v.events <- data
	h.viewers[v.id] = v
	h.mu.Unlock()

	h.logger.Info("Viewer connected",
		zap.String("viewer_id", v.id),
		zap.String("remote_addr", r.RemoteAddr))

	go h.writePump(v)
	h.readPump(v)
}

// readPump discards inbound frames and detects closed pages.
func (h *PanelHub) readPump(v *viewer) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.viewers[v.id]; ok {
			delete(h.viewers, v.id)
			v.close()
		}
		h.mu.Unlock()
		h.logger.Info("Viewer disconnected", zap.String("viewer_id", v.id))
	}()

	v.conn.SetReadLimit(512)
	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("Viewer read error", zap.String("viewer_id", v.id), zap.Error(err))
			}
			return
		}
	}
}

func (h *PanelHub) writePump(v *viewer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case data, ok := <-v.events:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every viewer.
func (h *PanelHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, v := range h.viewers {
		delete(h.viewers, id)
		v.close()
	}
}
