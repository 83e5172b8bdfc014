package httpapi

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/fanout"
	"github.com/davifernan/bayrol-pool-api/internal/registry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler upgrades live-subscriber connections and attaches them to the
// fanout hub for one device.
type WSHandler struct {
	registry *registry.Registry
	fanout   *fanout.Fanout
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWSHandler creates a WebSocket handler.
func NewWSHandler(reg *registry.Registry, fan *fanout.Fanout, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		registry: reg,
		fanout:   fan,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// API keys gate access; origins do not.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

const wsPrefix = "/api/v1/ws/"

// ServeHTTP handles GET /api/v1/ws/{deviceID}. The client authenticates
// with the api_key query parameter.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := strings.Trim(strings.TrimPrefix(r.URL.Path, wsPrefix), "/")
	if deviceID == "" || strings.Contains(deviceID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	// Reject before upgrading so the client gets a proper status code.
	snap, err := h.registry.Snapshot(deviceID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	sink := fanout.NewWSSink(conn)

	// Prime the subscriber with current state before live updates start.
	if err := h.sendSnapshot(sink, deviceID, snap); err != nil {
		conn.Close()
		return
	}

	h.fanout.Subscribe(deviceID, sink)
	h.logger.Info("Live subscriber attached", zap.String("device_id", deviceID))

	// Inbound frames are ignored; the read loop only detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.fanout.Unsubscribe(deviceID, sink)
	conn.Close()
	h.logger.Info("Live subscriber detached", zap.String("device_id", deviceID))
}

func (h *WSHandler) sendSnapshot(sink *fanout.WSSink, deviceID string, snap registry.LiveDevice) error {
	if err := sink.Send(fanout.Envelope{
		Type:      fanout.MessageConnectionStatus,
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		Data:      map[string]bool{"connected": snap.Connected},
	}); err != nil {
		return err
	}

	// Stable ordering keeps clients simple to test against.
	ids := make([]string, 0, len(snap.Sensors))
	for id := range snap.Sensors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		reading := snap.Sensors[id]
		if err := sink.Send(fanout.Envelope{
			Type:      fanout.MessageSensorUpdate,
			DeviceID:  deviceID,
			Timestamp: reading.UpdatedAt,
			Data:      reading,
		}); err != nil {
			return err
		}
	}
	return nil
}
