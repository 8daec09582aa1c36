package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"offerkiosk/core/events"
	"offerkiosk/core/types"
	"offerkiosk/observability"
)

const (
	wsWriteTimeout = 10 * time.Second
)

// EventStream is the live event source behind /ws/events.
type EventStream interface {
	Subscribe() (<-chan events.Event, func())
}

// SetEventStream enables the websocket endpoint.
func (s *Server) SetEventStream(stream EventStream) { s.stream = stream }

// handleEventsWS streams committed kiosk events as JSON text frames. The
// optional kioskId query parameter narrows the stream to one kiosk.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	if !s.allowSource(s.clientSource(r), s.now()) {
		observability.RPC().RecordThrottle("rate_limit")
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	filter := ""
	if raw := strings.TrimSpace(r.URL.Query().Get("kioskId")); raw != "" {
		id, err := parseHash32(raw)
		if err != nil {
			http.Error(w, "invalid kioskId", http.StatusBadRequest)
			return
		}
		filter = strings.TrimPrefix(hexID(id), "0x")
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, kioskFilter string) error {
	updates, cancel := s.stream.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			carrier, ok := evt.(interface{ Event() *types.Event })
			if !ok || carrier.Event() == nil {
				continue
			}
			wire := carrier.Event()
			if kioskFilter != "" && wire.Attributes["kioskId"] != kioskFilter {
				continue
			}
			if err := writeStreamEvent(ctx, conn, wire); err != nil {
				return err
			}
		}
	}
}

func writeStreamEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(struct {
		Type       string            `json:"type"`
		Attributes map[string]string `json:"attributes"`
	}{Type: evt.Type, Attributes: evt.Attributes})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
