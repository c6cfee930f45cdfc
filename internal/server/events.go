package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/betterspeak/internal/events"
	"github.com/MrWong99/betterspeak/internal/observe"
)

// writeTimeout bounds one WebSocket message write.
const writeTimeout = 5 * time.Second

// handleEvents upgrades to a WebSocket and streams bus events as JSON text
// messages until the client disconnects or the bus closes. The optional
// "kinds" query parameter is a comma-separated filter.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var kinds []events.Kind
	if v := r.URL.Query().Get("kinds"); v != "" {
		for k := range strings.SplitSeq(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				kinds = append(kinds, events.Kind(k))
			}
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		// Accept has already written the error response.
		return
	}
	defer conn.CloseNow()

	sub := s.events.Subscribe(kinds...)
	defer sub.Close()

	log := observe.Logger(r.Context())
	log.Debug("event stream opened", "kinds", kinds)

	// Clients only listen; CloseRead handles their control frames and
	// cancels ctx when they go away.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			log.Debug("event stream closed", "dropped", sub.Dropped())
			return
		case ev, ok := <-sub.C():
			if !ok {
				conn.Close(websocket.StatusGoingAway, "event bus closed")
				return
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Debug("event stream write failed", "err", err)
				}
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
