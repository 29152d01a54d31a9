package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"propchat/internal/domain"
	"propchat/internal/events"
	"propchat/internal/observability/metrics"
	"propchat/internal/service"
)

const (
	wsIdleTimeout = 5 * time.Minute
	wsOpTimeout   = 30 * time.Second
)

// wsClient is one live websocket connection; it satisfies realtime.Conn so
// the registry can address it.
type wsClient struct {
	id uuid.UUID
	ws *wsServerConn
}

func (c *wsClient) ID() uuid.UUID { return c.id }

func (c *wsClient) Send(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(events.Envelope{Event: event, Data: raw})
	if err != nil {
		return err
	}
	return c.ws.writeFrame(opText, frame)
}

func (c *wsClient) Close() error {
	c.ws.close()
	return nil
}

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := acceptWebSocket(w, r)
	if err != nil {
		slog.Warn("ws: handshake failed", "error", err)
		return
	}
	client := &wsClient{id: uuid.New(), ws: ws}
	metrics.WSConnections.WithLabelValues().Inc()

	// Joined room, if any. The registry drops the connection on broadcast
	// failure, so re-joining after an error is the client's job.
	joined := int64(0)

	defer func() {
		if joined != 0 {
			h.registry.Leave(joined, client)
		}
		ws.close()
		metrics.WSConnections.WithLabelValues().Dec()
	}()

	for {
		opcode, payload, err := ws.readFrame(time.Now().Add(wsIdleTimeout))
		if err != nil {
			return
		}
		switch opcode {
		case opPing:
			if err := ws.writeFrame(opPong, payload); err != nil {
				return
			}
		case opPong:
			// keepalive, nothing to do
		case opClose:
			_ = ws.writeFrame(opClose, nil)
			return
		case opText, opBinary:
			h.dispatchEvent(client, &joined, payload)
		}
	}
}

// dispatchEvent decodes one protocol envelope and runs it. Invalid events
// are silently dropped on this path: the protocol has no error responses,
// failures are logged and counted instead.
func (h *Handler) dispatchEvent(client *wsClient, joined *int64, payload []byte) {
	var env events.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		slog.Warn("ws: undecodable frame", "error", err)
		metrics.WSEventsTotal.WithLabelValues("invalid", "dropped").Inc()
		return
	}

	// The connection's own lifetime must not cancel the work: a peer that
	// disconnects mid-send still gets its message persisted and fanned out.
	ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
	defer cancel()

	switch env.Event {
	case events.EventJoin:
		var ev events.Join
		if err := json.Unmarshal(env.Data, &ev); err != nil || ev.UserID <= 0 {
			metrics.WSEventsTotal.WithLabelValues(events.EventJoin, "dropped").Inc()
			return
		}
		if *joined != 0 {
			h.registry.Leave(*joined, client)
		}
		h.registry.Join(ev.UserID, client)
		*joined = ev.UserID
		metrics.WSEventsTotal.WithLabelValues(events.EventJoin, "ok").Inc()

	case events.EventSendMessage:
		var ev events.SendMessage
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			metrics.WSEventsTotal.WithLabelValues(events.EventSendMessage, "dropped").Inc()
			return
		}
		out, err := h.svc.Send(ctx, serviceSendInput(ev))
		if err != nil {
			slog.Warn("ws: send_message dropped", "error", err)
			metrics.WSEventsTotal.WithLabelValues(events.EventSendMessage, "dropped").Inc()
			return
		}
		// The service broadcast both rooms; a connection that is not in the
		// sender's room (never joined, or joined as someone else) still gets
		// its own echo.
		if *joined != ev.SenderID {
			_ = client.Send(events.EventReceiveMessage, out)
		}
		metrics.WSEventsTotal.WithLabelValues(events.EventSendMessage, "ok").Inc()

	case events.EventDeleteMessage:
		var ev events.DeleteMessage
		if err := json.Unmarshal(env.Data, &ev); err != nil || ev.MessageID <= 0 || ev.UserID <= 0 {
			metrics.WSEventsTotal.WithLabelValues(events.EventDeleteMessage, "dropped").Inc()
			return
		}
		if err := h.svc.Delete(ctx, ev.MessageID, ev.UserID); err != nil {
			slog.Warn("ws: delete_message dropped", "message_id", ev.MessageID, "error", err)
			metrics.WSEventsTotal.WithLabelValues(events.EventDeleteMessage, "dropped").Inc()
			return
		}
		metrics.WSEventsTotal.WithLabelValues(events.EventDeleteMessage, "ok").Inc()

	default:
		metrics.WSEventsTotal.WithLabelValues("unknown", "dropped").Inc()
	}
}

func serviceSendInput(ev events.SendMessage) service.SendInput {
	return service.SendInput{
		SenderID:   ev.SenderID,
		ReceiverID: ev.ReceiverID,
		Scope:      domain.ScopeFrom(ev.PropertyID),
		Body:       ev.Message,
		FileURL:    ev.FileURL,
		FileName:   ev.FileName,
	}
}
