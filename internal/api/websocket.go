package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"nextbus/internal/countdown"
	"nextbus/internal/schedule"
)

const clientSendBuffer = 64

type WSHandler struct {
	manager *countdown.Manager
	repo    RouteRepository
	prefs   PrefsStore
	logger  *slog.Logger
}

func NewWSHandler(m *countdown.Manager, repo RouteRepository, prefs PrefsStore, logger *slog.Logger) *WSHandler {
	return &WSHandler{manager: m, repo: repo, prefs: prefs, logger: logger.With("component", "ws_handler")}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SelectPayload struct {
	RouteID   string `json:"routeId"`
	Direction string `json:"direction"`
	StopIndex int    `json:"stopIndex"`
}

type outMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// initialSelection starts from the stored prefs and applies any query
// overrides. Bad overrides are ignored and a stop past the end of the
// route falls back to the first stop.
func (h *WSHandler) initialSelection(r *http.Request) countdown.Selection {
	sel := countdown.DefaultSelection()
	if h.prefs != nil {
		sel, _ = h.prefs.Load()
	}
	q := r.URL.Query()
	if v := q.Get("route"); v != "" {
		sel.RouteID = v
	}
	if d, ok := schedule.ParseDirection(q.Get("direction")); ok {
		sel.Direction = d
	}
	if n, err := strconv.Atoi(q.Get("stop")); err == nil && n >= 0 {
		sel.StopIndex = n
	}
	if errors.Is(ValidateSelection(r.Context(), h.repo, sel), ErrStopOutOfRange) {
		sel.StopIndex = 0
	}
	return sel
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sel := h.initialSelection(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := make(chan []byte, clientSendBuffer)
	session, err := h.manager.Open(ctx, sel, func(u countdown.Update) {
		enqueue(send, outMessage{Type: "update", Payload: u})
	})
	if err != nil {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer session.Close()
	h.logger.Debug("websocket client connected", "session_id", session.ID(), "route_id", sel.RouteID)

	go h.writeLoop(ctx, cancel, conn, send)
	h.readLoop(ctx, conn, session, send)
}

// enqueue drops the message when the client is not keeping up; the next
// tick carries fresher state anyway.
func enqueue(send chan<- []byte, msg outMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	select {
	case send <- data:
		return true
	default:
		return false
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *countdown.Session, send chan<- []byte) {
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "session_id", session.ID(), "error", err)
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "session_id", session.ID(), "error", err)
			continue
		}

		switch msg.Type {
		case "select":
			var payload SelectPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				enqueue(send, outMessage{Type: "error", Payload: errorResponse{Error: "invalid select payload"}})
				continue
			}
			sel, err := prefsRequest(payload).selection()
			if err == nil {
				err = ValidateSelection(ctx, h.repo, sel)
			}
			if err != nil {
				h.logger.Debug("select rejected", "session_id", session.ID(), "error", err)
				enqueue(send, outMessage{Type: "error", Payload: errorResponse{Error: selectError(err)}})
				continue
			}
			session.Select(sel)

		case "ping":
			enqueue(send, outMessage{Type: "pong"})
		}
	}
}

// selectError hides route load failures from the client.
func selectError(err error) string {
	var bad badSelectionError
	if errors.Is(err, ErrStopOutOfRange) || errors.As(err, &bad) {
		return err.Error()
	}
	return "route data unavailable"
}

func (h *WSHandler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, send <-chan []byte) {
	defer cancel()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-send:
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancelWrite()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancelPing()
			if err != nil {
				return
			}
		}
	}
}
