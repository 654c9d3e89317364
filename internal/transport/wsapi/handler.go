// Package wsapi exposes the engine's async step-callback surface over
// gorilla/websocket: a long-running service executing a step out of
// band connects once, then pushes a step.result message per completed
// step instead of polling the REST resume endpoint. Inbound messages
// are queued and drained by a single goroutine so concurrent
// connections can never reorder callbacks for the same saga.
package wsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"

	"github.com/katalystsys/sagaflow/internal/engine"
	"github.com/katalystsys/sagaflow/internal/logging"
	"github.com/katalystsys/sagaflow/internal/stepresult"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type inboundMessage struct {
	Type string `json:"type"`
	CallbackMessage
}

type ackMessage struct {
	Type   string `json:"type"`
	StepID string `json:"stepId"`
	Error  string `json:"error,omitempty"`
}

// Hub tracks live connections and owns the callback queue feeding the
// engine. Connections are only needed to ack back to the sender; the
// queue itself doesn't care which connection a message came from.
type Hub struct {
	eng      *engine.Engine
	logStore *logging.LogStore
	queue    *EventQueue

	mu    sync.RWMutex
	conns map[string]*websocket.Conn
}

// NewHub wires a Hub around an engine and starts its queue processor.
func NewHub(eng *engine.Engine, logStore *logging.LogStore, queueSize int) *Hub {
	h := &Hub{
		eng:      eng,
		logStore: logStore,
		queue:    NewEventQueue(queueSize),
		conns:    map[string]*websocket.Conn{},
	}
	h.queue.StartProcessor(h.process)
	return h
}

// Close shuts down the queue processor. It does not close live
// connections; each one is closed when its read loop ends.
func (h *Hub) Close() { h.queue.Close() }

// HandleConnect upgrades the request and runs the connection's read
// loop until it disconnects.
func (h *Hub) HandleConnect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logStore.LogAndStore("warning", "wsapi: upgrade failed: %v", err)
			return
		}

		connID := uuid.NewString()
		h.mu.Lock()
		h.conns[connID] = conn
		h.mu.Unlock()

		defer func() {
			h.mu.Lock()
			delete(h.conns, connID)
			h.mu.Unlock()
			_ = conn.Close()
		}()

		h.readLoop(connID, conn)
	}
}

func (h *Hub) readLoop(connID string, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.sendAck(conn, ackMessage{Type: "ack", Error: "malformed message: " + err.Error()})
			continue
		}

		if msg.Type != "step.result" {
			h.sendAck(conn, ackMessage{Type: "ack", Error: "unknown message type " + msg.Type})
			continue
		}
		if msg.OrderID == "" || msg.StepID == "" {
			h.sendAck(conn, ackMessage{Type: "ack", Error: "orderId and stepId are required"})
			continue
		}

		if h.queue.Enqueue(connID, msg.CallbackMessage) {
			h.sendAck(conn, ackMessage{Type: "ack", StepID: msg.StepID})
		} else {
			h.sendAck(conn, ackMessage{Type: "ack", StepID: msg.StepID, Error: "queue full, retry"})
		}
	}
}

func (h *Hub) sendAck(conn *websocket.Conn, ack ackMessage) {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = conn.WriteJSON(ack)
}

func (h *Hub) process(connID string, msg CallbackMessage) {
	result := toResult(msg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := h.eng.Resume(ctx, engine.ResumeCommand{
		OrderID:        msg.OrderID,
		StepID:         msg.StepID,
		CallbackResult: &result,
		Source:         "websocket",
	})
	if err != nil {
		h.logStore.LogAndStore("error", "wsapi: resume failed for saga %s step %s: %v", msg.OrderID, msg.StepID, err)
	}
}

func toResult(msg CallbackMessage) stepresult.Result {
	switch msg.Status {
	case "SUCCEEDED":
		return stepresult.Succeeded(msg.ExternalRefID, msg.Metadata)
	case "REJECTED":
		return stepresult.Rejected(msg.ErrorCode, msg.ErrorMessage)
	default:
		return stepresult.Failed(msg.ErrorCode, msg.ErrorMessage)
	}
}
