package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/veloria/leadchat/internal/core"
)

// SocketHandler serves the websocket conversation channel. Clients join a
// conversation and send messages; each handled exchange comes back as a pair
// of message_update events.
type SocketHandler struct {
	orch *core.Orchestrator
}

func NewSocketHandler(orch *core.Orchestrator) *SocketHandler {
	return &SocketHandler{orch: orch}
}

// socketEvent is the wire format in both directions.
type socketEvent struct {
	Event     string `json:"event"`
	LeadID    string `json:"lead_id,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Printf("Failed to accept websocket: %v", err)
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "conversation ended")

	ctx := r.Context()
	var joinedLead string

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway ||
				errors.Is(err, context.Canceled) {
				return
			}
			log.Printf("Websocket read error: %v", err)
			return
		}

		var ev socketEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			h.writeEvent(ctx, ws, socketEvent{Event: "error", Message: "invalid event payload"})
			continue
		}

		switch ev.Event {
		case "join_conversation":
			if ev.LeadID == "" {
				h.writeEvent(ctx, ws, socketEvent{Event: "error", Message: "lead_id is required"})
				continue
			}
			joinedLead = ev.LeadID
			h.writeEvent(ctx, ws, socketEvent{Event: "joined", LeadID: joinedLead})

		case "send_message":
			leadID := ev.LeadID
			if leadID == "" {
				leadID = joinedLead
			}
			if leadID == "" || ev.Message == "" {
				h.writeEvent(ctx, ws, socketEvent{Event: "error", Message: "lead_id and message are required"})
				continue
			}

			reply, err := h.orch.HandleMessage(ctx, leadID, ev.Message)
			if err != nil {
				if errors.Is(err, core.ErrLeadNotFound) {
					h.writeEvent(ctx, ws, socketEvent{Event: "error", LeadID: leadID, Message: "lead not found"})
					continue
				}
				log.Printf("Websocket message failed for lead %s: %v", leadID, err)
				h.writeEvent(ctx, ws, socketEvent{Event: "error", LeadID: leadID, Message: "failed to process message"})
				continue
			}

			now := time.Now().UTC().Format(time.RFC3339)
			h.writeEvent(ctx, ws, socketEvent{Event: "message_update", LeadID: leadID, Sender: "user", Message: ev.Message, Timestamp: now})
			h.writeEvent(ctx, ws, socketEvent{Event: "message_update", LeadID: leadID, Sender: "model", Message: reply.Text, Timestamp: now})

		default:
			h.writeEvent(ctx, ws, socketEvent{Event: "error", Message: "unknown event: " + ev.Event})
		}
	}
}

func (h *SocketHandler) writeEvent(ctx context.Context, ws *websocket.Conn, ev socketEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Failed to marshal websocket event: %v", err)
		return
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		log.Printf("Websocket write error: %v", err)
	}
}
