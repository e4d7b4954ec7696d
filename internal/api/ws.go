package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket bridge for schedule events. Clients send
// {"type":"subscribe","id":"1","payload":{"date":"2026-08-30"}} and receive
// {"type":"next","id":"1","payload":{...}} frames; date "all" follows every
// generation event.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsSubscribePayload struct {
	Date string `json:"date"`
}

// WSHandler handles /v1/ws
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	type sub struct {
		date string
		ch   chan SSEEvent
	}
	subs := map[string]sub{}
	defer func() {
		for _, sb := range subs {
			s.Broker.Unsubscribe(sb.date, sb.ch)
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	write := func(v any) error { return conn.WriteJSON(v) }

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			var pl wsSubscribePayload
			_ = json.Unmarshal(msg.Payload, &pl)
			if pl.Date == "" {
				pl.Date = "all"
			}
			if _, dup := subs[msg.ID]; dup || msg.ID == "" {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"subscription id missing or in use"}`)})
				continue
			}
			ch := s.Broker.Subscribe(pl.Date)
			subs[msg.ID] = sub{date: pl.Date, ch: ch}
			go func(id string, ch chan SSEEvent) {
				for evt := range ch {
					payload, _ := json.Marshal(map[string]any{"type": evt.Type, "data": evt.Data})
					if err := write(wsMessage{Type: "next", ID: id, Payload: payload}); err != nil {
						return
					}
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch)
		case "complete":
			if sb, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(sb.date, sb.ch)
				delete(subs, msg.ID)
			}
		}
	}
}
