package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"inkpilot/internal/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// clientMessage is what a websocket client may send. A non-empty Content
// starts a turn in the subscribed session.
type clientMessage struct {
	Content string `json:"content"`
}

// handleEventsWebSocket streams hub events. ?session=<key> limits the stream
// to one session and lets the client submit messages to it.
func (s *Server) handleEventsWebSocket(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session != "" {
		if _, err := s.svc.Agent.Session(session); err != nil {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	updates, unsubscribe := s.hub.Subscribe(session)
	defer unsubscribe()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	// Writer goroutine: pushes hub events to the client.
	go func() {
		defer wg.Done()
		defer ws.Close()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case env, ok := <-updates:
				if !ok {
					return
				}
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := ws.WriteJSON(env); err != nil {
					s.logger.Debug("websocket write failed", "error", err)
					return
				}
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop: receives user messages.
	for {
		var msg clientMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read error", "error", err)
			}
			break
		}
		if msg.Content == "" || session == "" {
			continue
		}
		if err := s.svc.Agent.Start(context.Background(), session, msg.Content, services.TurnOptions{}); err != nil {
			s.logger.Warn("submit from websocket", "session", session, "error", err)
		}
	}

	close(done)
	wg.Wait()
}
