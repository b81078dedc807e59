package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pairchat/pairchat/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	feedWriteWait = 10 * time.Second
	feedPingEvery = 30 * time.Second
)

// conversationEvents upgrades to a websocket and streams the conversation's
// mutation events as JSON. This is the push half of every list endpoint: a
// client re-fetches the list it cares about when a relevant event arrives.
// Feeds are independent of each other and carry no cross-feed ordering.
func (a *API) conversationEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.identity(w, r); !ok {
		return
	}

	conversationID := r.PathValue("conversationID")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.Error("Could not upgrade websocket", "error", err.Error())
		return
	}

	ch, cancel := a.Hub.Subscribe(conversationID)
	metrics.LiveFeeds.Inc()
	defer func() {
		cancel()
		metrics.LiveFeeds.Dec()
		conn.Close()
	}()

	// Reader goroutine only watches for the peer closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(feedPingEvery)
	defer ping.Stop()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
