package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP connections to WebSocket and subscribes them to hub.
// The optional job_id query parameter limits the stream to one job. Clients
// only receive; anything they send is discarded.
func Handler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn("failed to upgrade websocket", zap.Error(err))
			return
		}
		sub := &subscriber{
			hub:   hub,
			conn:  conn,
			jobID: r.URL.Query().Get("job_id"),
			send:  make(chan []byte, sendBuffer),
		}
		if !hub.subscribe(sub) {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub stopped"), time.Now().Add(writeWait))
			conn.Close()
			return
		}
		go sub.writePump()
		go sub.readPump()
	}
}
