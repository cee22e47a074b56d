package visualiser

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

// WSHandler streams JSON world frames over a websocket. Query parameters
// include_objects, include_trajectory and include_monitor select sections.
func (p *Publisher) WSHandler() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	return func(rw http.ResponseWriter, r *http.Request) {
		opts, err := optionsFromQuery(r.URL.Query())
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		if !p.Running() {
			http.Error(rw, "publisher not running", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, frames := p.Subscribe("ws")
		defer p.Unsubscribe(id)

		// Reader: only needed to notice the client closing.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case frame := <-frames:
				m, err := frameMap(frame, opts)
				if err != nil {
					log.Printf("[Visualiser] encode frame %d: %v", frame.FrameID, err)
					continue
				}
				b, err := json.Marshal(m)
				if err != nil {
					log.Printf("[Visualiser] encode frame %d: %v", frame.FrameID, err)
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}
	}
}
