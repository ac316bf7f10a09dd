package telemetry

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single websocket peer on a telemetry stream.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// actionMsg is the only message shape clients send.
type actionMsg struct {
	Action string `json:"action"`
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Write coalescing: batch queued frames into a single
			// websocket message with newline separators.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Printf("[telemetry] ws client disconnected from %s", c.hub.name)
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var m actionMsg
		if json.Unmarshal(msg, &m) != nil {
			continue
		}

		switch m.Action {
		case "start_feed":
			log.Printf("[telemetry] start_feed requested on %s", c.hub.name)
			c.hub.StartFeed()
		case "stop_feed":
			log.Printf("[telemetry] stop_feed requested on %s", c.hub.name)
			c.hub.StopFeed()
		}
	}
}
