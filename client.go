package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	conn       *websocket.Conn
	send       chan any
	correlator string
}

// newCorrelator generates the per-connection id that ties a websocket to a
// player record until the next reconnect.
func newCorrelator() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	return hex.EncodeToString(buf)
}

func serveWS(cfg *Config, h *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		correlator := newCorrelator()
		if correlator == "" {
			http.Error(w, "unable to assign connection id", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		c := &client{
			conn:       conn,
			send:       make(chan any, 8),
			correlator: correlator,
		}

		h.register(c)

		go c.writePump()
		c.readPump(h)
	}
}

func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}

		c.dispatch(h, env.Type, raw)
	}
}

// dispatch decodes the payload into the event's own struct before anything
// reaches the core; a payload that doesn't parse is dropped.
func (c *client) dispatch(h *Hub, event string, raw []byte) {
	switch event {
	case "quick_join":
		var msg quickJoinMessage
		if json.Unmarshal(raw, &msg) == nil {
			h.onQuickJoin(c, msg)
		}
	case "create_session":
		var msg createSessionMessage
		if json.Unmarshal(raw, &msg) == nil {
			h.onCreateSession(c, msg)
		}
	case "join_session":
		var msg joinSessionMessage
		if json.Unmarshal(raw, &msg) == nil {
			h.onJoinSession(c, msg)
		}
	case "toggle_visibility":
		var msg toggleVisibilityMessage
		if json.Unmarshal(raw, &msg) == nil {
			h.onToggleVisibility(c, msg)
		}
	case "set_ready":
		var msg setReadyMessage
		if json.Unmarshal(raw, &msg) == nil {
			h.onSetReady(c, msg)
		}
	case "submit_choice":
		var msg submitChoiceMessage
		if json.Unmarshal(raw, &msg) == nil {
			h.onSubmitChoice(c, msg)
		}
	case "submit_like":
		var msg submitLikeMessage
		if json.Unmarshal(raw, &msg) == nil {
			h.onSubmitLike(c, msg)
		}
	case "request_next_page":
		var msg nextPageMessage
		if json.Unmarshal(raw, &msg) == nil {
			h.onNextPage(c, msg)
		}
	case "request_podium":
		var msg podiumMessage
		if json.Unmarshal(raw, &msg) == nil {
			h.onPodium(c, msg)
		}
	case "page_loaded":
		var msg pageLoadedMessage
		if json.Unmarshal(raw, &msg) == nil {
			h.onPageLoaded(c, msg)
		}
	case "page_reload":
		var msg pageReloadMessage
		if json.Unmarshal(raw, &msg) == nil {
			h.onPageReload(c, msg)
		}
	case "quit":
		var msg quitMessage
		if json.Unmarshal(raw, &msg) == nil {
			h.onQuit(c, msg)
		}
	default:
		// ignore unknown types
	}
}

func (c *client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
