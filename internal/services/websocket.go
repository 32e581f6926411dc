package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/chachabrian/evvalet-backend/internal/models"
	"github.com/chachabrian/evvalet-backend/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one websocket connection watching a set of topics.
type Client struct {
	Actor  models.Actor
	Topics []models.Topic
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub

	cancel context.CancelFunc
}

// Hub tracks connected clients and bridges broadcaster topics to them.
type Hub struct {
	bus        Broadcaster
	log        logrus.FieldLogger
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
}

func NewHub(bus Broadcaster, log logrus.FieldLogger) *Hub {
	return &Hub{
		bus:        bus,
		log:        log,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processes registrations until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			observability.WebsocketClients.Inc()
			h.log.WithFields(logrus.Fields{"user_id": client.Actor.ID, "topics": client.Topics}).Info("websocket client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.cancel()
				observability.WebsocketClients.Dec()
			}
			h.mutex.Unlock()
			h.log.WithField("user_id", client.Actor.ID).Info("websocket client disconnected")

		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.cancel()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return
		}
	}
}

// GetConnectedClients returns the number of connected clients
func (h *Hub) GetConnectedClients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Serve upgrades the request and streams every event on topics to the
// connection until either side goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, actor models.Actor, topics []models.Topic) {
	ctx, cancel := context.WithCancel(context.Background())

	streams := make([]<-chan models.Event, 0, len(topics))
	for _, t := range topics {
		ch, err := h.bus.Subscribe(ctx, t)
		if err != nil {
			cancel()
			h.log.WithError(err).WithField("topic", t).Error("websocket subscribe failed")
			http.Error(w, "subscription failed", http.StatusServiceUnavailable)
			return
		}
		streams = append(streams, ch)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &Client{
		Actor:  actor,
		Topics: topics,
		Conn:   conn,
		Send:   make(chan []byte, subscriberBuffer),
		Hub:    h,
		cancel: cancel,
	}
	select {
	case h.register <- client:
	case <-h.done:
		cancel()
		conn.Close()
		return
	}

	var wg sync.WaitGroup
	for _, ch := range streams {
		wg.Add(1)
		go func(ch <-chan models.Event) {
			defer wg.Done()
			client.forward(ch)
		}(ch)
	}
	go func() {
		wg.Wait()
		close(client.Send)
	}()

	go client.writePump()
	go client.readPump()
}

// forward encodes events from one subscription onto the send queue, skipping
// those the client's actor may not see.
func (c *Client) forward(events <-chan models.Event) {
	for e := range events {
		if !e.VisibleTo(c.Actor) {
			continue
		}
		data, err := json.Marshal(e)
		if err != nil {
			c.Hub.log.WithError(err).WithField("event", e.Type).Error("error marshaling event")
			continue
		}
		select {
		case c.Send <- data:
		default:
			c.Hub.log.WithField("user_id", c.Actor.ID).Warn("could not send to client (channel full)")
		}
	}
}

// readPump only watches for the peer closing; clients do not send commands.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.WithError(err).Warn("websocket read error")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.log.WithError(err).Warn("websocket write error")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
