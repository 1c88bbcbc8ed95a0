package handlers

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"minesweeper-rewards/internal/middleware"
	"minesweeper-rewards/internal/models"
	"minesweeper-rewards/internal/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	MessageEvent   = "EVENT"
	MessageBalance = "BALANCE_UPDATE"
	MessagePing    = "PING"
	MessagePong    = "PONG"

	clientBuffer = 32
	writeTimeout = 5 * time.Second
)

type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type Client struct {
	Player common.Address
	Conn   *websocket.Conn
	send   chan *Message
	done   chan struct{}
}

// WebSocketHub fans committed engine events out to the connections of the
// players they concern. It implements services.EventSink; Publish never
// blocks the engine.
type WebSocketHub struct {
	clients    map[common.Address]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *models.Event
	log        *logrus.Entry
}

func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[common.Address]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *models.Event, 256),
		log:        logrus.WithField("component", "websocket"),
	}
}

var _ services.EventSink = (*WebSocketHub)(nil)

func (hub *WebSocketHub) Publish(evt *models.Event) {
	select {
	case hub.broadcast <- evt:
	default:
		hub.log.WithField("event_id", evt.ID).Warn("Broadcast queue full, dropping event")
	}
}

func (hub *WebSocketHub) Run() {
	for {
		select {
		case client := <-hub.register:
			if hub.clients[client.Player] == nil {
				hub.clients[client.Player] = make(map[*Client]struct{})
			}
			hub.clients[client.Player][client] = struct{}{}
			hub.log.WithField("player", client.Player.Hex()).Debug("Client registered")

		case client := <-hub.unregister:
			hub.remove(client)

		case evt := <-hub.broadcast:
			hub.deliver(evt)
		}
	}
}

func (hub *WebSocketHub) remove(client *Client) {
	conns, ok := hub.clients[client.Player]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(hub.clients, client.Player)
	}
	hub.log.WithField("player", client.Player.Hex()).Debug("Client unregistered")
}

// deliver sends an event to every connection whose player it concerns. Slow
// clients are dropped rather than allowed to stall the hub.
func (hub *WebSocketHub) deliver(evt *models.Event) {
	players := lo.Filter(lo.Keys(hub.clients), func(p common.Address, _ int) bool {
		return evt.Concerns(p)
	})
	msg := &Message{Type: MessageEvent, Data: evt}
	for _, p := range players {
		for client := range hub.clients[p] {
			select {
			case client.send <- msg:
			default:
				hub.remove(client)
				client.Conn.Close()
			}
		}
	}
}

type WebSocketHandler struct {
	engine *services.Engine
	hub    *WebSocketHub
}

func NewWebSocketHandler(engine *services.Engine, hub *WebSocketHub) *WebSocketHandler {
	return &WebSocketHandler{
		engine: engine,
		hub:    hub,
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	player, ok := middleware.Player(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.log.WithError(err).Warn("Failed to upgrade to WebSocket")
		return
	}

	client := &Client{
		Player: player,
		Conn:   conn,
		send:   make(chan *Message, clientBuffer),
		done:   make(chan struct{}),
	}

	h.hub.register <- client
	go h.writePump(client)

	defer func() {
		h.hub.unregister <- client
		close(client.done)
		conn.Close()
	}()

	h.trySend(client, &Message{Type: MessageBalance, Data: h.engine.Balance(player)})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.hub.log.WithError(err).WithField("player", player.Hex()).Warn("WebSocket error")
			}
			break
		}

		h.handleMessage(client, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(client *Client, msg *Message) {
	switch msg.Type {
	case MessagePing:
		h.trySend(client, &Message{Type: MessagePong, Data: gin.H{"timestamp": time.Now().Unix()}})
	case MessageBalance:
		h.trySend(client, &Message{Type: MessageBalance, Data: h.engine.Balance(client.Player)})
	}
}

func (h *WebSocketHandler) trySend(client *Client, msg *Message) {
	select {
	case client.send <- msg:
	default:
	}
}

// writePump is the only writer on the connection.
func (h *WebSocketHandler) writePump(client *Client) {
	for {
		select {
		case msg := <-client.send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.Conn.WriteJSON(msg); err != nil {
				client.Conn.Close()
				return
			}
		case <-client.done:
			return
		}
	}
}
