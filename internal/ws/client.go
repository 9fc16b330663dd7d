package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	sendBuffer = 256

	// inbound messages per second a client may send, with a small burst
	inboundRate  = 5
	inboundBurst = 10
)

const (
	// CloseAuthFailed is sent when the handshake token is rejected
	CloseAuthFailed = 4001
	// CloseForbidden is sent when the caller may not follow the requested patient
	CloseForbidden = 4003
)

// Client is one realtime connection subscribed to a single group
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	registered chan struct{}
	limiter    *rate.Limiter

	AccountID uuid.UUID
	Group     string
}

// NewClient creates a client of accountID listening to group
func NewClient(hub *Hub, conn *websocket.Conn, accountID uuid.UUID, group string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		registered: make(chan struct{}),
		limiter:    rate.NewLimiter(rate.Limit(inboundRate), inboundBurst),
		AccountID:  accountID,
		Group:      group,
	}
}

// Greet queues env ahead of anything the hub sends. It must be called
// before the client is registered.
func (c *Client) Greet(env model.WSEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.send <- data
	return nil
}

// ReadPump reads client frames until the connection closes. The only
// accepted frame is ping, answered with pong; anything else is logged and dropped.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("account_id", c.AccountID.String()).Msg("realtime read error")
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if !c.limiter.Allow() {
			log.Warn().Str("account_id", c.AccountID.String()).Msg("realtime client over inbound rate, frame dropped")
			continue
		}
		c.handle(message)
	}
}

func (c *Client) handle(message []byte) {
	var env model.WSEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		log.Warn().Err(err).Str("account_id", c.AccountID.String()).Msg("invalid realtime payload dropped")
		return
	}
	switch env.Type {
	case model.WSPing:
		c.hub.Send(c, model.WSEnvelope{Type: model.WSPong})
	default:
		log.Warn().Str("account_id", c.AccountID.String()).Str("type", env.Type).Msg("unknown realtime frame dropped")
	}
}

// WritePump writes queued envelopes to the connection, one frame each, and
// keeps it alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
