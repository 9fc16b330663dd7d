package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/metrics"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisChannel = "glycopilot:realtime"

// GroupName is the realtime group of an account's readings
func GroupName(accountID uuid.UUID) string {
	return "reading_user_" + accountID.String()
}

// Hub manages realtime subscribers grouped by account. With Redis configured,
// group sends go through Pub/Sub so every instance delivers to its own clients.
type Hub struct {
	// group name -> set of client connections
	groups map[string]map[*Client]struct{}
	mu     sync.RWMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// Redis client for Pub/Sub, nil on a single instance
	rdb *redis.Client
}

// NewHub creates a hub. rdb may be nil.
func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		groups:     make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		rdb:        rdb,
	}
}

// Run starts the hub's main event loop
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeRedis(ctx)
	}

	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// Register adds a client to its group and returns once it receives group
// sends. It reports false when the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		<-client.registered
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client. Unregistering twice is a no-op.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Send queues env for one client only, dropping it if the client is gone or busy
func (h *Hub) Send(client *Client, env model.WSEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("type", env.Type).Msg("failed to marshal realtime envelope")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.groups[client.Group][client]; !ok {
		return
	}
	select {
	case client.send <- data:
	default:
		log.Warn().Str("account_id", client.AccountID.String()).Str("type", env.Type).Msg("realtime client buffer full, envelope dropped")
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.groups[client.Group]; !ok {
		h.groups[client.Group] = make(map[*Client]struct{})
	}
	h.groups[client.Group][client] = struct{}{}
	size := len(h.groups[client.Group])
	h.mu.Unlock()

	close(client.registered)
	metrics.RealtimeConnections.Inc()
	log.Info().
		Str("account_id", client.AccountID.String()).
		Str("group", client.Group).
		Int("group_size", size).
		Msg("realtime client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.detach(client) {
		log.Info().
			Str("account_id", client.AccountID.String()).
			Str("group", client.Group).
			Msg("realtime client disconnected")
	}
}

// detach drops client from its group and closes its send channel. The
// caller holds h.mu. It reports false when the client was already gone.
func (h *Hub) detach(client *Client) bool {
	clients, ok := h.groups[client.Group]
	if !ok {
		return false
	}
	if _, ok := clients[client]; !ok {
		return false
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.groups, client.Group)
	}
	close(client.send)
	metrics.RealtimeConnections.Dec()
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.groups {
		for client := range clients {
			h.detach(client)
		}
	}
}

// GroupSend delivers env to every subscriber of group, on every instance.
// It never blocks on a subscriber and never returns an error.
func (h *Hub) GroupSend(ctx context.Context, group string, env model.WSEnvelope) {
	metrics.RealtimeEnvelopes.WithLabelValues(env.Type).Inc()
	if h.rdb == nil {
		h.sendToLocalGroup(group, env)
		return
	}
	h.publishToRedis(ctx, &TargetedEvent{Group: group, Envelope: env})
}

// GroupSize returns the number of local subscribers of group
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// sendToLocalGroup hands env to the group's clients on this instance. A
// client whose buffer is full is disconnected rather than waited for.
func (h *Hub) sendToLocalGroup(group string, env model.WSEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("type", env.Type).Msg("failed to marshal realtime envelope")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.groups[group] {
		select {
		case client.send <- data:
		default:
			metrics.RealtimeDropped.Inc()
			log.Warn().Str("account_id", client.AccountID.String()).Str("group", group).Msg("realtime client too slow, disconnecting")
			h.detach(client)
		}
	}
}

// ========== Redis Pub/Sub for Horizontal Scaling ==========

// TargetedEvent wraps an envelope with its target group for Redis Pub/Sub
type TargetedEvent struct {
	Group    string           `json:"group"`
	Envelope model.WSEnvelope `json:"envelope"`
}

func (h *Hub) publishToRedis(ctx context.Context, event *TargetedEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal realtime event for redis")
		return
	}
	if err := h.rdb.Publish(ctx, redisChannel, data).Err(); err != nil {
		log.Error().Err(err).Str("group", event.Group).Msg("failed to publish realtime event")
	}
}

// subscribeRedis delivers events published by any instance to local clients
func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	log.Info().Str("channel", redisChannel).Msg("realtime redis subscriber started")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var targeted TargetedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &targeted); err != nil {
				log.Error().Err(err).Msg("invalid realtime event from redis")
				continue
			}
			if targeted.Group != "" {
				h.sendToLocalGroup(targeted.Group, targeted.Envelope)
			}
		}
	}
}
