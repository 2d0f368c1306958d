package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	LocationChannelPrefix  = "location:share:"
	locationChannelPattern = LocationChannelPrefix + "*"

	LocationEventUpdate = "location_update"
)

// LocationEvent is the payload broadcast over Redis and WebSocket.
type LocationEvent struct {
	Type      string    `json:"type"`
	ShareID   string    `json:"share_id"`
	UserID    string    `json:"user_id,omitempty"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// LiveConn is the minimal interface the WebSocket implementation must satisfy.
type LiveConn interface {
	WriteJSON(v interface{}) error
	ReadJSON(dest interface{}) error
	Close() error
}

// PubSubClient is satisfied by *redis.Client.
type PubSubClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	PSubscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// LiveClient is one WebSocket connection and the shares it follows.
type LiveClient struct {
	ID     string
	UserID string
	conn   LiveConn

	mu      sync.RWMutex
	shares  map[string]struct{}
	writeMu sync.Mutex
}

// Send writes v to the connection. Writes are serialized per connection.
func (c *LiveClient) Send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *LiveClient) follows(shareID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.shares[shareID]
	return ok
}

// LocationHub fans live share positions out to the connections on this
// instance. Positions are published to Redis so every instance sees them;
// a single pattern subscriber per instance delivers them locally.
type LocationHub struct {
	redis PubSubClient
	log   logrus.FieldLogger

	mu      sync.RWMutex
	clients map[string]*LiveClient
	started sync.Once
}

func NewLocationHub(client PubSubClient, log logrus.FieldLogger) *LocationHub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LocationHub{
		redis:   client,
		log:     log.WithField("component", "location_hub"),
		clients: make(map[string]*LiveClient),
	}
}

func (h *LocationHub) Register(userID string, conn LiveConn) *LiveClient {
	c := &LiveClient{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		shares: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	return c
}

func (h *LocationHub) Unregister(c *LiveClient) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
}

func (h *LocationHub) Subscribe(c *LiveClient, shareID string) {
	c.mu.Lock()
	c.shares[shareID] = struct{}{}
	c.mu.Unlock()
}

func (h *LocationHub) Unsubscribe(c *LiveClient, shareID string) {
	c.mu.Lock()
	delete(c.shares, shareID)
	c.mu.Unlock()
}

// Connections returns the number of registered local connections.
func (h *LocationHub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// FanOut delivers event to every local connection following its share.
func (h *LocationHub) FanOut(event LocationEvent) int {
	if event.ShareID == "" {
		return 0
	}

	h.mu.RLock()
	targets := make([]*LiveClient, 0, len(h.clients))
	for _, c := range h.clients {
		if c.follows(event.ShareID) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if err := c.Send(event); err != nil {
			h.log.WithError(err).WithField("client", c.ID).Debug("error writing location event to websocket")
			continue
		}
		delivered++
	}
	return delivered
}

// Publish broadcasts event to all instances. Without Redis the event is
// only delivered locally.
func (h *LocationHub) Publish(ctx context.Context, event LocationEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if h.redis == nil {
		h.FanOut(event)
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, LocationChannelPrefix+event.ShareID, data).Err()
}

// Start launches the instance's Redis subscriber once. It reconnects with
// capped exponential backoff until ctx is cancelled.
func (h *LocationHub) Start(ctx context.Context) {
	if h.redis == nil {
		h.log.Warn("Redis client not initialized; location subscriber not started")
		return
	}
	h.started.Do(func() {
		go h.run(ctx)
	})
}

func (h *LocationHub) run(ctx context.Context) {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		func() {
			pubsub := h.redis.PSubscribe(ctx, locationChannelPattern)
			defer pubsub.Close()

			h.log.WithField("pattern", locationChannelPattern).Info("✅ Location Redis subscriber started")

			for {
				msg, err := pubsub.ReceiveMessage(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					h.log.WithError(err).Warn("location subscriber error")
					select {
					case <-ctx.Done():
					case <-time.After(backoff):
					}
					backoff = min(backoff*2, 30*time.Second)
					return
				}

				backoff = time.Second

				var event LocationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					h.log.WithError(err).Warn("failed to unmarshal location event")
					continue
				}
				h.FanOut(event)
			}
		}()
	}
}
