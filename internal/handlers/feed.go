package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/pixelduel/gamecore/internal/game"
	"github.com/pixelduel/gamecore/internal/middleware"
	"github.com/pixelduel/gamecore/internal/models"
	"github.com/pixelduel/gamecore/internal/realtime"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultFeedChannel is the Redis pub/sub channel carrying pixel updates.
const DefaultFeedChannel = "pixelduel:pixels"

// Feed fans accepted placements out to /ws/feed subscribers.
type Feed interface {
	Publish(ctx context.Context, data []byte) error
	Subscribe() chan []byte
	Unsubscribe(ch chan []byte)
}

// Broker is an in-process Feed.
type Broker struct {
	mu   sync.RWMutex
	subs map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan []byte]struct{})}
}

func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// Subscribers reports how many feed connections are attached.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish never blocks; slow subscribers miss updates.
func (b *Broker) Publish(_ context.Context, data []byte) error {
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- data:
		default:
		}
	}
	b.mu.RUnlock()
	return nil
}

// RedisFeed publishes through Redis so every authority process sees every placement.
type RedisFeed struct {
	rdb     *redis.Client
	channel string
	local   *Broker
	log     logrus.FieldLogger
}

func NewRedisFeed(rdb *redis.Client, channel string, log logrus.FieldLogger) *RedisFeed {
	if channel == "" {
		channel = DefaultFeedChannel
	}
	return &RedisFeed{rdb: rdb, channel: channel, local: NewBroker(), log: log}
}

func (f *RedisFeed) Publish(ctx context.Context, data []byte) error {
	if err := f.rdb.Publish(ctx, f.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish pixel update: %w", err)
	}
	return nil
}

func (f *RedisFeed) Subscribe() chan []byte     { return f.local.Subscribe() }
func (f *RedisFeed) Unsubscribe(ch chan []byte) { f.local.Unsubscribe(ch) }

// Run forwards the Redis channel to local subscribers until ctx ends.
func (f *RedisFeed) Run(ctx context.Context) error {
	sub := f.rdb.Subscribe(ctx, f.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", f.channel, err)
	}
	f.log.Infof("Subscribed to feed channel %s", f.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			f.local.Publish(ctx, []byte(msg.Payload))
		}
	}
}

func (gs *GameServer) publishPixel(ctx context.Context, g *game.Game, userID uuid.UUID, px models.Pixel, res *models.PlacementResult) {
	msg := realtime.Message{
		Type:   realtime.TypePixelUpdate,
		UserID: userID.String(),
		GameID: g.ID.String(),
		PixelPlaced: &realtime.PixelPlaced{
			X:               px.X,
			Y:               px.Y,
			Color:           px.Color,
			Timestamp:       px.Timestamp,
			PixelsPlaced:    res.PixelsPlaced,
			PixelsRemaining: res.PixelsRemaining,
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		gs.log.Errorf("Failed to marshal pixel update: %v", err)
		return
	}
	if err := gs.Feed.Publish(ctx, data); err != nil {
		gs.log.Warnf("Pixel update not published: %v", err)
	}
}

// FeedWSHandler streams every accepted placement to the client until it disconnects.
func (gs *GameServer) FeedWSHandler(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		gs.log.Warnf("Feed accept error: %v", err)
		return
	}
	defer c.CloseNow()

	ch := gs.Feed.Subscribe()
	defer gs.Feed.Unsubscribe(ch)

	// the feed is one way; CloseRead handles control frames and ends ctx on close
	ctx := c.CloseRead(r.Context())
	middleware.LogWebSocketConnect(gs.log, r)

	for {
		select {
		case <-ctx.Done():
			middleware.LogWebSocketDisconnect(gs.log, r, nil)
			return
		case data := <-ch:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				middleware.LogWebSocketDisconnect(gs.log, r, err)
				return
			}
		}
	}
}
