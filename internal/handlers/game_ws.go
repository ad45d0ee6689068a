// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pixelduel/gamecore/internal/game"
	"github.com/pixelduel/gamecore/internal/middleware"
	"github.com/pixelduel/gamecore/internal/models"
	"github.com/pixelduel/gamecore/internal/realtime"
	"github.com/sirupsen/logrus"
)

const (
	peerBuffer   = 32
	writeTimeout = 5 * time.Second
)

// Relay tracks the open game connections, at most one per player per game.
type Relay struct {
	log logrus.FieldLogger

	mu    sync.Mutex
	rooms map[uuid.UUID]map[uuid.UUID]*peer
}

type peer struct {
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan []byte
}

func NewRelay(log logrus.FieldLogger) *Relay {
	return &Relay{log: log, rooms: make(map[uuid.UUID]map[uuid.UUID]*peer)}
}

// join registers conn for userID, replacing an older connection of the same player. It
// returns the other players already present.
func (r *Relay) join(gameID, userID uuid.UUID, conn *websocket.Conn) (*peer, []uuid.UUID) {
	p := &peer{userID: userID, conn: conn, send: make(chan []byte, peerBuffer)}

	r.mu.Lock()
	room := r.rooms[gameID]
	if room == nil {
		room = make(map[uuid.UUID]*peer)
		r.rooms[gameID] = room
	}
	old := room[userID]
	room[userID] = p
	present := make([]uuid.UUID, 0, len(room))
	for id := range room {
		if id != userID {
			present = append(present, id)
		}
	}
	r.mu.Unlock()

	if old != nil {
		go old.conn.Close(ReplacedError, "replaced by a newer connection")
	}
	return p, present
}

// leave drops p. It reports false when p was already replaced.
func (r *Relay) leave(gameID uuid.UUID, p *peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[gameID]
	if room[p.userID] != p {
		return false
	}
	delete(room, p.userID)
	if len(room) == 0 {
		delete(r.rooms, gameID)
	}
	return true
}

// sendTo queues msg for one player; it reports whether that player was connected.
func (r *Relay) sendTo(gameID, userID uuid.UUID, msg realtime.Message) bool {
	r.mu.Lock()
	p := r.rooms[gameID][userID]
	r.mu.Unlock()
	if p == nil {
		return false
	}
	r.enqueue(p, msg)
	return true
}

func (r *Relay) broadcast(gameID, except uuid.UUID, msg realtime.Message) {
	r.mu.Lock()
	peers := make([]*peer, 0, 2)
	for id, p := range r.rooms[gameID] {
		if id != except {
			peers = append(peers, p)
		}
	}
	r.mu.Unlock()
	for _, p := range peers {
		r.enqueue(p, msg)
	}
}

// Connected reports how many players of a game hold an open connection.
func (r *Relay) Connected(gameID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[gameID])
}

func (r *Relay) enqueue(p *peer, msg realtime.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Errorf("Failed to marshal %s message: %v", msg.Type, err)
		return
	}
	select {
	case p.send <- data:
	default:
		r.log.Warnf("Dropping %s message for slow player %s", msg.Type, p.userID)
	}
}

// writeLoop is the only writer on the connection so frames keep their order.
func (p *peer) writeLoop(ctx context.Context, log logrus.FieldLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-p.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := p.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				log.Warnf("Failed to write to player %s: %v", p.userID, err)
				return
			}
		}
	}
}

// GameWSHandler upgrades to a websocket for one game and relays realtime events between its
// two players.
func (gs *GameServer) GameWSHandler(w http.ResponseWriter, r *http.Request) {
	gameIDStr := chi.URLParam(r, "id")

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{realtime.Subprotocol},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		gs.log.Warnf("WebSocket accept error for game %s: %v", gameIDStr, err)
		return
	}
	defer c.CloseNow()

	if c.Subprotocol() != realtime.Subprotocol {
		gs.log.Warnf("Client for game %s connected with invalid subprotocol: %q", gameIDStr, c.Subprotocol())
		c.Close(BadSubprotocolError, "client must use the 'game' subprotocol")
		return
	}

	userID, err := gs.authenticate(r)
	if err != nil {
		gs.log.Warnf("WebSocket authentication failed for game %s: %v", gameIDStr, err)
		c.Close(InvalidAuthTokenError, "authentication failed")
		return
	}
	middleware.Annotate(r.Context(), logrus.Fields{"user_id": userID})

	var g *game.Game
	if id, err := uuid.Parse(gameIDStr); err == nil {
		g, _ = gs.GameStore.GetGame(id)
	}
	if g == nil {
		c.Close(InvalidGameIDError, "game not found")
		return
	}
	if !g.IsParticipant(userID) {
		gs.log.Warnf("User %s is not a player in game %s", userID, g.ID)
		c.Close(NotParticipantError, "you are not a player in this game")
		return
	}

	log := gs.log.WithFields(logrus.Fields{"session_id": g.ID, "user_id": userID})
	log.Info("Game channel opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	p, present := gs.Relay.join(g.ID, userID, c)
	go p.writeLoop(ctx, log)

	gs.Relay.broadcast(g.ID, userID, presence(realtime.TypePlayerConnected, g.ID, userID))
	for _, other := range present {
		gs.Relay.enqueue(p, presence(realtime.TypePlayerConnected, g.ID, other))
	}

	gs.readGameMessages(ctx, c, g, p, log)

	if gs.Relay.leave(g.ID, p) {
		gs.Relay.broadcast(g.ID, userID, presence(realtime.TypePlayerDisconnected, g.ID, userID))
	}
	log.Info("Game channel closed")
	c.Close(websocket.StatusNormalClosure, "")
}

func presence(t realtime.MessageType, gameID, userID uuid.UUID) realtime.Message {
	return realtime.Message{Type: t, GameID: gameID.String(), UserID: userID.String()}
}

func errorFrame(text string) realtime.Message {
	return realtime.Message{Type: realtime.TypeError, Text: text}
}

// readGameMessages forwards the player's events to the opponent until the connection ends.
// user_id is always stamped by the server; game_finished carries the authoritative winner.
func (gs *GameServer) readGameMessages(ctx context.Context, c *websocket.Conn, g *game.Game, p *peer, log logrus.FieldLogger) {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				log.Debug("WebSocket closed normally")
			case errors.Is(err, context.Canceled):
				log.Debug("WebSocket context canceled")
			default:
				log.Warnf("Error reading from WebSocket: %v (status %d)", err, status)
			}
			return
		}
		if typ != websocket.MessageText {
			log.Warnf("Ignoring non-text frame of type %d", typ)
			continue
		}

		msg, err := realtime.ParseMessage(data)
		if err != nil {
			log.Warnf("Invalid message: %v", err)
			gs.Relay.enqueue(p, errorFrame("invalid message"))
			continue
		}

		switch msg.Type {
		case realtime.TypePing:
			gs.Relay.enqueue(p, realtime.Message{Type: realtime.TypePong})

		case realtime.TypePixelPlaced:
			if msg.PixelPlaced == nil {
				gs.Relay.enqueue(p, errorFrame("pixel_placed without a pixel"))
				continue
			}
			gs.forward(g, p.userID, msg, log)

		case realtime.TypeGameFinished:
			if g.Status() != models.AuthorityFinished {
				log.Warn("Ignoring game_finished for a game still in progress")
				gs.Relay.enqueue(p, errorFrame("game is not finished"))
				continue
			}
			msg.GameFinished = &realtime.GameFinished{WinnerID: g.Payload(p.userID).WinnerID}
			gs.forward(g, p.userID, msg, log)

		default:
			log.Debugf("Unknown message type %q", msg.Type)
			gs.Relay.enqueue(p, errorFrame("unknown message type: "+string(msg.Type)))
		}
	}
}

func (gs *GameServer) forward(g *game.Game, from uuid.UUID, msg realtime.Message, log logrus.FieldLogger) {
	msg.UserID = from.String()
	msg.GameID = g.ID.String()
	opp := g.Opponent(from)
	if opp == uuid.Nil || !gs.Relay.sendTo(g.ID, opp, msg) {
		log.Debugf("Opponent not connected, %s not relayed", msg.Type)
	}
}
