// internal/realtime/conn.go
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// Subprotocol is negotiated on every game channel handshake.
const Subprotocol = "game"

const writeTimeout = 5 * time.Second

// ErrChannelUnavailable is logged when a send is attempted on a channel that is not open.
// It is never returned to callers.
var ErrChannelUnavailable = errors.New("realtime channel unavailable")

// State is the observable connection state of a channel.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	}
	return "closed"
}

// WebSocketURL turns an http(s) base URL plus path into a ws(s) URL.
func WebSocketURL(base, path string, query url.Values) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + path)
	if err != nil {
		return "", fmt.Errorf("invalid channel url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported channel scheme %q", u.Scheme)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// readFrames pumps inbound frames into dispatch until the connection fails or ctx ends.
// Malformed frames are counted and dropped without disturbing later ones.
func readFrames(ctx context.Context, conn *websocket.Conn, log logrus.FieldLogger, dropped *atomic.Int64, dispatch func(Message)) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			dropped.Add(1)
			log.Warnf("Dropping non-text frame of type %d", typ)
			continue
		}
		msg, err := ParseMessage(data)
		if err != nil {
			dropped.Add(1)
			log.WithField("payload", truncate(data, 256)).Warnf("Dropping malformed message: %v", err)
			continue
		}
		dispatch(msg)
	}
}

// logClosure reports why a read loop ended at the right level.
func logClosure(log logrus.FieldLogger, err error) {
	status := websocket.CloseStatus(err)
	switch {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		log.Info("Channel closed normally")
	case errors.Is(err, context.Canceled):
		log.Debug("Channel read canceled")
	default:
		log.Warnf("Channel closed unexpectedly: %v (status %d)", err, status)
	}
}

func writeMessage(conn *websocket.Conn, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", msg.Type, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("failed to write %s message: %w", msg.Type, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
