// internal/realtime/reconnecting.go
package realtime

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts = 5
	DefaultBackoff     = time.Second
)

// ReconnectingChannel is the generic feed channel. Unlike GameChannel it redials after an
// unexpected closure, waiting backoff*attempt before each try, and gives up silently after
// maxAttempts consecutive failures. A successful open resets the attempt count.
type ReconnectingChannel struct {
	url         string
	header      http.Header
	maxAttempts int
	backoff     time.Duration
	log         logrus.FieldLogger
	registry    *Registry
	dropped     atomic.Int64
	attempts    atomic.Int32
	dials       atomic.Int32

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// ReconnectOption customizes a ReconnectingChannel.
type ReconnectOption func(*ReconnectingChannel)

// WithBackoff sets the linear backoff step.
func WithBackoff(d time.Duration) ReconnectOption {
	return func(c *ReconnectingChannel) { c.backoff = d }
}

// WithMaxAttempts bounds consecutive reconnection attempts.
func WithMaxAttempts(n int) ReconnectOption {
	return func(c *ReconnectingChannel) { c.maxAttempts = n }
}

// WithHeader sets handshake headers.
func WithHeader(h http.Header) ReconnectOption {
	return func(c *ReconnectingChannel) { c.header = h }
}

// NewReconnectingChannel creates a stopped channel for the ws(s) url.
func NewReconnectingChannel(url string, log logrus.FieldLogger, opts ...ReconnectOption) *ReconnectingChannel {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &ReconnectingChannel{
		url:         url,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		log:         log.WithField("channel", url),
		registry:    NewRegistry(log),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins connecting in the background. It is a no-op while already running.
func (c *ReconnectingChannel) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.attempts.Store(0)
	go c.run(runCtx, c.done)
}

// Stop closes the connection and ends the reconnect loop.
func (c *ReconnectingChannel) Stop() {
	c.mu.Lock()
	cancel, conn, done := c.cancel, c.conn, c.done
	c.cancel, c.conn = nil, nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client stop")
	}
	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *ReconnectingChannel) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()

	for {
		c.dials.Add(1)
		conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{HTTPHeader: c.header})
		if err != nil {
			c.log.Warnf("Feed channel dial failed: %v", err)
		} else {
			c.attempts.Store(0)
			c.setConn(conn)
			c.log.Info("Feed channel connected")
			err = readFrames(ctx, conn, c.log, &c.dropped, c.registry.Dispatch)
			c.setConn(nil)
			logClosure(c.log, err)
		}

		if ctx.Err() != nil {
			return
		}
		n := int(c.attempts.Load())
		if n >= c.maxAttempts {
			c.log.Debugf("Feed channel giving up after %d attempts", n)
			return
		}
		n++
		c.attempts.Store(int32(n))
		wait := c.backoff * time.Duration(n)
		c.log.Infof("Feed channel reconnect attempt %d in %s", n, wait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (c *ReconnectingChannel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// Register adds a listener for inbound messages.
func (c *ReconnectingChannel) Register(l Listener) Handle {
	return c.registry.Register(l)
}

// Unregister removes a listener.
func (c *ReconnectingChannel) Unregister(h Handle) {
	c.registry.Unregister(h)
}

// Connected reports whether a connection is currently open.
func (c *ReconnectingChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Dials returns the total number of dial attempts made so far.
func (c *ReconnectingChannel) Dials() int {
	return int(c.dials.Load())
}

// Done is closed once the loop has stopped, either by Stop or by giving up.
func (c *ReconnectingChannel) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}
