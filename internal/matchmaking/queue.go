// internal/matchmaking/queue.go
package matchmaking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pixelduel/gamecore/internal/models"
	"github.com/sirupsen/logrus"
)

// leaveTimeout bounds the background withdrawal issued on Abandon.
const leaveTimeout = 5 * time.Second

// Queuer is the slice of the authority the queue client needs.
type Queuer interface {
	JoinQueue(ctx context.Context) (*models.QueueResult, error)
	QueueStatus(ctx context.Context) (*models.QueueResult, error)
	LeaveQueue(ctx context.Context) error
}

// Client tracks this player's membership in the pairing queue.
type Client struct {
	authority Queuer
	log       logrus.FieldLogger

	mu      sync.Mutex
	inQueue bool
}

// NewClient creates a queue client.
func NewClient(a Queuer, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{authority: a, log: log}
}

// Join asks the authority for a pairing. On a match the returned result carries the session
// and the player is no longer queued; otherwise the player is waiting. Authority failures are
// surfaced because they change what the user sees.
func (c *Client) Join(ctx context.Context) (*models.QueueResult, error) {
	res, err := c.authority.JoinQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to join queue: %w", err)
	}
	if res.Matched && res.Game == nil {
		return nil, fmt.Errorf("failed to join queue: match reported without a session")
	}

	c.mu.Lock()
	c.inQueue = !res.Matched
	c.mu.Unlock()

	c.log.WithField("matched", res.Matched).Info("Joined matchmaking queue")
	return res, nil
}

// Poll checks whether a waiting player has been paired.
func (c *Client) Poll(ctx context.Context) (*models.QueueResult, error) {
	if !c.InQueue() {
		return &models.QueueResult{}, nil
	}
	res, err := c.authority.QueueStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to poll queue: %w", err)
	}
	if res.Matched && res.Game != nil {
		c.mu.Lock()
		c.inQueue = false
		c.mu.Unlock()
	}
	return res, nil
}

// Leave withdraws from the queue. The local flag is cleared first and unconditionally; a
// failed remote withdrawal is only logged so the player is never stuck waiting.
func (c *Client) Leave(ctx context.Context) {
	c.mu.Lock()
	was := c.inQueue
	c.inQueue = false
	c.mu.Unlock()

	if !was {
		return
	}
	if err := c.authority.LeaveQueue(ctx); err != nil {
		c.log.Warnf("Failed to leave queue at authority: %v", err)
		return
	}
	c.log.Info("Left matchmaking queue")
}

// Abandon clears the flag immediately and withdraws in the background.
func (c *Client) Abandon() {
	c.mu.Lock()
	was := c.inQueue
	c.inQueue = false
	c.mu.Unlock()

	if !was {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		if err := c.authority.LeaveQueue(ctx); err != nil {
			c.log.Warnf("Failed to leave queue at authority: %v", err)
		}
	}()
}

// InQueue reports whether the player is waiting for a pairing.
func (c *Client) InQueue() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inQueue
}
