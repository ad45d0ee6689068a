// internal/authority/client.go
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pixelduel/gamecore/internal/models"
	"github.com/sirupsen/logrus"
)

// AuthCookie carries the guest token on every authenticated call and on the realtime handshake.
const AuthCookie = "auth_token"

// DefaultTimeout bounds a single authority call.
const DefaultTimeout = 10 * time.Second

// Client wraps the authority's REST API. Every method issues exactly one request and never
// retries: graded answers and placements must not be double submitted.
type Client struct {
	baseURL string
	http    *http.Client
	log     logrus.FieldLogger

	mu       sync.RWMutex
	identity models.Identity
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = l }
}

// WithIdentity reuses a previously issued guest identity.
func WithIdentity(id models.Identity) Option {
	return func(c *Client) { c.identity = id }
}

// New creates a client for the authority at baseURL (e.g. "http://localhost:8002").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the authority's base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Identity returns the guest identity in use, if any.
func (c *Client) Identity() models.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// AuthHeader returns the headers that authenticate this client, for the realtime handshake.
func (c *Client) AuthHeader() http.Header {
	h := http.Header{}
	if tok := c.Identity().Token; tok != "" {
		h.Set("Cookie", AuthCookie+"="+tok)
	}
	return h
}

// SignIn asks the authority for a fresh anonymous guest identity and keeps it for later calls.
func (c *Client) SignIn(ctx context.Context) (models.Identity, error) {
	var id models.Identity
	if err := c.do(ctx, "sign in", http.MethodPost, "/api/users/guest", nil, &id); err != nil {
		return models.Identity{}, err
	}
	c.mu.Lock()
	c.identity = id
	c.mu.Unlock()
	c.log.WithField("user_id", id.UserID).Info("signed in as guest")
	return id, nil
}

// CreateSession starts a solo or pvp game.
func (c *Client) CreateSession(ctx context.Context, mode models.Mode) (*models.SessionPayload, error) {
	var out models.SessionPayload
	body := map[string]string{"mode": string(mode)}
	if err := c.do(ctx, "create session", http.MethodPost, "/api/games/create", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JoinSession consumes a waiting pvp session by its join code.
func (c *Client) JoinSession(ctx context.Context, code string) (*models.SessionPayload, error) {
	var out models.SessionPayload
	body := map[string]string{"code": code}
	if err := c.do(ctx, "join session", http.MethodPost, "/api/games/join", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession fetches the current authority view of a session by join code.
func (c *Client) GetSession(ctx context.Context, code string) (*models.SessionPayload, error) {
	var out models.SessionPayload
	if err := c.do(ctx, "get session", http.MethodGet, "/api/games/"+url.PathEscape(code), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JoinQueue enters the matchmaking queue.
func (c *Client) JoinQueue(ctx context.Context) (*models.QueueResult, error) {
	var out models.QueueResult
	if err := c.do(ctx, "join queue", http.MethodPost, "/api/games/queue/join", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueueStatus polls for a match while enqueued.
func (c *Client) QueueStatus(ctx context.Context) (*models.QueueResult, error) {
	var out models.QueueResult
	if err := c.do(ctx, "queue status", http.MethodGet, "/api/games/queue", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LeaveQueue withdraws from the matchmaking queue.
func (c *Client) LeaveQueue(ctx context.Context) error {
	return c.do(ctx, "leave queue", http.MethodPost, "/api/games/queue/leave", nil, nil)
}

// SubmitAnswer sends a full solo attempt for grading.
func (c *Client) SubmitAnswer(ctx context.Context, sessionID string, seq []models.Coordinate) (*models.AnswerVerdict, error) {
	var out models.AnswerVerdict
	body := models.AnswerRequest{Sequence: seq}
	path := "/api/games/" + url.PathEscape(sessionID) + "/answer"
	if err := c.do(ctx, "submit answer", http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PlacePixel submits one pvp placement.
func (c *Client) PlacePixel(ctx context.Context, sessionID string, p models.Placement) (*models.PlacementResult, error) {
	var out models.PlacementResult
	path := "/api/games/" + url.PathEscape(sessionID) + "/pixels"
	if err := c.do(ctx, "place pixel", http.MethodPost, path, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FinishSession records the final stats of a game.
func (c *Client) FinishSession(ctx context.Context, sessionID string, stats models.GameStats) (*models.FinishSummary, error) {
	var out models.FinishSummary
	path := "/api/games/" + url.PathEscape(sessionID) + "/finish"
	if err := c.do(ctx, "finish session", http.MethodPost, path, stats, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Leaderboard returns the top players ordered by best level reached.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	var out []models.LeaderboardEntry
	path := "/api/games/leaderboard?limit=" + strconv.Itoa(limit)
	if err := c.do(ctx, "leaderboard", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.AuthHeader() {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return unreachable(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb models.ErrorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &eb) != nil || eb.Detail == "" {
			eb.Detail = strings.TrimSpace(string(raw))
		}
		e := statusError(op, resp.StatusCode, eb.Detail)
		c.log.WithFields(logrus.Fields{
			"op":     op,
			"status": resp.StatusCode,
		}).Debugf("authority call failed: %s", eb.Detail)
		return e
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// a truncated body is a transport problem, not a verdict
		return unreachable(op, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
