package authority

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pixelduel/gamecore/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestSignInSendsCookieAfterwards(t *testing.T) {
	var gotCookie string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/guest", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.Identity{UserID: "u1", Name: "Guest-0001", Token: "tok"})
	})
	mux.HandleFunc("/api/games/create", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(AuthCookie); err == nil {
			gotCookie = c.Value
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(models.SessionPayload{ID: "g1", Mode: models.Mode(body["mode"]), Status: models.AuthorityInProgress})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := New(ts.URL+"/", WithLogger(quiet()))
	id, err := c.SignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, id, c.Identity())

	p, err := c.CreateSession(context.Background(), models.ModeSolo)
	require.NoError(t, err)
	assert.Equal(t, "g1", p.ID)
	assert.Equal(t, models.ModeSolo, p.Mode)
	assert.Equal(t, "tok", gotCookie)
}

func TestErrorTaxonomy(t *testing.T) {
	cases := []struct {
		status int
		body   string
		kind   error
		detail string
	}{
		{http.StatusNotFound, `{"detail":"game not found"}`, ErrRejected, "game not found"},
		{http.StatusUnprocessableEntity, `{"detail":"invalid placement"}`, ErrRejected, "invalid placement"},
		{http.StatusTooManyRequests, `{"detail":"slow down"}`, ErrRateLimited, "slow down"},
		{http.StatusBadGateway, `upstream down`, ErrFault, "upstream down"},
	}
	for _, tc := range cases {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			io.WriteString(w, tc.body)
		}))
		c := New(ts.URL, WithLogger(quiet()))
		_, err := c.PlacePixel(context.Background(), "g1", models.Placement{X: 1, Y: 1, Color: "#000000"})
		ts.Close()

		require.Error(t, err)
		assert.ErrorIs(t, err, tc.kind, "status %d", tc.status)
		var ae *Error
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, tc.status, ae.Status)
		assert.Equal(t, tc.detail, ae.Detail)
	}
}

func TestRateLimitedIsAlsoRejected(t *testing.T) {
	err := statusError("place pixel", http.StatusTooManyRequests, "")
	assert.ErrorIs(t, err, ErrRejected)
	assert.True(t, err.RateLimited())
	assert.Equal(t, "Too many requests. Wait a moment and try again.", UserMessage(err))
}

func TestUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	c := New(ts.URL, WithLogger(quiet()), WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
	_, err := c.Leaderboard(context.Background(), 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, "Network error. Check your connection and try again.", UserMessage(err))
}

func TestLeaveQueueHasNoBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/games/queue/leave", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	c := New(ts.URL, WithLogger(quiet()))
	assert.NoError(t, c.LeaveQueue(context.Background()))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, "Validation error: bad color", UserMessage(statusError("x", http.StatusUnprocessableEntity, "bad color")))
	assert.Equal(t, "Authorization failed. Sign in again.", UserMessage(statusError("x", http.StatusUnauthorized, "")))
	assert.Equal(t, "Server error. Try again later.", UserMessage(statusError("x", http.StatusInternalServerError, "")))
}
