package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/pixelduel/gamecore/internal/auth"
	"github.com/pixelduel/gamecore/internal/middleware"
	"github.com/pixelduel/gamecore/internal/models"
	"github.com/sirupsen/logrus"
)

// AuthCookie names the cookie that carries the guest token.
const AuthCookie = "auth_token"

type ctxKey int

const ctxKeyUser ctxKey = iota

// GuestHandler issues a fresh anonymous identity and sets it as a cookie.
func (gs *GameServer) GuestHandler(w http.ResponseWriter, r *http.Request) {
	user := models.User{Name: auth.GuestName()}
	if err := gs.Store.CreateUser(r.Context(), &user); err != nil {
		gs.log.Errorf("failed to create guest user: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create guest user")
		return
	}
	token, err := gs.Signer.CreateJWT(user.ID)
	if err != nil {
		gs.log.Errorf("failed to sign token for %s: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	cookie := &http.Cookie{
		Name:     AuthCookie,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
	if ttl := gs.Signer.TTL(); ttl > 0 {
		cookie.MaxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, cookie)

	gs.log.WithField("user_id", user.ID).Info("guest user created")
	writeJSON(w, http.StatusOK, models.Identity{
		UserID: user.ID.String(),
		Name:   user.Name,
		Token:  token,
	})
}

// authenticate reads the guest token from the cookie or a bearer header.
func (gs *GameServer) authenticate(r *http.Request) (uuid.UUID, error) {
	var token string
	if c, err := r.Cookie(AuthCookie); err == nil {
		token = c.Value
	} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	if token == "" {
		return uuid.Nil, http.ErrNoCookie
	}
	return gs.Signer.AuthenticateJWT(token)
}

func (gs *GameServer) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := gs.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		middleware.Annotate(r.Context(), logrus.Fields{"user_id": userID})
		ctx := context.WithValue(r.Context(), ctxKeyUser, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(ctxKeyUser).(uuid.UUID)
	return id
}
