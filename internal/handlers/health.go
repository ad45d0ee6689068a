package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Checker reports whether a backing service is reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Check(ctx context.Context) error { return f(ctx) }

// HealthHandler answers 200 when every checker passes and 503 otherwise.
func HealthHandler(log logrus.FieldLogger, checkers map[string]Checker) http.HandlerFunc {
	type result struct {
		Status string `json:"status"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := make(map[string]result, len(checkers))
		status := http.StatusOK
		for name, c := range checkers {
			if err := c.Check(ctx); err != nil {
				log.WithField("name", name).Errorf("health check failed: %v", err)
				checks[name] = result{Status: "error"}
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = result{Status: "ok"}
		}
		writeJSON(w, status, checks)
	}
}
