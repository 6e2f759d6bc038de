package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/tillstock-backend/api/responses"
	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
)

const readyTimeout = 2 * time.Second

// Pinger is satisfied by the db and redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(env string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Tillstock-Env", env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when every dependency answers a ping.
func HealthReady(env string, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Tillstock-Env", env)
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		failed := false
		for name, dep := range deps {
			if dep == nil {
				checks[name] = "missing"
				failed = true
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				logg.WarnErr(logg.WithField(ctx, "dependency", name), "readiness ping failed", err)
				checks[name] = "down"
				failed = true
				continue
			}
			checks[name] = "ok"
		}

		if failed {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
