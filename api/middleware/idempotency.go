package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/tillstock-backend/api/responses"
	pkgerrors "github.com/angelmondragon/tillstock-backend/pkg/errors"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/tillstock-backend/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour

	idempotencyHeader    = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 255
)

type routeMatcher func(string) bool

type idempotencyRule struct {
	method  string
	matcher routeMatcher
	ttl     time.Duration
}

var idempotencyRules = []idempotencyRule{
	{method: http.MethodPost, matcher: matchExact("/checkout/session"), ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, matcher: matchExact("/restocks"), ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, matcher: matchExact("/returns"), ttl: criticalIdempotencyTTL},
	{method: http.MethodPut, matcher: matchExact("/platform-fee"), ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, matcher: matchPrefix("/stripe/"), ttl: defaultIdempotencyTTL},
}

// idempotencyRecord is what a key maps to in redis. A record with Pending
// set marks a request that is still being served.
type idempotencyRecord struct {
	Pending     bool              `json:"pending,omitempty"`
	Status      int               `json:"status,omitempty"`
	Body        []byte            `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// inFlightTTL bounds how long a crashed request can hold its key.
const inFlightTTL = 2 * time.Minute

// Idempotency makes retried mutations safe. The first request with a key
// reserves it, runs, and stores its response; a retry with the same body
// gets that response back, a retry with a different body gets 409, and a
// retry that races the first one gets 409 until the first finishes.
// Responses with 5xx status release the key so the client can retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := matchRule(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(clientKey) > maxIdempotencyKeyLen {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := hashBody(body)
			key := store.IdempotencyKey(buildScope(r), clientKey)
			ctx = logg.WithField(ctx, "idempotency_key", clientKey)

			pending, _ := json.Marshal(idempotencyRecord{Pending: true, RequestHash: requestHash})
			reserved, err := store.SetNX(ctx, key, string(pending), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayExisting(ctx, logg, w, store, key, requestHash)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			defer func() {
				// a panicking handler must not leave the key reserved
				if p := recover(); p != nil {
					release(ctx, logg, store, key)
					panic(p)
				}
			}()
			next.ServeHTTP(rec, r.WithContext(ctx))

			status := defaultStatus(rec.status)
			if status >= http.StatusInternalServerError {
				release(ctx, logg, store, key)
				return
			}
			record := idempotencyRecord{
				Status:      status,
				Body:        rec.body.Bytes(),
				RequestHash: requestHash,
			}
			if ct := rec.Header().Get("Content-Type"); ct != "" {
				record.Headers = map[string]string{"Content-Type": ct}
			}
			payload, err := json.Marshal(record)
			if err != nil {
				logg.Error(ctx, "marshal idempotency record", err)
				release(ctx, logg, store, key)
				return
			}
			if err := store.Set(context.WithoutCancel(ctx), key, string(payload), rule.ttl); err != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

func replayExisting(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, store pkgredis.IdempotencyStore, key, requestHash string) {
	stored, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// released between SetNX and Get; the client may simply retry
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case record.RequestHash != requestHash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.Pending:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is in progress"))
	default:
		if ct := record.Headers["Content-Type"]; ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.Header().Set(replayedHeader, "true")
		w.WriteHeader(record.Status)
		_, _ = w.Write(record.Body)
	}
}

func release(ctx context.Context, logg *logger.Logger, store pkgredis.IdempotencyStore, key string) {
	if err := store.Del(context.WithoutCancel(ctx), key); err != nil {
		logg.Error(ctx, "release idempotency key", err)
	}
}

func buildScope(r *http.Request) string {
	companyID := ""
	if id, ok := CompanyIDFromContext(r.Context()); ok {
		companyID = id.String()
	}
	parts := []string{
		UserIDFromContext(r.Context()),
		companyID,
		r.Method,
		r.URL.Path,
	}
	return strings.Join(parts, "|")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func defaultStatus(value int) int {
	if value == 0 {
		return http.StatusOK
	}
	return value
}

func routePattern(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func matchRule(method, pattern string) (idempotencyRule, bool) {
	if pattern == "" {
		return idempotencyRule{}, false
	}
	for _, rule := range idempotencyRules {
		if rule.method != method {
			continue
		}
		if rule.matcher(pattern) {
			return rule, true
		}
	}
	return idempotencyRule{}, false
}

func matchExact(path string) routeMatcher {
	return func(pattern string) bool {
		return pattern == path
	}
}

func matchPrefix(prefix string) routeMatcher {
	return func(pattern string) bool {
		return strings.HasPrefix(pattern, prefix)
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
