package idempotency

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const HeaderKey = "Idempotency-Key"

type Store struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewStore(rdb redis.Cmdable, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Key(scope, key string) string {
	return "idem:" + scope + ":" + key
}

// Claim records key and reports whether it was already claimed.
func (s *Store) Claim(ctx context.Context, key string) (seen bool, err error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Release forgets key so the request can be retried.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// Middleware rejects a request whose Idempotency-Key was already used within the TTL.
// scope namespaces the key, typically per user. Requests without the header pass
// through. A key whose request ends in a non-2xx status is released.
func (s *Store) Middleware(log *slog.Logger, scope func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(HeaderKey)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			key := s.Key(scope(r), raw)
			seen, err := s.Claim(r.Context(), key)
			if err != nil {
				// Redis being down must not block checkout.
				log.Error("idempotency check failed", "key", key, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if seen {
				log.Info("duplicate request rejected", "key", key)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "Duplicate request: this order is already being processed"})
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status < 200 || rec.status >= 300 {
				if err := s.Release(context.WithoutCancel(r.Context()), key); err != nil {
					log.Error("idempotency release failed", "key", key, "err", err)
				}
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}
