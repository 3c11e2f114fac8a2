package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader  = "Idempotency-Key"
	idempotencyTTL     = 24 * time.Hour
	idempotencyLockTTL = 30 * time.Second
)

// replay is a stored answer to a mutating ride request.
type replay struct {
	Status      int             `json:"status"`
	ContentType string          `json:"contentType"`
	Body        json.RawMessage `json:"body"`
}

// replayStore keeps replays and in-flight markers in Redis.
type replayStore struct {
	client *redis.Client
}

func (s replayStore) load(ctx context.Context, key string) (*replay, error) {
	data, err := s.client.Get(ctx, "idempotency:done:"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var r replay
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s replayStore) save(ctx context.Context, key string, r replay) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, "idempotency:done:"+key, data, idempotencyTTL).Err()
}

// claim marks key as in flight. It reports false when another request holds it.
func (s replayStore) claim(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, "idempotency:lock:"+key, 1, idempotencyLockTTL).Result()
}

func (s replayStore) release(ctx context.Context, key string) {
	if err := s.client.Del(ctx, "idempotency:lock:"+key).Err(); err != nil {
		log.Printf("[IDEMPOTENCY] failed to release %s: %v", key, err)
	}
}

// capturingWriter tees the response body so it can be stored.
type capturingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response of a mutating request
// carrying an Idempotency-Key header already seen, so a retried "create ride"
// never creates a second upstream ride. A duplicate arriving while the first
// is still in flight gets 409. A nil client disables it.
func IdempotencyMiddleware(redisClient *redis.Client) gin.HandlerFunc {
	store := replayStore{client: redisClient}

	return func(c *gin.Context) {
		header := c.GetHeader(idempotencyHeader)
		if redisClient == nil || header == "" || !isMutating(c.Request.Method) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := c.Request.Method + ":" + c.Request.URL.Path + ":" + header

		stored, err := store.load(ctx, key)
		if err != nil {
			log.Printf("[IDEMPOTENCY] lookup failed, serving without replay: %v", err)
			c.Next()
			return
		}
		if stored != nil {
			c.Data(stored.Status, stored.ContentType, stored.Body)
			c.Abort()
			return
		}

		claimed, err := store.claim(ctx, key)
		if err != nil {
			log.Printf("[IDEMPOTENCY] claim failed, serving without replay: %v", err)
			c.Next()
			return
		}
		if !claimed {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"ok":      false,
				"message": "request with this Idempotency-Key is still in progress",
			})
			return
		}
		defer store.release(context.WithoutCancel(ctx), key)

		w := &capturingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		// Failures are not stored so the client may retry them.
		status := w.Status()
		if status < 200 || status >= 300 {
			return
		}
		r := replay{
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		}
		if err := store.save(context.WithoutCancel(ctx), key, r); err != nil {
			log.Printf("[IDEMPOTENCY] failed to store replay: %v", err)
		}
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
