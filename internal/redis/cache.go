package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore handles ride record caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// Final records never change once a ride is finished.
const RecordCacheTTL = 24 * time.Hour

const recordCachePrefix = "cache:record:"

func recordKey(rideID int64) string {
	return recordCachePrefix + strconv.FormatInt(rideID, 10)
}

// GetRecord retrieves the raw final record of a ride. A cache miss returns
// nil, nil.
func (s *CacheStore) GetRecord(ctx context.Context, rideID int64) ([]byte, error) {
	data, err := s.client.Get(ctx, recordKey(rideID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}
	return data, nil
}

// SetRecord stores the raw final record of a ride.
func (s *CacheStore) SetRecord(ctx context.Context, rideID int64, record []byte) error {
	return s.client.Set(ctx, recordKey(rideID), record, RecordCacheTTL).Err()
}

// InvalidateRecord removes a ride record from cache.
func (s *CacheStore) InvalidateRecord(ctx context.Context, rideID int64) error {
	return s.client.Del(ctx, recordKey(rideID)).Err()
}
