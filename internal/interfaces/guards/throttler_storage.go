package guards

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"gnest/internal/infra/redis"
)

// ThrottlerRecord is the state of one key after a hit has been counted.
type ThrottlerRecord struct {
	// TotalHits exceeds the limit when the hit was rejected.
	TotalHits int
	// TimeToExpire is how long until the key is back to its full allowance, or,
	// for a rejected hit, until the next hit would be accepted.
	TimeToExpire time.Duration
}

// ThrottlerStorage counts hits per key, allowing limit hits per ttl. Increment
// must be atomic with respect to concurrent callers for the same key.
type ThrottlerStorage interface {
	Increment(ctx context.Context, key string, limit int, ttl time.Duration) (ThrottlerRecord, error)
}

type limiterEntry struct {
	limiter  *rate.Limiter
	limit    int
	ttl      time.Duration
	lastSeen time.Time
}

// MemoryThrottlerStorage keeps a token bucket per key behind one mutex: limit
// tokens refilled evenly over ttl. Rejected hits take no token. Once the
// application bootstraps, idle keys are swept every SweepInterval.
type MemoryThrottlerStorage struct {
	SweepInterval time.Duration

	mu       sync.Mutex
	limiters map[string]*limiterEntry
	now      func() time.Time
	stop     chan struct{}
}

func NewMemoryThrottlerStorage() *MemoryThrottlerStorage {
	return &MemoryThrottlerStorage{
		SweepInterval: time.Minute,
		limiters:      make(map[string]*limiterEntry),
		now:           time.Now,
	}
}

func (s *MemoryThrottlerStorage) Increment(_ context.Context, key string, limit int, ttl time.Duration) (ThrottlerRecord, error) {
	if limit <= 0 || ttl <= 0 {
		return ThrottlerRecord{}, fmt.Errorf("throttler: invalid limit %d per %s", limit, ttl)
	}
	every := ttl / time.Duration(limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.limiters[key]
	if !ok || e.limit != limit || e.ttl != ttl {
		e = &limiterEntry{
			limiter: rate.NewLimiter(rate.Every(every), limit),
			limit:   limit,
			ttl:     ttl,
		}
		s.limiters[key] = e
	}
	e.lastSeen = now

	r := e.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return ThrottlerRecord{TotalHits: limit + 1, TimeToExpire: delay}, nil
	}

	tokens := e.limiter.TokensAt(now)
	missing := float64(limit) - tokens
	return ThrottlerRecord{
		TotalHits:    int(math.Ceil(missing)),
		TimeToExpire: time.Duration(missing * float64(every)),
	}, nil
}

// Len reports the number of tracked keys.
func (s *MemoryThrottlerStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// Sweep drops keys idle for longer than their ttl; their buckets are full again.
func (s *MemoryThrottlerStorage) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, e := range s.limiters {
		if now.Sub(e.lastSeen) > e.ttl {
			delete(s.limiters, k)
		}
	}
}

func (s *MemoryThrottlerStorage) OnApplicationBootstrap(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil || s.SweepInterval <= 0 {
		return nil
	}
	s.stop = make(chan struct{})
	go s.sweepLoop(s.SweepInterval, s.stop)
	return nil
}

func (s *MemoryThrottlerStorage) sweepLoop(every time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Sweep()
		case <-stop:
			return
		}
	}
}

func (s *MemoryThrottlerStorage) OnModuleDestroy(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	return nil
}

// RedisThrottlerStorage shares counters across instances through a redis sorted
// set per key. Every hit is recorded, rejected ones included.
type RedisThrottlerStorage struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisThrottlerStorage(client *redis.Client) *RedisThrottlerStorage {
	return &RedisThrottlerStorage{client: client, prefix: "throttle:", now: time.Now}
}

func (s *RedisThrottlerStorage) Increment(ctx context.Context, key string, _ int, ttl time.Duration) (ThrottlerRecord, error) {
	now := s.now()
	hit, err := s.client.Hit(ctx, s.prefix+key, uuid.NewString(), now, ttl)
	if err != nil {
		return ThrottlerRecord{}, err
	}
	return ThrottlerRecord{
		TotalHits:    hit.Hits,
		TimeToExpire: hit.Oldest.Add(ttl).Sub(now),
	}, nil
}
