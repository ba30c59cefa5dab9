package guards

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gnest/internal/infra/gnest"
	"gnest/internal/infra/gnest/gnesttest"
)

func ok() (string, error) { return "ok", nil }

func TestMemoryThrottlerStorage_token_bucket(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	s := NewMemoryThrottlerStorage()
	s.now = func() time.Time { return now }
	hit := func() ThrottlerRecord {
		rec, err := s.Increment(context.Background(), "k", 2, 10*time.Second)
		require.NoError(t, err)
		return rec
	}
	ms := float64(time.Millisecond)

	rec := hit()
	assert.Equal(t, 1, rec.TotalHits)
	assert.InDelta(t, float64(5*time.Second), float64(rec.TimeToExpire), ms)

	rec = hit()
	assert.Equal(t, 2, rec.TotalHits)
	assert.InDelta(t, float64(10*time.Second), float64(rec.TimeToExpire), ms)

	rec = hit()
	assert.Equal(t, 3, rec.TotalHits, "over the limit")
	assert.InDelta(t, float64(5*time.Second), float64(rec.TimeToExpire), ms, "wait for one token")

	// the rejected hit took no token, so one refill is enough
	now = now.Add(5 * time.Second)
	rec = hit()
	assert.Equal(t, 2, rec.TotalHits)

	now = now.Add(9 * time.Second)
	s.Sweep()
	assert.Equal(t, 1, s.Len(), "seen within its ttl")

	now = now.Add(2 * time.Second)
	s.Sweep()
	assert.Equal(t, 0, s.Len())
}

func TestMemoryThrottlerStorage_rejects_invalid_limits(t *testing.T) {
	t.Parallel()

	s := NewMemoryThrottlerStorage()
	_, err := s.Increment(context.Background(), "k", 0, time.Second)
	assert.Error(t, err)
	_, err = s.Increment(context.Background(), "k", 1, 0)
	assert.Error(t, err)
}

func TestMemoryThrottlerStorage_sweeper_lifecycle(t *testing.T) {
	t.Parallel()

	s := NewMemoryThrottlerStorage()
	s.SweepInterval = 5 * time.Millisecond
	_, err := s.Increment(context.Background(), "k", 1, time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, s.OnApplicationBootstrap(context.Background()))
	require.NoError(t, s.OnApplicationBootstrap(context.Background()))
	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.OnModuleDestroy(context.Background()))
	require.NoError(t, s.OnModuleDestroy(context.Background()))
}

func TestThrottlerGuard_concurrent_requests_at_limit(t *testing.T) {
	t.Parallel()

	app := gnest.New()
	app.Group("/").GET("/ping", ok, NewThrottlerGuard(2, time.Minute, NewMemoryThrottlerStorage()))
	require.NoError(t, app.Init(context.Background()))

	var wg sync.WaitGroup
	codes := make(chan int, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- gnesttest.Do(t, app, http.MethodGet, "/ping", "").Code
		}()
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for c := range codes {
		counts[c]++
	}
	assert.Equal(t, map[int]int{http.StatusOK: 2, http.StatusTooManyRequests: 1}, counts)
}

func TestThrottlerGuard_headers_and_rejection(t *testing.T) {
	t.Parallel()

	app := gnest.New()
	app.Group("/").GET("/ping", ok, NewThrottlerGuard(1, 30*time.Second, NewMemoryThrottlerStorage()))

	first := gnesttest.Do(t, app, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))
	assert.Empty(t, first.Header().Get("Retry-After"))

	second := gnesttest.Do(t, app, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.Equal(t, "ThrottlerException: Too Many Requests", gnesttest.Error(t, second).Message)
}

func TestThrottlerGuard_keys_are_per_route_and_skippable(t *testing.T) {
	t.Parallel()

	app := gnest.New()
	api := app.Group("/", NewThrottlerGuard(1, time.Minute, NewMemoryThrottlerStorage()))
	api.GET("/a", ok)
	api.GET("/b", ok)
	api.GET("/health", ok, SkipThrottle())

	assert.Equal(t, http.StatusOK, gnesttest.Do(t, app, http.MethodGet, "/a", "").Code)
	assert.Equal(t, http.StatusOK, gnesttest.Do(t, app, http.MethodGet, "/b", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, gnesttest.Do(t, app, http.MethodGet, "/a", "").Code)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, gnesttest.Do(t, app, http.MethodGet, "/health", "").Code)
	}
}

type failingStorage struct{}

func (failingStorage) Increment(context.Context, string, int, time.Duration) (ThrottlerRecord, error) {
	return ThrottlerRecord{}, assert.AnError
}

func TestThrottlerGuard_storage_error_is_a_guard_fault(t *testing.T) {
	t.Parallel()

	app := gnest.New()
	app.Group("/").GET("/ping", ok, NewThrottlerGuard(1, time.Minute, failingStorage{}))

	rec := gnesttest.Do(t, app, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", gnesttest.Error(t, rec).Message)
}
