package guards

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"gnest/internal/infra/gnest"
)

const SkipThrottleKey = "throttle:skip"

// SkipThrottle disables ThrottlerGuard on a controller or route.
func SkipThrottle() gnest.Metadata { return gnest.SetMetadata(SkipThrottleKey, true) }

// ThrottlerGuard limits each key to Limit hits per TTL. Rejected requests get a 429.
type ThrottlerGuard struct {
	Limit   int
	TTL     time.Duration
	Storage ThrottlerStorage
	// KeyFunc defaults to the client IP.
	KeyFunc func(ctx *gnest.ExecutionContext) string
}

func NewThrottlerGuard(limit int, ttl time.Duration, storage ThrottlerStorage) *ThrottlerGuard {
	return &ThrottlerGuard{Limit: limit, TTL: ttl, Storage: storage}
}

func (g *ThrottlerGuard) CanActivate(ctx *gnest.ExecutionContext) (bool, error) {
	if skip, _ := ctx.Metadata(SkipThrottleKey).(bool); skip {
		return true, nil
	}
	key := ctx.ClientIP()
	if g.KeyFunc != nil {
		key = g.KeyFunc(ctx)
	}
	rec, err := g.Storage.Increment(ctx, ctx.Method()+" "+ctx.Route()+"|"+key, g.Limit, g.TTL)
	if err != nil {
		return false, err
	}

	reset := seconds(rec.TimeToExpire)
	ctx.SetHeader("X-RateLimit-Limit", strconv.Itoa(g.Limit))
	ctx.SetHeader("X-RateLimit-Remaining", strconv.Itoa(max(g.Limit-rec.TotalHits, 0)))
	ctx.SetHeader("X-RateLimit-Reset", strconv.Itoa(reset))

	if rec.TotalHits > g.Limit {
		ctx.SetHeader("Retry-After", strconv.Itoa(reset))
		return false, gnest.NewHttpException(http.StatusTooManyRequests, "ThrottlerException: Too Many Requests")
	}
	return true, nil
}

func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
