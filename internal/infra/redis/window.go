package redis

import (
	"context"
	"strconv"
	"time"

	re "github.com/redis/go-redis/v9"
)

// WindowHit is the state of a sliding window after recording one hit.
type WindowHit struct {
	Hits int
	// Oldest is the time of the oldest hit still inside the window.
	Oldest time.Time
}

// Hit records member at now in the sorted set key and returns the number of hits
// inside [now-window, now]. The trim, insert, count and expiry run in one
// MULTI/EXEC so concurrent callers observe a strict order.
func (r *Client) Hit(ctx context.Context, key, member string, now time.Time, window time.Duration) (WindowHit, error) {
	nowMs := now.UnixMilli()
	var card *re.IntCmd
	var oldest *re.ZSliceCmd
	_, err := r.client.TxPipelined(ctx, func(pipe re.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(nowMs-window.Milliseconds(), 10))
		pipe.ZAdd(ctx, key, re.Z{Score: float64(nowMs), Member: member})
		card = pipe.ZCard(ctx, key)
		oldest = pipe.ZRangeWithScores(ctx, key, 0, 0)
		pipe.PExpire(ctx, key, window)
		return nil
	})
	if err != nil {
		return WindowHit{}, err
	}
	hit := WindowHit{Hits: int(card.Val()), Oldest: now}
	if zs := oldest.Val(); len(zs) > 0 {
		hit.Oldest = time.UnixMilli(int64(zs[0].Score))
	}
	return hit, nil
}
