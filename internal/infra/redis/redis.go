package redis

import (
	"context"
	"time"

	re "github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	// DialTimeout defaults to the go-redis default when zero.
	DialTimeout time.Duration
}

// Client is the shared redis connection. It is checked on module init and closed
// on module destroy.
type Client struct {
	client *re.Client
}

func NewClient(cfg Config) *Client {
	rdb := re.NewClient(&re.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	return &Client{client: rdb}
}

// Raw exposes the underlying go-redis client.
func (r *Client) Raw() *re.Client {
	return r.client
}

// Ping 测试连接
func (r *Client) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Client) OnModuleInit(ctx context.Context) error {
	return r.Ping(ctx)
}

// OnApplicationShutdown closes the pool after the server has drained.
func (r *Client) OnApplicationShutdown(context.Context, string) error {
	return r.client.Close()
}
