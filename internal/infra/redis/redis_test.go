package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClient_init_fails_without_server(t *testing.T) {
	c := NewClient(Config{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer c.OnApplicationShutdown(context.Background(), "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, c.OnModuleInit(ctx))
}

func TestClient_hit_surfaces_connection_errors(t *testing.T) {
	c := NewClient(Config{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer c.OnApplicationShutdown(context.Background(), "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := c.Hit(ctx, "k", "m", time.Now(), time.Second)
	assert.Error(t, err)
}
