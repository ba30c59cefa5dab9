package handlers

import (
	"context"
	"net/http"
	"time"

	"gnest/internal/infra/gnest"
	"gnest/internal/infra/pgsql"
	"gnest/internal/infra/redis"
	"gnest/internal/interfaces/guards"
)

type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type HealthController struct {
	checks []HealthCheck
}

func NewHealthController(rdb *redis.Client, pg *pgsql.PGSQL) *HealthController {
	return &HealthController{checks: []HealthCheck{
		{Name: "redis", Check: rdb.Ping},
		{Name: "pgsql", Check: func(ctx context.Context) error {
			db, err := pg.DB.DB()
			if err != nil {
				return err
			}
			return db.PingContext(ctx)
		}},
	}}
}

func (h *HealthController) Mount(r *gnest.RouterGroup) {
	r.Use(guards.Public(), guards.SkipThrottle())
	r.GET("", h.Check)
}

type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *HealthController) Check(ctx context.Context) (*gnest.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	res := HealthStatus{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			res.Checks[c.Name] = err.Error()
			res.Status = "error"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "up"
	}
	return &gnest.Response{Status: status, Body: res}, nil
}
