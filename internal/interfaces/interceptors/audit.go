package interceptors

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gnest/internal/infra/gnest"
	"gnest/internal/infra/kafka"
	"gnest/internal/pkg/token"
)

const AuditKey = "audit:action"

// Audited names the action recorded for a route by AuditInterceptor.
func Audited(action string) gnest.Metadata { return gnest.SetMetadata(AuditKey, action) }

type AuditPublisher interface {
	Publish(ctx context.Context, topic, key string, value sarama.Encoder) error
}

type AuditEvent struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor,omitempty"`
	Method     string    `json:"method"`
	Route      string    `json:"route"`
	Status     int       `json:"status"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
	DurationMs int64     `json:"durationMs"`
}

// AuditInterceptor publishes one AuditEvent per call of a route carrying Audited
// metadata. Publishing failures are logged and never change the response.
type AuditInterceptor struct {
	Publisher AuditPublisher
	Topic     string
	Log       *zap.Logger
	now       func() time.Time
}

func NewAuditInterceptor(p AuditPublisher, topic string, log *zap.Logger) *AuditInterceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditInterceptor{Publisher: p, Topic: topic, Log: log, now: time.Now}
}

func (a *AuditInterceptor) Intercept(ctx *gnest.ExecutionContext, next gnest.CallHandler) (any, error) {
	action, _ := ctx.Metadata(AuditKey).(string)
	if action == "" {
		return next()
	}
	start := a.now()
	res, err := next()

	ev := AuditEvent{
		ID:         uuid.NewString(),
		Action:     action,
		Method:     ctx.Method(),
		Route:      ctx.Route(),
		Status:     statusOf(ctx, err),
		At:         start.UTC(),
		DurationMs: a.now().Sub(start).Milliseconds(),
	}
	if claims, ok := ctx.Principal().(*token.Claims); ok {
		ev.Actor = claims.Subject
	}
	if err != nil {
		ev.Error = err.Error()
	}

	value, encErr := kafka.JSON(ev)
	if encErr == nil {
		encErr = a.Publisher.Publish(ctx, a.Topic, ev.Actor, value)
	}
	if encErr != nil {
		a.Log.Warn("audit publish failed", zap.String("action", action), zap.Error(encErr))
	}
	return res, err
}
