package interceptors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"gnest/internal/infra/gnest"
	"gnest/internal/infra/gnest/gnesttest"
	"gnest/internal/infra/kafka"
	"gnest/internal/infra/logger"
)

func TestLoggingInterceptor(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	li := &LoggingInterceptor{LoggerService: &logger.LoggerService{Log: zap.New(core)}}

	app := gnest.New()
	api := app.Group("/items", li)
	api.GET("/:id", func(id int) (map[string]int, error) { return map[string]int{"id": id}, nil }, gnest.Param(0, "id"))
	api.GET("/", func() (any, error) { return nil, gnest.NotFound("no items") })

	assert.Equal(t, http.StatusOK, gnesttest.Do(t, app, http.MethodGet, "/items/7", "").Code)
	assert.Equal(t, http.StatusNotFound, gnesttest.Do(t, app, http.MethodGet, "/items/", "").Code)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "HTTP Request OK", entries[0].Message)
	assert.Equal(t, "/items/:id", entries[0].ContextMap()["route"])
	assert.EqualValues(t, 200, entries[0].ContextMap()["code"])
	assert.Equal(t, "HTTP Request Error", entries[1].Message)
	assert.EqualValues(t, 404, entries[1].ContextMap()["code"])
}

func TestTimeoutInterceptor(t *testing.T) {
	t.Parallel()

	app := gnest.New()
	api := app.Group("/", Timeout(20*time.Millisecond))
	api.GET("/slow", func(ctx context.Context) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
			return "late", nil
		}
	})
	api.GET("/fast", func() (string, error) { return "fast", nil })

	rec := gnesttest.Do(t, app, http.MethodGet, "/slow", "")
	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
	assert.Equal(t, "Request Timeout", gnesttest.Error(t, rec).Message)

	rec = gnesttest.Do(t, app, http.MethodGet, "/fast", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fast", rec.Body.String())
}

func TestEnvelopeInterceptor(t *testing.T) {
	t.Parallel()

	app := gnest.New()
	api := app.Group("/", EnvelopeInterceptor{})
	api.POST("/things", func() (map[string]string, error) { return map[string]string{"name": "a"}, nil }, gnest.HttpCode(http.StatusCreated))
	api.GET("/raw", func() (*gnest.Response, error) {
		return &gnest.Response{Status: http.StatusAccepted, Body: "raw"}, nil
	})
	api.GET("/fail", func() (any, error) { return nil, gnest.BadRequest("nope") })

	rec := gnesttest.Do(t, app, http.MethodPost, "/things", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"code":201,"message":"success","data":{"name":"a"}}`, rec.Body.String())

	rec = gnesttest.Do(t, app, http.MethodGet, "/raw", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "raw", rec.Body.String())

	rec = gnesttest.Do(t, app, http.MethodGet, "/fail", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "nope", gnesttest.Error(t, rec).Message)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []AuditEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, _, _ string, v sarama.Encoder) error {
	b, err := v.Encode()
	if err != nil {
		return err
	}
	var ev AuditEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func TestAuditInterceptor_records_audited_routes_only(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	app := gnest.New()
	api := app.Group("/", NewAuditInterceptor(pub, "audit", nil))
	api.DELETE("/posts/:id", func() (any, error) { return nil, gnest.Forbidden("not yours") }, Audited("post.delete"))
	api.GET("/posts", func() (string, error) { return "[]", nil })

	assert.Equal(t, http.StatusForbidden, gnesttest.Do(t, app, http.MethodDelete, "/posts/1", "").Code)
	assert.Equal(t, http.StatusOK, gnesttest.Do(t, app, http.MethodGet, "/posts", "").Code)

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, "post.delete", ev.Action)
	assert.Equal(t, "/posts/:id", ev.Route)
	assert.Equal(t, http.StatusForbidden, ev.Status)
	assert.Equal(t, "not yours", ev.Error)
	assert.NotEmpty(t, ev.ID)
}

func TestAuditInterceptor_publish_failure_keeps_response(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	pub := &recordingPublisher{err: errors.New("broker down")}
	app := gnest.New()
	app.Group("/", NewAuditInterceptor(pub, "audit", zap.New(core))).
		POST("/login", func() (string, error) { return "ok", nil }, Audited("user.login"))

	rec := gnesttest.Do(t, app, http.MethodPost, "/login", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, logs.FilterMessage("audit publish failed").Len())
}

func TestAuditInterceptor_with_kafka_producer(t *testing.T) {
	t.Parallel()

	ap := mocks.NewAsyncProducer(t, mocks.NewTestConfig())
	ap.ExpectInputWithCheckerFunctionAndSucceed(func(b []byte) error {
		var ev AuditEvent
		if err := json.Unmarshal(b, &ev); err != nil {
			return err
		}
		if ev.Action != "user.create" {
			return errors.New("unexpected action " + ev.Action)
		}
		return nil
	})
	producer := kafka.NewProducerFrom(ap, nil)

	app := gnest.New()
	app.Group("/", NewAuditInterceptor(producer, "audit", nil)).
		POST("/users", func() (string, error) { return "created", nil }, Audited("user.create"))

	assert.Equal(t, http.StatusOK, gnesttest.Do(t, app, http.MethodPost, "/users", "").Code)
	require.NoError(t, producer.OnApplicationShutdown(context.Background(), ""))
}
