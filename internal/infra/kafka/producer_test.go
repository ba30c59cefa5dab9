package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestProducer_publishes_json(t *testing.T) {
	ap := mocks.NewAsyncProducer(t, mocks.NewTestConfig())
	ap.ExpectInputWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"action":"login"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})
	p := NewProducerFrom(ap, nil)

	v, err := JSON(map[string]string{"action": "login"})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), "audit", "u1", v))
	require.NoError(t, p.OnApplicationShutdown(context.Background(), ""))

	assert.ErrorIs(t, p.Publish(context.Background(), "audit", "", v), ErrProducerClosed)
	require.NoError(t, p.OnApplicationShutdown(context.Background(), ""))
}

func TestProducer_logs_delivery_errors(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	ap := mocks.NewAsyncProducer(t, mocks.NewTestConfig())
	ap.ExpectInputAndFail(sarama.ErrOutOfBrokers)
	p := NewProducerFrom(ap, zap.New(core))

	require.NoError(t, p.Publish(context.Background(), "audit", "", sarama.StringEncoder("x")))
	require.NoError(t, p.OnApplicationShutdown(context.Background(), ""))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kafka async error", logs.All()[0].Message)
}

func TestProducer_not_started(t *testing.T) {
	p := NewProducer(Config{}, nil)
	assert.ErrorIs(t, p.Publish(context.Background(), "audit", "", sarama.StringEncoder("x")), ErrProducerClosed)
}
