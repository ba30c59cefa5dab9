package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

var ErrProducerClosed = errors.New("kafka: producer closed")

type Config struct {
	Brokers []string
}

// Producer is an async producer started on module init and drained on module
// destroy. Delivery errors are logged, never returned to the caller.
type Producer struct {
	brokers []string
	log     *zap.Logger

	mu     sync.RWMutex
	async  sarama.AsyncProducer
	closed bool
	done   chan struct{}
}

func NewProducer(cfg Config, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{brokers: cfg.Brokers, log: log}
}

// NewProducerFrom wraps an already started producer, e.g. sarama/mocks.
func NewProducerFrom(ap sarama.AsyncProducer, log *zap.Logger) *Producer {
	p := NewProducer(Config{}, log)
	p.start(ap)
	return p
}

func newSaramaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Retry.Backoff = time.Second
	config.Producer.Return.Errors = true
	config.Version = sarama.V2_5_0_0
	return config
}

func (p *Producer) OnModuleInit(context.Context) error {
	p.mu.RLock()
	started := p.async != nil
	p.mu.RUnlock()
	if started {
		return nil
	}
	ap, err := sarama.NewAsyncProducer(p.brokers, newSaramaConfig())
	if err != nil {
		return err
	}
	p.start(ap)
	return nil
}

func (p *Producer) start(ap sarama.AsyncProducer) {
	p.mu.Lock()
	p.async = ap
	p.done = make(chan struct{})
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		for err := range ap.Errors() {
			p.log.Error("kafka async error", zap.String("topic", err.Msg.Topic), zap.Error(err.Err))
		}
	}()
}

// Publish queues value on topic. It blocks only while the input channel is full
// or until ctx is done.
func (p *Producer) Publish(ctx context.Context, topic, key string, value sarama.Encoder) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed || p.async == nil {
		return ErrProducerClosed
	}
	msg := &sarama.ProducerMessage{Topic: topic, Value: value}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	select {
	case p.async.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnApplicationShutdown flushes queued messages and waits for the error drain.
// It runs after the server has drained, so in-flight requests can still publish.
func (p *Producer) OnApplicationShutdown(context.Context, string) error {
	p.mu.Lock()
	if p.closed || p.async == nil {
		p.closed = true
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	ap, done := p.async, p.done
	p.mu.Unlock()

	ap.AsyncClose()
	<-done
	return nil
}
