// Package events publishes sheet lifecycle notifications after commit.
package events

import (
	"errors"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

const (
	DefaultTopic          = "hojas.sheet-events"
	DefaultEnqueueTimeout = 250 * time.Millisecond
)

// AsyncProducer is a domain.EventPublisher backed by a Kafka topic. Delivery
// errors are logged. Publish waits at most the enqueue timeout for room in
// the producer buffer and drops the event after that.
type AsyncProducer struct {
	producer       sarama.AsyncProducer
	logger         *zap.Logger
	topic          string
	types          map[domain.SheetEventType]bool
	enqueueTimeout time.Duration

	mu       sync.Mutex
	closed   bool
	closing  chan struct{}
	inflight sync.WaitGroup
	done     chan struct{}
}

// Opt sets an option on an AsyncProducer.
type Opt func(*AsyncProducer)

func WithLogger(logger *zap.Logger) Opt {
	return func(ap *AsyncProducer) {
		if logger != nil {
			ap.logger = logger
		}
	}
}

func WithTopic(topic string) Opt {
	return func(ap *AsyncProducer) {
		if topic != "" {
			ap.topic = topic
		}
	}
}

// WithEnqueueTimeout bounds how long Publish waits on a full producer buffer.
func WithEnqueueTimeout(d time.Duration) Opt {
	return func(ap *AsyncProducer) {
		if d > 0 {
			ap.enqueueTimeout = d
		}
	}
}

// WithEventTypes restricts publishing to the given types. No types means all.
func WithEventTypes(types ...domain.SheetEventType) Opt {
	return func(ap *AsyncProducer) {
		if len(types) == 0 {
			ap.types = nil
			return
		}
		ap.types = make(map[domain.SheetEventType]bool, len(types))
		for _, t := range types {
			ap.types[t] = true
		}
	}
}

// NewAsyncProducer connects to brokerList with keyed hash partitioning so
// events of one sheet stay ordered.
func NewAsyncProducer(brokerList []string, opts ...Opt) (*AsyncProducer, error) {
	if len(brokerList) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	cfg := sarama.NewConfig()
	cfg.ClientID = "hojasd"
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Producer.Return.Errors = true
	producer, err := sarama.NewAsyncProducer(brokerList, cfg)
	if err != nil {
		return nil, err
	}
	return NewAsyncProducerFrom(producer, opts...), nil
}

// NewAsyncProducerFrom wraps an existing producer.
func NewAsyncProducerFrom(producer sarama.AsyncProducer, opts ...Opt) *AsyncProducer {
	ap := &AsyncProducer{
		producer:       producer,
		logger:         zap.NewNop(),
		topic:          DefaultTopic,
		enqueueTimeout: DefaultEnqueueTimeout,
		closing:        make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ap)
	}
	ap.logger = ap.logger.With(zap.String("component", "events.kafka"), zap.String("topic", ap.topic))
	ap.start()
	return ap
}

func (ap *AsyncProducer) Publish(e domain.SheetEvent) {
	if ap.types != nil && !ap.types[e.Type] {
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: ap.topic,
		Key:   sarama.StringEncoder(e.Key()),
		Value: sarama.ByteEncoder(e.Yield()),
	}

	ap.mu.Lock()
	if ap.closed {
		ap.mu.Unlock()
		ap.drop("publish after close dropped", e)
		return
	}
	ap.inflight.Add(1)
	ap.mu.Unlock()
	defer ap.inflight.Done()

	timer := time.NewTimer(ap.enqueueTimeout)
	defer timer.Stop()
	select {
	case ap.producer.Input() <- msg:
	case <-ap.closing:
		ap.drop("publish during shutdown dropped", e)
	case <-timer.C:
		ap.drop("kafka producer buffer full, event dropped", e)
	}
}

// Close stops new publishes, releases any waiting on a full buffer, then
// flushes the producer and waits for the error drain to finish.
func (ap *AsyncProducer) Close() error {
	ap.mu.Lock()
	if ap.closed {
		ap.mu.Unlock()
		return nil
	}
	ap.closed = true
	close(ap.closing)
	ap.mu.Unlock()

	ap.inflight.Wait()
	err := ap.producer.Close()
	<-ap.done
	return err
}

func (ap *AsyncProducer) drop(msg string, e domain.SheetEvent) {
	ap.logger.Warn(msg, zap.String("type", string(e.Type)), zap.String("sheet_id", e.SheetID))
}

func (ap *AsyncProducer) start() {
	go func() {
		defer close(ap.done)
		for perr := range ap.producer.Errors() {
			fields := []zap.Field{zap.Error(perr.Err)}
			if perr.Msg != nil {
				if key, ok := perr.Msg.Key.(sarama.StringEncoder); ok {
					fields = append(fields, zap.String("sheet_id", string(key)))
				}
			}
			ap.logger.Error("kafka delivery failed", fields...)
		}
	}()
}
