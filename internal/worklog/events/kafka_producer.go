package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var jsonMarshal = json.Marshal

const (
	defaultQueueSize  = 1000
	defaultMaxRetries = 3
)

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerConfig configures the Kafka producer.
type ProducerConfig struct {
	Brokers   []string
	Topic     string
	QueueSize int
	// MaxRetries bounds write attempts after the first failure.
	MaxRetries uint64
}

type Producer struct {
	writer     KafkaWriter
	events     chan Event
	logger     *zap.Logger
	closeChan  chan struct{}
	wg         sync.WaitGroup
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

// NewProducer starts an asynchronous producer. Events are buffered and
// dropped with a warning when the buffer is full, so callers never block on Kafka.
func NewProducer(cfg ProducerConfig, logger *zap.Logger) *Producer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	p := &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			Topic:        cfg.Topic,
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
		events:     make(chan Event, cfg.QueueSize),
		logger:     logger.Named("kafka_producer"),
		closeChan:  make(chan struct{}),
		maxRetries: cfg.MaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 10 * time.Second
			return b
		},
	}

	p.wg.Add(1)
	go p.eventLoop()
	return p
}

// EnsureTopic creates the topic if it does not exist yet.
func EnsureTopic(brokers []string, topic string, partitions int, logger *zap.Logger) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		logger.Warn("failed to create topic (may already exist)", zap.Error(err), zap.String("topic", topic))
	}
	return nil
}

func (p *Producer) Produce(event Event) {
	select {
	case p.events <- event:
	default:
		p.logger.Warn("Kafka producer queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.Uint("company_id", event.CompanyID),
		)
	}
}

func (p *Producer) eventLoop() {
	defer p.wg.Done()
	for {
		select {
		case event := <-p.events:
			p.sendEvent(context.Background(), event)
		case <-p.closeChan:
			p.drain()
			return
		}
	}
}

// drain flushes whatever is still buffered when the producer closes.
func (p *Producer) drain() {
	for {
		select {
		case event := <-p.events:
			p.sendEvent(context.Background(), event)
		default:
			return
		}
	}
}

func (p *Producer) sendEvent(ctx context.Context, event Event) {
	value, err := jsonMarshal(event)
	if err != nil {
		p.logger.Error("Failed to serialize event",
			zap.Error(err),
			zap.String("event_type", string(event.Type)),
			zap.Uint("company_id", event.CompanyID),
		)
		return
	}
	msg := kafka.Message{
		Key:   event.Key(),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	attempt := 0
	op := func() error {
		attempt++
		return p.writer.WriteMessages(ctx, msg)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), p.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		p.logger.Error("Failed to produce event",
			zap.Error(err),
			zap.Int("attempts", attempt),
			zap.String("event_type", string(event.Type)),
			zap.Uint("company_id", event.CompanyID),
		)
	}
}

func (p *Producer) backOff() backoff.BackOff {
	if p.newBackOff == nil {
		return &backoff.ZeroBackOff{}
	}
	return p.newBackOff()
}

// Close stops the event loop after flushing buffered events and closes the writer.
func (p *Producer) Close() {
	close(p.closeChan)
	p.wg.Wait()
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Failed to close Kafka writer", zap.Error(err))
	}
}
