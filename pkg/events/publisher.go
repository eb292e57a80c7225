package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Booking lifecycle event types
const (
	TypeBookingReserved  = "booking.reserved"
	TypeBookingConfirmed = "booking.confirmed"
	TypeBookingAbandoned = "booking.abandoned"
	TypeBookingCancelled = "booking.cancelled"
)

// BookingEvent is the message published on every booking state change
type BookingEvent struct {
	Type       string     `json:"type"`
	BookingID  uuid.UUID  `json:"booking_id"`
	ScheduleID *uuid.UUID `json:"schedule_id,omitempty"`
	UserID     uuid.UUID  `json:"user_id"`
	Seats      []string   `json:"seats"`
	Status     string     `json:"status"`
	Amount     float64    `json:"amount"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Publisher publishes booking events
type Publisher interface {
	Publish(ctx context.Context, event BookingEvent) error
	Close() error
}

// ErrPublisherClosed is returned by Publish after Close
var ErrPublisherClosed = errors.New("publisher closed")

// ErrQueueFull is returned when events arrive faster than the broker accepts them
var ErrQueueFull = errors.New("event queue full")

const defaultQueueSize = 256

// KafkaPublisher publishes events to a Kafka topic keyed by booking id,
// so all events of one booking land on the same partition in order.
// Publish only enqueues; a single sender goroutine delivers the queue in
// order and logs delivery failures.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *logrus.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan *sarama.ProducerMessage
	done   chan struct{}
}

// NewKafkaPublisher connects a synchronous producer to the brokers
func NewKafkaPublisher(brokers []string, topic string, logger *logrus.Logger) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return NewKafkaPublisherWithProducer(p, topic, logger), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *logrus.Logger) *KafkaPublisher {
	return newKafkaPublisher(producer, topic, logger, defaultQueueSize)
}

func newKafkaPublisher(producer sarama.SyncProducer, topic string, logger *logrus.Logger, queueSize int) *KafkaPublisher {
	p := &KafkaPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
		queue:    make(chan *sarama.ProducerMessage, queueSize),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish encodes the event and queues it for delivery without waiting on
// the brokers
func (p *KafkaPublisher) Publish(ctx context.Context, event BookingEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.BookingID.String()),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(event.Type)},
		},
		Metadata: event.Type,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		return fmt.Errorf("failed to publish %s: %w", event.Type, ErrQueueFull)
	}
}

func (p *KafkaPublisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		if _, _, err := p.producer.SendMessage(msg); err != nil {
			key, _ := msg.Key.Encode()
			p.logger.WithError(err).WithFields(logrus.Fields{
				"event":      msg.Metadata,
				"booking_id": string(key),
			}).Error("Failed to publish booking event")
		}
	}
}

// Close stops accepting events, delivers what is queued and closes the producer
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.producer.Close()
}

// LogPublisher writes events to the log. Used when no brokers are configured.
type LogPublisher struct {
	logger *logrus.Logger
}

// NewLogPublisher creates a LogPublisher
func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event
func (p *LogPublisher) Publish(ctx context.Context, event BookingEvent) error {
	p.logger.WithFields(logrus.Fields{
		"event":      event.Type,
		"booking_id": event.BookingID,
		"status":     event.Status,
		"seats":      event.Seats,
	}).Debug("Booking event")
	return nil
}

// Close is a no-op
func (p *LogPublisher) Close() error {
	return nil
}
