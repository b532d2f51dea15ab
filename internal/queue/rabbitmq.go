package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ReminderJob asks a worker to deliver one due reminder.
type ReminderJob struct {
	ReminderID string    `json:"reminder_id"`
	QueuedAt   time.Time `json:"queued_at"`
}

// ErrPermanent marks a job that must not be redelivered.
var ErrPermanent = errors.New("permanent_failure")

type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func declare(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	return err
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := declare(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func (p *Publisher) PublishJSON(ctx context.Context, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	err = p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         b,
		},
	)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// PublishReminder implements the reminder dispatcher's queue.
func (p *Publisher) PublishReminder(ctx context.Context, reminderID string) error {
	return p.PublishJSON(ctx, ReminderJob{ReminderID: reminderID, QueuedAt: time.Now().UTC()})
}

// Handler processes one job. Returning an error wrapping ErrPermanent drops
// the message; any other error requeues it.
type Handler func(ctx context.Context, job ReminderJob) error

type Consumer struct {
	URL      string
	Queue    string
	Prefetch int
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Run consumes until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefetch := c.Prefetch
	if prefetch <= 0 {
		prefetch = 16
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	conn, err := amqp.Dial(c.URL)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("amqp qos: %w", err)
	}
	if err := declare(ch, c.Queue); err != nil {
		return fmt.Errorf("amqp queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}

	logger.Info("consuming", "queue", c.Queue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("amqp delivery channel closed")
			}
			process(ctx, logger, timeout, msg.Body, msg.Redelivered, msg, handle)
		}
	}
}

type acker interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func process(ctx context.Context, logger *slog.Logger, timeout time.Duration, body []byte, redelivered bool, ack acker, handle Handler) {
	var job ReminderJob
	if err := json.Unmarshal(body, &job); err != nil || job.ReminderID == "" {
		logger.Warn("dropping malformed job", "err", err)
		_ = ack.Nack(false, false)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	err := handle(jobCtx, job)
	cancel()

	switch {
	case err == nil:
		_ = ack.Ack(false)
	case errors.Is(err, ErrPermanent):
		logger.Warn("dropping job", "reminder_id", job.ReminderID, "err", err)
		_ = ack.Nack(false, false)
	case redelivered:
		// One retry only; the scheduler picks the reminder up again while it
		// is still active.
		logger.Error("job failed after redelivery", "reminder_id", job.ReminderID, "err", err)
		_ = ack.Nack(false, false)
	default:
		logger.Warn("job failed, requeueing", "reminder_id", job.ReminderID, "err", err)
		_ = ack.Nack(false, true)
	}
}
