package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Consumer consumes send jobs from RabbitMQ with a bounded worker pool.
// Delivery is at-least-once: a job whose handler returns an error is
// requeued, so handlers must tolerate redelivery.
type Consumer struct {
	conn        *Connection
	queueName   string
	concurrency int
	handler     JobHandler
	log         zerolog.Logger
	stopChan    chan struct{}
	doneChan    chan struct{}
}

// JobHandler processes one send job. A non-nil error requeues the job.
type JobHandler func(job *SendJob) error

// NewConsumer creates a new consumer instance
func NewConsumer(conn *Connection, queueName string, concurrency int, handler JobHandler, log zerolog.Logger) (*Consumer, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if queueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}

	// Declare queue (same settings as publisher: durable, non-auto-delete)
	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &Consumer{
		conn:        conn,
		queueName:   queueName,
		concurrency: concurrency,
		handler:     handler,
		log:         log,
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}, nil
}

// Start starts consuming jobs from the queue
func (c *Consumer) Start() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}

	// Prefetch matches the worker pool size so the broker keeps every
	// worker busy without flooding this process.
	err = ch.Qos(
		c.concurrency, // prefetch count
		0,             // prefetch size
		false,         // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (manual acknowledgement)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	go func() {
		defer close(c.doneChan)

		var wg sync.WaitGroup
		sem := make(chan struct{}, c.concurrency)

		for {
			select {
			case <-c.stopChan:
				c.log.Info().Msg("consumer stopping")
				wg.Wait()
				return
			case d, ok := <-msgs:
				if !ok {
					c.log.Warn().Msg("delivery channel closed")
					wg.Wait()
					return
				}

				sem <- struct{}{}
				wg.Add(1)
				go func(d amqp.Delivery) {
					defer wg.Done()
					defer func() { <-sem }()

					c.handleDelivery(d)
				}(d)
			}
		}
	}()

	c.log.Info().Str("queue", c.queueName).Int("concurrency", c.concurrency).Msg("consumer started")
	return nil
}

// Stop stops consuming jobs gracefully, waiting for in-flight handlers
func (c *Consumer) Stop() error {
	close(c.stopChan)
	<-c.doneChan

	c.log.Info().Msg("consumer stopped")
	return nil
}

// handleDelivery decodes one delivery, runs the handler, and settles the
// message. A body that cannot be decoded is acked and dropped: requeueing it
// would cycle the same broken payload forever, while handler errors are
// transient and get the message redelivered.
func (c *Consumer) handleDelivery(d amqp.Delivery) {
	var job SendJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		c.log.Error().Err(err).Msg("dropping undecodable send job")
		d.Ack(false)
		return
	}

	if err := c.handler(&job); err != nil {
		c.log.Error().Err(err).Int("message_log_id", job.MessageLogID).Msg("send job failed, requeueing")
		d.Nack(false, true)
		return
	}

	d.Ack(false)
}
