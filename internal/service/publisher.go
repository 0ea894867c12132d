// Package service contains background services started next to the HTTP
// server.  Publisher ships access events to RabbitMQ without ever blocking
// the request path.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/iliyamo/flowsurfer-web/internal/queue"
)

// defaultFlushTimeout bounds how long Run keeps publishing buffered events
// after its context ends.
const defaultFlushTimeout = 5 * time.Second

// Publisher buffers events in memory and publishes them from a single
// goroutine over one long-lived connection.  Once Run's context ends the
// publisher is closed: buffered events get one bounded flush and every event
// that is not published is counted in Dropped.
type Publisher struct {
	url     string
	queue   string
	events  chan q.AccessEvent
	dropped atomic.Uint64

	// FlushTimeout caps the final flush.  Zero means 5s.
	FlushTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewPublisher returns a publisher with room for buffer pending events.
func NewPublisher(url, queue string, buffer int) *Publisher {
	if buffer < 1 {
		buffer = 1
	}
	return &Publisher{url: url, queue: queue, events: make(chan q.AccessEvent, buffer)}
}

// Enqueue hands ev to the background publisher.  It never blocks; when the
// buffer is full or the publisher has shut down the event is dropped and
// false is returned.
func (p *Publisher) Enqueue(ev q.AccessEvent) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return false
	}
	select {
	case p.events <- ev:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Dropped reports how many events were discarded: buffer full, publish
// failed, or still buffered when the publisher shut down.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// Pending reports how many events are waiting to be published.
func (p *Publisher) Pending() int { return len(p.events) }

// Run dials the broker and publishes buffered events until ctx is cancelled,
// reconnecting with exponential backoff capped at 30s.  When ctx ends Run
// flushes what is left before returning; without a live channel the leftovers
// are dropped.
func (p *Publisher) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			log.Printf("rabbitmq: dial failed: %v; retrying in %s", err, backoff)
			if !wait(ctx, backoff) {
				p.flush(nil)
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = p.publishLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			p.flush(nil)
			return ctx.Err()
		}
		log.Printf("rabbitmq: publish loop ended: %v; reconnecting", err)
	}
}

func (p *Publisher) publishLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	send := func(ctx context.Context, pub amqp.Publishing) error {
		return ch.PublishWithContext(ctx, "", p.queue, false, false, pub)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			if n := p.flush(send); n > 0 {
				log.Printf("rabbitmq: flushed %d buffered events on shutdown", n)
			}
			return ctx.Err()
		case amqpErr := <-closed:
			return fmt.Errorf("connection closed: %v", amqpErr)
		case ev := <-p.events:
			pub, err := Publishing(ev)
			if err != nil {
				log.Printf("rabbitmq: marshal event failed: %v", err)
				continue
			}
			// default exchange, routing key = queue name
			if err := send(ctx, pub); err != nil {
				p.dropped.Add(1)
				return fmt.Errorf("publish: %w", err)
			}
		}
	}
}

// flush closes the publisher to new events and publishes whatever is still
// buffered through send within FlushTimeout.  After the first failure, or
// with a nil send, the remaining events are dropped.  It returns how many
// events were published and is safe to call more than once.
func (p *Publisher) flush(send func(context.Context, amqp.Publishing) error) int {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	timeout := p.FlushTimeout
	if timeout <= 0 {
		timeout = defaultFlushTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sent := 0
	for {
		select {
		case ev := <-p.events:
			if send == nil || ctx.Err() != nil {
				p.dropped.Add(1)
				continue
			}
			pub, err := Publishing(ev)
			if err != nil {
				p.dropped.Add(1)
				continue
			}
			if err := send(ctx, pub); err != nil {
				log.Printf("rabbitmq: flush publish failed: %v; dropping the rest", err)
				p.dropped.Add(1)
				send = nil
				continue
			}
			sent++
		default:
			if lost := p.dropped.Load(); lost > 0 {
				log.Printf("rabbitmq: publisher closed, %d events dropped in total", lost)
			}
			return sent
		}
	}
}

// Publishing wraps ev as a persistent JSON message.
func Publishing(ev q.AccessEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		MessageId:    ev.RequestID,
		Body:         body,
	}, nil
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
