package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/flowsurfer-web/internal/model"
)

// Store persists decoded events.  *repository.AccessRepo satisfies it.
type Store interface {
	Insert(ctx context.Context, ev model.AccessEvent) error
}

// Consumer drains the access-event queue.  Each message is appended to
// LogPath as one line and, when Store is set, inserted into the database.
type Consumer struct {
	URL     string
	Queue   string
	LogPath string
	Store   Store

	mu sync.Mutex // serializes writes to LogPath
}

// Run connects to the broker, declares the durable queue and consumes until
// ctx is cancelled.  Lost connections are retried with exponential backoff
// capped at 30s.  Run only returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			log.Printf("access-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("access-consumer: consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("access-consumer: set QoS failed: %v", err)
	}

	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.ConsumeWithContext(ctx, c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.HandleMessage(ctx, d.Body); err != nil {
			log.Printf("access-consumer: handle message failed: %v", err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// HandleMessage decodes one delivery body and records it.  The store insert
// runs first so a rejected event never leaves a line in the log file.
func (c *Consumer) HandleMessage(ctx context.Context, body []byte) error {
	var ev AccessEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if c.Store != nil {
		if err := c.Store.Insert(ctx, ev.Model()); err != nil {
			return err
		}
	}
	if c.LogPath != "" {
		if err := c.appendLine(FormatLine(ev)); err != nil {
			return err
		}
	}
	return nil
}

// FormatLine renders an event as a single access-log line.
func FormatLine(ev AccessEvent) string {
	route := ev.Route
	if route == "" {
		route = "-"
	}
	return fmt.Sprintf("[%s] %s %s route=%s status=%d latency=%dms ip=%s request_id=%s ua=%q\n",
		ev.OccurredAt, ev.Method, ev.Path, route, ev.Status, ev.LatencyMS, ev.RemoteIP, ev.RequestID, ev.UserAgent)
}

func (c *Consumer) appendLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.LogPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(c.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// sleep waits for d or until ctx is done; it reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
