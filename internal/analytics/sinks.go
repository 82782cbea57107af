package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(ctx context.Context, e Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"event", e.Name, "document_id", e.DocumentID}
	switch {
	case e.Attempt != nil:
		a := e.Attempt
		level := "original"
		if a.CompressionLevel != nil {
			level = fmt.Sprintf("%d", *a.CompressionLevel)
		}
		attrs = append(attrs,
			"attempt", a.AttemptNumber,
			"level", level,
			"input_bytes", a.InputSizeBytes,
			"output_bytes", a.OutputSizeBytes,
			"heap_pct", fmt.Sprintf("%.1f", a.HeapUsagePercent),
			"duration_ms", a.DurationMs,
		)
		if a.Error != "" {
			attrs = append(attrs, "error", a.Error)
		}
	case e.Exhausted != nil:
		attrs = append(attrs,
			"attempts", e.Exhausted.Attempts,
			"original_bytes", e.Exhausted.OriginalSizeBytes,
			"error", e.Exhausted.LastError,
		)
	}
	if e.Name == EventFailureExhausted {
		logger.WarnContext(ctx, "ocr analytics", attrs...)
	} else {
		logger.InfoContext(ctx, "ocr analytics", attrs...)
	}
	return nil
}

// MemorySink keeps the most recent events in a ring buffer.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool
}

// NewMemorySink creates a ring holding up to capacity events.
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemorySink{events: make([]Event, capacity)}
}

func (s *MemorySink) Emit(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[s.next] = e
	s.next = (s.next + 1) % len(s.events)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// Recent returns up to n events, oldest first. n <= 0 returns all held.
func (s *MemorySink) Recent(n int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ordered []Event
	if s.full {
		ordered = append(ordered, s.events[s.next:]...)
	}
	ordered = append(ordered, s.events[:s.next]...)
	if n > 0 && n < len(ordered) {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}

// Names returns the names of all held events, oldest first.
func (s *MemorySink) Names() []string {
	events := s.Recent(0)
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}

// RedisConfig configures a RedisSink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
	Timeout  time.Duration
}

// RedisSink appends validated events to a Redis stream.
type RedisSink struct {
	client  *redis.Client
	stream  string
	maxLen  int64
	timeout time.Duration
}

// NewRedisSink connects and pings the server.
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return newRedisSink(client, cfg), nil
}

func newRedisSink(client *redis.Client, cfg RedisConfig) *RedisSink {
	stream := cfg.Stream
	if stream == "" {
		stream = "scanline:ocr-events"
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisSink{client: client, stream: stream, maxLen: maxLen, timeout: timeout}
}

// Stream returns the stream key events are appended to.
func (s *RedisSink) Stream() string { return s.stream }

func (s *RedisSink) Emit(ctx context.Context, e Event) error {
	if err := Validate(e); err != nil {
		return err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"name":    e.Name,
			"version": e.Version,
			"event":   string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd: %w", err)
	}
	return nil
}

// Read returns up to count events from the start of the stream.
func (s *RedisSink) Read(ctx context.Context, count int64) ([]Event, error) {
	msgs, err := s.client.XRangeN(ctx, s.stream, "-", "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrange: %w", err)
	}
	events := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["event"].(string)
		if !ok {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode stream entry %s: %w", m.ID, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// Close closes the Redis client.
func (s *RedisSink) Close() error { return s.client.Close() }

// Multi fans an event out to every sink. All sinks are tried; failures are
// joined.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
