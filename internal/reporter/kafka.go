package reporter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/roach88/bowtie/internal/cases"
	"github.com/roach88/bowtie/internal/engine"
	"github.com/roach88/bowtie/internal/result"
)

var _ engine.Reporter = (*Mirror)(nil)

// MirrorConfig configures the Kafka mirror of the result stream.
type MirrorConfig struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Mirror publishes every result-stream line to a Kafka topic, keyed by run
// id so a run's lines land on one partition in order.
type Mirror struct {
	writer  messageWriter
	version string
	now     func() time.Time

	mu    sync.Mutex
	runID string
}

// NewMirror connects a Mirror to the configured brokers.
func NewMirror(cfg MirrorConfig, version string) (*Mirror, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker must be provided")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic must be provided")
	}

	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		AllowAutoTopicCreation: true,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
	}
	return newMirror(writer, version), nil
}

func newMirror(writer messageWriter, version string) *Mirror {
	return &Mirror{writer: writer, version: version, now: time.Now}
}

func (m *Mirror) publish(ctx context.Context, kind string, v any) error {
	if m.writer == nil {
		return errors.New("mirror is not initialized")
	}
	payload, err := encodeLine(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}

	m.mu.Lock()
	key := m.runID
	m.mu.Unlock()

	msg := kafkago.Message{
		Key:     []byte(key),
		Value:   payload[:len(payload)-1],
		Time:    m.now(),
		Headers: []kafkago.Header{{Key: "kind", Value: []byte(kind)}},
	}
	if err := m.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("mirror %s: %w", kind, err)
	}
	return nil
}

func (m *Mirror) Header(ctx context.Context, info engine.RunInfo) error {
	m.mu.Lock()
	m.runID = info.RunID
	m.mu.Unlock()
	return m.publish(ctx, "header", HeaderFor(info, m.version))
}

func (m *Mirror) Case(ctx context.Context, sc cases.SeqCase) error {
	return m.publish(ctx, "case", sc)
}

func (m *Mirror) Result(ctx context.Context, r result.SeqResult) error {
	return m.publish(ctx, "result", r)
}

func (m *Mirror) Summary(ctx context.Context, s engine.Summary) error {
	return m.publish(ctx, "summary", s)
}

// Close flushes and releases the underlying writer.
func (m *Mirror) Close() error {
	if m.writer == nil {
		return nil
	}
	return m.writer.Close()
}
