package input

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/roach88/bowtie/internal/cases"
)

// KafkaConfig describes how to consume cases from a Kafka topic.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// messageTypeDone marks the end of a batch of cases on the topic.
const messageTypeDone = "done"

// KafkaSource reads one case per message until a {"type": "done"} message
// arrives or the context ends.
type KafkaSource struct {
	reader messageReader
}

// NewKafkaSource builds a KafkaSource from the provided configuration.
func NewKafkaSource(cfg KafkaConfig) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker must be provided")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic must be provided")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "bowtie"
	}

	readerConfig := kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
	}
	if readerConfig.MinBytes == 0 {
		readerConfig.MinBytes = 1
	}
	if readerConfig.MaxBytes == 0 {
		readerConfig.MaxBytes = 10 * 1024 * 1024
	}
	if readerConfig.MaxWait == 0 {
		readerConfig.MaxWait = time.Second
	}

	return newKafkaSource(kafkago.NewReader(readerConfig)), nil
}

func newKafkaSource(reader messageReader) *KafkaSource {
	return &KafkaSource{reader: reader}
}

// Cases yields decoded cases. Context cancellation ends the sequence
// without an error.
func (k *KafkaSource) Cases(ctx context.Context) iter.Seq2[cases.TestCase, error] {
	return func(yield func(cases.TestCase, error) bool) {
		for {
			msg, err := k.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() == nil {
					yield(cases.TestCase{}, fmt.Errorf("read message: %w", err))
				}
				return
			}

			var envelope struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg.Value, &envelope); err != nil {
				yield(cases.TestCase{}, fmt.Errorf("offset %d: decode message: %w", msg.Offset, err))
				return
			}
			if envelope.Type == messageTypeDone {
				return
			}

			tc, err := DecodeCase(msg.Value)
			if err != nil {
				yield(cases.TestCase{}, fmt.Errorf("offset %d: %w", msg.Offset, err))
				return
			}
			if !yield(tc, nil) {
				return
			}
		}
	}
}

// Close releases the underlying Kafka reader.
func (k *KafkaSource) Close() error {
	return k.reader.Close()
}
