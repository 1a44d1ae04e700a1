// Package kafka reads MBO records from a Kafka topic. Each message value
// is one feed line in the same column layout as the CSV file.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"

	"mbp10/domain/orderbook"
	"mbp10/infra/feed"
)

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
	// MaxWait bounds how long a fetch blocks for new data.
	MaxWait time.Duration
	// Skipped, when set, counts messages dropped as unparseable.
	Skipped prometheus.Counter
}

// messageReader is the subset of *kafka.Reader the source needs.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Source is a feed.Source over a Kafka topic. Messages that do not parse
// are skipped and counted.
type Source struct {
	reader  messageReader
	skipped uint64
	counter prometheus.Counter
}

var _ feed.Source = (*Source)(nil)

func NewSource(cfg Config) (*Source, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka source: brokers and topic are required")
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 500 * time.Millisecond
	}
	return &Source{
		counter: cfg.Skipped,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  cfg.MaxWait,
		}),
	}, nil
}

func (s *Source) Next(ctx context.Context) (orderbook.Event, error) {
	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return orderbook.Event{}, err
			}
			return orderbook.Event{}, fmt.Errorf("kafka read: %w", err)
		}
		ev, ok := feed.ParseLine(string(msg.Value))
		if !ok {
			s.skipped++
			if s.counter != nil {
				s.counter.Inc()
			}
			continue
		}
		return ev, nil
	}
}

// Skipped returns how many messages were dropped as unparseable.
func (s *Source) Skipped() uint64 { return s.skipped }

func (s *Source) Close() error {
	return s.reader.Close()
}
