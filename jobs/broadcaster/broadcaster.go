// Package broadcaster publishes outbox rows to Kafka and retires them once
// the brokers acknowledge.
package broadcaster

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"mbp10/infra/metrics"
	exitwal "mbp10/infra/wal/exit"
)

const RunIDHeader = "run-id"

type Options struct {
	Topic      string
	RunID      string
	BatchSize  int
	Interval   time.Duration
	MaxRetries uint32
	Metrics    *metrics.Metrics
	Log        zerolog.Logger
}

type Broadcaster struct {
	outbox   *exitwal.Outbox
	producer sarama.SyncProducer
	opts     Options
	log      zerolog.Logger
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

// New dials the brokers with a synchronous, all-replica-ack producer.
func New(outbox *exitwal.Outbox, brokers []string, opts Options) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Idempotent = false
	cfg.ClientID = "mbp10"

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewWithProducer(outbox, producer, opts), nil
}

// NewWithProducer uses an existing producer; Close closes it.
func NewWithProducer(outbox *exitwal.Outbox, producer sarama.SyncProducer, opts Options) *Broadcaster {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 256
	}
	if opts.Interval <= 0 {
		opts.Interval = 250 * time.Millisecond
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 5
	}
	return &Broadcaster{
		outbox:   outbox,
		producer: producer,
		opts:     opts,
		log:      opts.Log.With().Str("component", "broadcaster").Str("topic", opts.Topic).Logger(),
	}
}

// ------------------------------------------------
// LOOP
// ------------------------------------------------

// Run publishes on every tick until ctx is done. Rows left SENT by an
// earlier process are requeued first, so delivery is at least once.
func (b *Broadcaster) Run(ctx context.Context) error {
	if err := b.requeueSent(); err != nil {
		return err
	}
	b.log.Info().Msg("started")

	ticker := time.NewTicker(b.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Info().Msg("stopped")
			return nil
		case <-ticker.C:
			if _, err := b.PublishOnce(); err != nil {
				b.log.Error().Err(err).Msg("publish pass failed")
			}
		}
	}
}

// Drain publishes until the outbox is empty or ctx is done.
func (b *Broadcaster) Drain(ctx context.Context) error {
	for {
		pending, err := b.outbox.Pending()
		if err != nil {
			return err
		}
		if pending == 0 {
			return nil
		}

		sent, err := b.PublishOnce()
		if err != nil {
			return err
		}
		if sent > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("drain with %d rows pending: %w", pending, ctx.Err())
		case <-time.After(b.opts.Interval):
		}
	}
}

// ------------------------------------------------
// PUBLISH
// ------------------------------------------------

// PublishOnce retries up to one batch of FAILED rows, then sends up to one
// batch of NEW rows, and returns how many were acknowledged. A row failing
// in this pass waits for the next one.
func (b *Broadcaster) PublishOnce() (int, error) {
	sent := 0
	for _, state := range []exitwal.State{exitwal.StateFailed, exitwal.StateNew} {
		err := b.outbox.ScanByState(state, b.opts.BatchSize, func(seq uint64, e exitwal.Entry) error {
			ok, err := b.send(seq, e)
			if ok {
				sent++
			}
			return err
		})
		if err != nil {
			return sent, err
		}
	}

	if b.opts.Metrics != nil {
		if n, err := b.outbox.Pending(); err == nil {
			b.opts.Metrics.OutboxPending.Set(float64(n))
		}
	}
	return sent, nil
}

// send reports whether the entry at seq was acknowledged. The error is
// only for outbox failures; a broker failure marks the entry FAILED.
func (b *Broadcaster) send(seq uint64, e exitwal.Entry) (bool, error) {
	if err := b.outbox.UpdateState(seq, exitwal.StateSent, e.Retries); err != nil {
		return false, err
	}

	msg := &sarama.ProducerMessage{
		Topic: b.opts.Topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(seq, 10)),
		Value: sarama.ByteEncoder(e.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(RunIDHeader), Value: []byte(b.opts.RunID)},
		},
	}

	if _, _, err := b.producer.SendMessage(msg); err != nil {
		if b.opts.Metrics != nil {
			b.opts.Metrics.PublishFailedTotal.Inc()
		}
		retries := e.Retries + 1
		if retries >= b.opts.MaxRetries {
			b.log.Error().Err(err).Uint64("seq", seq).Uint32("retries", retries).Msg("dropping undeliverable row")
			return false, b.outbox.Delete(seq)
		}
		b.log.Warn().Err(err).Uint64("seq", seq).Uint32("retries", retries).Msg("publish failed")
		return false, b.outbox.UpdateState(seq, exitwal.StateFailed, retries)
	}

	if b.opts.Metrics != nil {
		b.opts.Metrics.PublishedTotal.Inc()
	}
	return true, b.outbox.Delete(seq)
}

func (b *Broadcaster) requeueSent() error {
	n := 0
	err := b.outbox.ScanByState(exitwal.StateSent, 0, func(seq uint64, e exitwal.Entry) error {
		n++
		return b.outbox.UpdateState(seq, exitwal.StateNew, e.Retries)
	})
	if n > 0 {
		b.log.Info().Int("rows", n).Msg("requeued rows left in flight")
	}
	return err
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
