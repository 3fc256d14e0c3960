// Package broadcaster drains the outbox and publishes every pending
// trade report to Kafka, independently of the matching core: a broker
// outage stalls this loop, never order intake.
package broadcaster

import (
	"context"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"matchengine/infra/outbox"
)

// Broadcaster publishes NEW outbox records to Kafka and marks them
// ACKED once the broker confirms.
type Broadcaster struct {
	outbox   *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger

	pollInterval time.Duration
	maxRetries   uint32
}

// New opens a synchronous Kafka producer against brokers and returns
// a Broadcaster that will publish to topic. With no brokers configured
// it returns a no-op Broadcaster instead: the engine runs standalone,
// without ever touching sarama.
func New(ob *outbox.Outbox, brokers []string, topic string, logger *zap.Logger) (*Broadcaster, error) {
	if len(brokers) == 0 {
		logger.Info("no kafka brokers configured, trade report broadcasting disabled")
		return &Broadcaster{outbox: ob, topic: topic, logger: logger}, nil
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &Broadcaster{
		outbox:       ob,
		producer:     producer,
		topic:        topic,
		logger:       logger,
		pollInterval: 250 * time.Millisecond,
		maxRetries:   8,
	}, nil
}

// Run polls the outbox for NEW and previously FAILED records on a
// fixed interval until ctx is cancelled. A no-op Broadcaster (no
// brokers configured) just waits for cancellation.
func (b *Broadcaster) Run(ctx context.Context) error {
	if b.producer == nil {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.drain(outbox.StateNew)
			b.drain(outbox.StateFailed)
		}
	}
}

func (b *Broadcaster) drain(state outbox.State) {
	err := b.outbox.ScanByState(state, func(tradeID uint64, rec outbox.Record) error {
		b.publish(tradeID, rec)
		return nil
	})
	if err != nil {
		b.logger.Error("outbox scan failed", zap.String("state", state.String()), zap.Error(err))
	}
}

// publish retries the send with exponential backoff, up to maxRetries
// retries after the first attempt, and records the outcome back into
// the outbox.
func (b *Broadcaster) publish(tradeID uint64, rec outbox.Record) {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(b.maxRetries))

	attempts := rec.Retries
	sendErr := backoff.Retry(func() error {
		attempts++
		_, _, err := b.producer.SendMessage(&sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.StringEncoder(tradeKey(tradeID)),
			Value: sarama.ByteEncoder(rec.Payload),
		})
		return err
	}, policy)

	if sendErr != nil {
		b.logger.Warn("trade report publish failed, will retry next poll",
			zap.Uint64("trade_id", tradeID), zap.Uint32("attempts", attempts), zap.Error(sendErr))
		if err := b.outbox.MarkState(tradeID, outbox.StateFailed, attempts); err != nil {
			b.logger.Error("outbox mark failed state failed", zap.Uint64("trade_id", tradeID), zap.Error(err))
		}
		return
	}

	if err := b.outbox.MarkState(tradeID, outbox.StateAcked, attempts); err != nil {
		b.logger.Error("outbox mark acked failed", zap.Uint64("trade_id", tradeID), zap.Error(err))
	}
}

func tradeKey(tradeID uint64) string {
	return "trade-" + strconv.FormatUint(tradeID, 10)
}

// Close releases the underlying Kafka producer. A no-op Broadcaster
// has none to release.
func (b *Broadcaster) Close() error {
	if b.producer == nil {
		return nil
	}
	return b.producer.Close()
}
