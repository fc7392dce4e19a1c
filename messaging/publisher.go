// Package messaging delivers margin transfers to the margin recipient.
package messaging

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/warp/lease-loan/lease"
)

// DefaultStream is the Redis stream margin transfers are appended to.
const DefaultStream = "lease:margin-transfers"

// streamMaxLen keeps roughly the last 100k transfers.
const streamMaxLen = 100000

// StreamAdder is the part of a Redis client the publisher needs.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisTransferPublisher appends margin transfers to a Redis stream.
type RedisTransferPublisher struct {
	client StreamAdder
	stream string
	logger *zap.Logger
}

func NewRedisTransferPublisher(client StreamAdder, stream string, logger *zap.Logger) *RedisTransferPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisTransferPublisher{client: client, stream: stream, logger: logger}
}

func (p *RedisTransferPublisher) Publish(ctx context.Context, t lease.Transfer) error {
	args := &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"loan_id":      string(t.LoanID),
			"repayment_id": t.RepaymentID,
			"amount":       t.Amount.Decimal().String(),
			"minor_units":  fmt.Sprintf("%d", t.Amount.Amount),
			"currency":     t.Amount.Currency.String(),
			"at":           t.At.Nanos(),
		},
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		p.logger.Error("failed to publish margin transfer",
			zap.Error(err),
			zap.String("loan_id", string(t.LoanID)),
			zap.String("repayment_id", t.RepaymentID),
		)
		return fmt.Errorf("failed to publish margin transfer: %w", err)
	}

	p.logger.Debug("margin transfer published",
		zap.String("loan_id", string(t.LoanID)),
		zap.String("stream", p.stream),
		zap.String("entry_id", id),
	)
	return nil
}

// LogTransferPublisher only logs transfers. Used when Redis is disabled.
type LogTransferPublisher struct {
	logger *zap.Logger
}

func NewLogTransferPublisher(logger *zap.Logger) *LogTransferPublisher {
	return &LogTransferPublisher{logger: logger}
}

func (p *LogTransferPublisher) Publish(_ context.Context, t lease.Transfer) error {
	p.logger.Info("margin transfer",
		zap.String("loan_id", string(t.LoanID)),
		zap.String("repayment_id", t.RepaymentID),
		zap.Stringer("amount", t.Amount),
		zap.Stringer("at", t.At),
	)
	return nil
}

var (
	_ lease.TransferPublisher = (*RedisTransferPublisher)(nil)
	_ lease.TransferPublisher = (*LogTransferPublisher)(nil)
)
