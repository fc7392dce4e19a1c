package messaging_test

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/lease-loan/finance"
	"github.com/warp/lease-loan/lease"
	"github.com/warp/lease-loan/messaging"
)

type stubStream struct {
	args []*redis.XAddArgs
	err  error
}

func (s *stubStream) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	s.args = append(s.args, a)
	return redis.NewStringResult("1-0", s.err)
}

func transfer() lease.Transfer {
	return lease.Transfer{
		LoanID:      "loan-1",
		RepaymentID: "rep-1",
		Amount:      finance.NewCoin(2_500_000, finance.USDC),
		At:          finance.TimestampFromNanos(42),
	}
}

func TestRedisTransferPublisher_Publish(t *testing.T) {
	stream := &stubStream{}
	pub := messaging.NewRedisTransferPublisher(stream, "", zap.NewNop())

	require.NoError(t, pub.Publish(context.Background(), transfer()))

	require.Len(t, stream.args, 1)
	args := stream.args[0]
	assert.Equal(t, messaging.DefaultStream, args.Stream)
	assert.True(t, args.Approx)
	assert.EqualValues(t, 100000, args.MaxLen)

	values, ok := args.Values.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "loan-1", values["loan_id"])
	assert.Equal(t, "rep-1", values["repayment_id"])
	assert.Equal(t, "2.5", values["amount"])
	assert.Equal(t, "2500000", values["minor_units"])
	assert.Equal(t, "USDC", values["currency"])
	assert.Equal(t, uint64(42), values["at"])
}

func TestRedisTransferPublisher_PublishError(t *testing.T) {
	stream := &stubStream{err: errors.New("connection refused")}
	pub := messaging.NewRedisTransferPublisher(stream, "custom", zap.NewNop())

	err := pub.Publish(context.Background(), transfer())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, "custom", stream.args[0].Stream)
}

func TestLogTransferPublisher_Publish(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	pub := messaging.NewLogTransferPublisher(zap.New(core))

	require.NoError(t, pub.Publish(context.Background(), transfer()))

	entries := logs.FilterMessage("margin transfer").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "loan-1", entries[0].ContextMap()["loan_id"])
}
