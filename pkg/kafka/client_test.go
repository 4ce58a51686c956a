package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"spatial-hub-go/internal/config"
	"spatial-hub-go/pkg/tasks"
)

type stubProcessor struct {
	err   error
	calls []tasks.ConsistencyTask
}

func (p *stubProcessor) Process(_ context.Context, task tasks.ConsistencyTask) error {
	p.calls = append(p.calls, task)
	return p.err
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestHandleMessage(t *testing.T) {
	ctx := context.Background()
	msg := kafka.Message{Topic: "consistency-tasks", Value: []byte(`{"task_id":"t-1","kind":"check","limit":50}`)}

	t.Run("SuccessCommits", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		mr.Set("kafka:attempts:t-1", "2")
		p := &stubProcessor{}

		assert.True(t, handleMessage(ctx, rdb, p, msg))
		require.Len(t, p.calls, 1)
		assert.Equal(t, tasks.KindCheck, p.calls[0].Kind)
		assert.Equal(t, 50, p.calls[0].Limit)
		assert.False(t, mr.Exists("kafka:attempts:t-1"))
	})

	t.Run("MalformedCommits", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		p := &stubProcessor{}

		assert.True(t, handleMessage(ctx, rdb, p, kafka.Message{Value: []byte("{not json")}))
		assert.Empty(t, p.calls)
	})

	t.Run("FailureRetriesUntilLimit", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		p := &stubProcessor{err: errors.New("lock held")}

		assert.False(t, handleMessage(ctx, rdb, p, msg))
		assert.False(t, handleMessage(ctx, rdb, p, msg))
		got, err := mr.Get("kafka:attempts:t-1")
		require.NoError(t, err)
		assert.Equal(t, "2", got)

		assert.True(t, handleMessage(ctx, rdb, p, msg))
		assert.Len(t, p.calls, 3)
	})

	t.Run("BusyTaskIsNeverDropped", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		p := &stubProcessor{err: fmt.Errorf("%w: another consistency operation is running", ErrRetryLater)}

		for i := 0; i < maxTaskAttempts*2; i++ {
			assert.False(t, handleMessage(ctx, rdb, p, msg))
		}
		assert.Len(t, p.calls, maxTaskAttempts*2)
		assert.False(t, mr.Exists("kafka:attempts:t-1"))

		// 锁释放后任务正常完成
		p.err = nil
		assert.True(t, handleMessage(ctx, rdb, p, msg))
	})

	t.Run("RedisDownDoesNotCommit", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		mr.Close()
		p := &stubProcessor{err: errors.New("boom")}

		assert.False(t, handleMessage(ctx, rdb, p, msg))
	})
}

func TestAttemptsKeyFallsBackToOffset(t *testing.T) {
	key := attemptsKeyFor(tasks.ConsistencyTask{}, kafka.Message{Topic: "t", Partition: 1, Offset: 42})
	assert.Equal(t, "kafka:attempts:t:1:42", key)
}

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, brokers(" k1:9092, ,k2:9092"))
	assert.Nil(t, brokers(""))
}

func TestNewProducer(t *testing.T) {
	p := NewProducer(config.KafkaConfig{Brokers: "k1:9092", Topic: "consistency-events", TaskTopic: "consistency-tasks"})
	t.Cleanup(func() { _ = p.Close() })

	assert.Equal(t, "consistency-events", p.topic)
	assert.Equal(t, "consistency-tasks", p.taskTopic)
	assert.NotNil(t, p.writer.ErrorLogger)
}
