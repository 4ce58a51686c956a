// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"spatial-hub-go/internal/config"
	"spatial-hub-go/pkg/log"
	"spatial-hub-go/pkg/tasks"
)

const (
	maxTaskAttempts = 3
	attemptsTTL     = 24 * time.Hour
)

// retryDelay 是任务处理失败后再次尝试前的等待时间。
var retryDelay = 5 * time.Second

// ErrRetryLater 表示任务暂时无法执行（例如另一个检查正持有锁）。
// 处理器返回包装了它的错误时，消费者会继续等待重试，且不计入失败次数。
var ErrRetryLater = errors.New("task should be retried later")

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ConsistencyTask) error
}

// Producer 向 Kafka 发布一致性事件和异步任务。
type Producer struct {
	writer    *kafka.Writer
	topic     string
	taskTopic string
}

// NewProducer 创建 Kafka 生产者。topic 写在每条消息上，同一个 writer 可以写多个主题。
func NewProducer(cfg config.KafkaConfig) *Producer {
	p := &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers(cfg.Brokers)...),
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			ErrorLogger:            kafka.LoggerFunc(log.Logger().Errorf),
		},
		topic:     cfg.Topic,
		taskTopic: cfg.TaskTopic,
	}
	log.Info("Kafka 生产者初始化成功")
	return p
}

// PublishEvent 发送一条检查/修复完成事件。
func (p *Producer) PublishEvent(ctx context.Context, event tasks.ConsistencyEvent) error {
	return p.publish(ctx, p.topic, event.Kind, event)
}

// PublishTask 发送一个异步一致性任务。
func (p *Producer) PublishTask(ctx context.Context, task tasks.ConsistencyTask) error {
	return p.publish(ctx, p.taskTopic, task.TaskID, task)
}

func (p *Producer) publish(ctx context.Context, topic, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

// Close 关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者来处理一致性任务，直到 ctx 被取消。
//
// 每个任务最多尝试 maxTaskAttempts 次，尝试次数记录在 Redis 中，达到上限后提交 offset 放弃该任务。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, rdb *redis.Client, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers(cfg.Brokers),
		Topic:       cfg.TaskTopic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		ErrorLogger: kafka.LoggerFunc(log.Logger().Errorf),
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.TaskTopic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)
		for !handleMessage(ctx, rdb, processor, m) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

// handleMessage 处理一条消息并返回是否应当提交 offset。
func handleMessage(ctx context.Context, rdb *redis.Client, processor TaskProcessor, m kafka.Message) bool {
	var task tasks.ConsistencyTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		return true
	}

	attemptsKey := attemptsKeyFor(task, m)
	log.Infof("开始处理一致性任务: ID=%s, Kind=%s", task.TaskID, task.Kind)
	if err := processor.Process(ctx, task); err != nil {
		if errors.Is(err, ErrRetryLater) {
			log.Infof("一致性任务暂时无法执行，稍后重试: ID=%s, Reason: %v", task.TaskID, err)
			return false
		}
		log.Errorf("处理一致性任务失败: ID=%s, Error: %v", task.TaskID, err)
		attempts, incErr := rdb.Incr(ctx, attemptsKey).Result()
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，稍后重试
			return false
		}
		_ = rdb.Expire(ctx, attemptsKey, attemptsTTL).Err()
		if attempts >= maxTaskAttempts {
			log.Errorf("一致性任务多次失败(>=%d)，提交 offset 终止重试: ID=%s", maxTaskAttempts, task.TaskID)
			_ = rdb.Del(ctx, attemptsKey).Err()
			return true
		}
		return false
	}

	log.Infof("一致性任务处理成功: ID=%s", task.TaskID)
	_ = rdb.Del(ctx, attemptsKey).Err()
	return true
}

func attemptsKeyFor(task tasks.ConsistencyTask, m kafka.Message) string {
	if task.TaskID != "" {
		return "kafka:attempts:" + task.TaskID
	}
	return fmt.Sprintf("kafka:attempts:%s:%d:%d", m.Topic, m.Partition, m.Offset)
}

func brokers(list string) []string {
	var out []string
	for _, b := range strings.Split(list, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
