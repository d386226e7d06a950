// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"

	"github.com/amaankhan02/movie-maestro/internal/config"
	"github.com/amaankhan02/movie-maestro/pkg/log"
	"github.com/amaankhan02/movie-maestro/pkg/tasks"
	kafkago "github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete indexer implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.TurnIndexTask) error
}

var producer *kafkago.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafkago.Writer{
		Addr:     kafkago.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafkago.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceTurnIndexTask 发送一个轮次索引任务到 Kafka。
func ProduceTurnIndexTask(task tasks.TurnIndexTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return producer.WriteMessages(context.Background(),
		kafkago.Message{
			Key:   []byte(task.ConversationID),
			Value: taskBytes,
		},
	)
}

// StartConsumer 启动一个 Kafka 消费者来处理轮次索引任务。
func StartConsumer(cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  "movie-maestro-indexer",
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break
		}

		var task tasks.TurnIndexTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		if err := processor.Process(context.Background(), task); err != nil {
			// 索引失败不提交 offset，交给 Kafka 重试；轮次索引是幂等写（doc_id 固定）
			log.Errorf("处理轮次索引任务失败: conversation=%s seq=%d, error: %v", task.ConversationID, task.TurnSeq, err)
			continue
		}

		if err := r.CommitMessages(context.Background(), m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}
