// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amaankhan02/movie-maestro/internal/model"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrConversationNotFound 表示给定的对话 ID 不存在。
var ErrConversationNotFound = errors.New("conversation not found")

// 会话保留 7 天；单个会话最多存储 40 轮，超出时裁掉最旧的。
const (
	conversationTTL = 7 * 24 * time.Hour
	maxStoredTurns  = 40
)

// ConversationRepository 定义了对话历史记录的操作接口。
// 对话 ID 是外部调用方持有的唯一句柄，仅在首次 Append 且未提供 ID 时生成。
type ConversationRepository interface {
	// Append 将若干轮消息追加到对话末尾；id 为空时新建对话并生成 ID。
	Append(ctx context.Context, id string, turns ...model.ConversationTurn) (*model.Conversation, error)
	// Get 返回完整对话，不存在时返回 ErrConversationNotFound。
	Get(ctx context.Context, id string) (*model.Conversation, error)
	// History 返回最近 maxTurns 轮消息；对话不存在时返回空切片而非错误。
	History(ctx context.Context, id string, maxTurns int) ([]model.ConversationTurn, error)
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func conversationKey(id string) string {
	return fmt.Sprintf("conversation:%s", id)
}

// Append 追加消息并回写整个对话。
func (r *redisConversationRepository) Append(ctx context.Context, id string, turns ...model.ConversationTurn) (*model.Conversation, error) {
	now := time.Now()

	var conv *model.Conversation
	if id == "" {
		conv = &model.Conversation{
			ID:        uuid.NewString(),
			Turns:     []model.ConversationTurn{},
			CreatedAt: now,
		}
	} else {
		existing, err := r.Get(ctx, id)
		if err == nil {
			conv = existing
		} else if errors.Is(err, ErrConversationNotFound) {
			// 调用方带着未知 ID 过来时按新对话处理，沿用该 ID
			conv = &model.Conversation{
				ID:        id,
				Turns:     []model.ConversationTurn{},
				CreatedAt: now,
			}
		} else {
			return nil, err
		}
	}

	conv.Turns = append(conv.Turns, turns...)
	if len(conv.Turns) > maxStoredTurns {
		conv.Turns = conv.Turns[len(conv.Turns)-maxStoredTurns:]
	}
	conv.UpdatedAt = now

	jsonData, err := json.Marshal(conv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if err := r.redisClient.Set(ctx, conversationKey(conv.ID), jsonData, conversationTTL).Err(); err != nil {
		return nil, fmt.Errorf("failed to set conversation: %w", err)
	}
	return conv, nil
}

// Get 从 Redis 读取完整对话。
func (r *redisConversationRepository) Get(ctx context.Context, id string) (*model.Conversation, error) {
	jsonData, err := r.redisClient.Get(ctx, conversationKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	var conv model.Conversation
	if err := json.Unmarshal([]byte(jsonData), &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	return &conv, nil
}

// History 返回最近 maxTurns 轮消息，用于限定模型上下文的大小。
func (r *redisConversationRepository) History(ctx context.Context, id string, maxTurns int) ([]model.ConversationTurn, error) {
	if id == "" {
		return []model.ConversationTurn{}, nil
	}
	conv, err := r.Get(ctx, id)
	if errors.Is(err, ErrConversationNotFound) {
		return []model.ConversationTurn{}, nil
	}
	if err != nil {
		return nil, err
	}

	turns := conv.Turns
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	return turns, nil
}
