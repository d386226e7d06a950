// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"

	"github.com/amaankhan02/movie-maestro/internal/config"
	"github.com/amaankhan02/movie-maestro/internal/model"
	"github.com/amaankhan02/movie-maestro/internal/repository"
	"github.com/amaankhan02/movie-maestro/pkg/es"
)

// 全文检索的默认返回条数。
const searchTurnsSize = 10

// ConversationService 定义了对话查询的接口。
type ConversationService interface {
	// GetConversationTurns 返回对话的全部轮次，按时间序；
	// 对话不存在时透传 repository.ErrConversationNotFound。
	GetConversationTurns(ctx context.Context, conversationID string) ([]model.ConversationTurn, error)
	// SearchTurns 对历史助手回答做全文检索。
	SearchTurns(ctx context.Context, query string) ([]model.TurnDocument, error)
}

type conversationService struct {
	repo repository.ConversationRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository) ConversationService {
	return &conversationService{repo: repo}
}

// GetConversationTurns 获取一段对话的完整消息历史。
func (s *conversationService) GetConversationTurns(ctx context.Context, conversationID string) ([]model.ConversationTurn, error) {
	conv, err := s.repo.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return conv.Turns, nil
}

// SearchTurns 通过 Elasticsearch 检索历史回答；未启用时返回空结果。
func (s *conversationService) SearchTurns(ctx context.Context, query string) ([]model.TurnDocument, error) {
	if !config.Conf.Elasticsearch.Enabled {
		return []model.TurnDocument{}, nil
	}
	return es.SearchTurns(ctx, config.Conf.Elasticsearch.IndexName, query, searchTurnsSize)
}
