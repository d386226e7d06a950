package repository

import (
	"github.com/amaankhan02/movie-maestro/internal/model"
	"gorm.io/gorm"
)

// ConversationArchiveRepository 定义了对话归档表的操作接口。
// Redis 中的会话带 TTL，归档表保留完整的问答流水。
type ConversationArchiveRepository interface {
	SaveTurns(conversationID string, turns []model.ConversationTurn) error
	FindByConversationID(conversationID string) ([]model.ConversationArchive, error)
}

type conversationArchiveRepository struct {
	db *gorm.DB
}

// NewConversationArchiveRepository 创建一个新的 ConversationArchiveRepository 实例。
func NewConversationArchiveRepository(db *gorm.DB) ConversationArchiveRepository {
	return &conversationArchiveRepository{db: db}
}

// SaveTurns 将若干轮消息写入归档表。
func (r *conversationArchiveRepository) SaveTurns(conversationID string, turns []model.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}
	rows := make([]model.ConversationArchive, 0, len(turns))
	for _, t := range turns {
		rows = append(rows, model.ConversationArchive{
			ConversationID: conversationID,
			Role:           t.Role,
			Content:        t.Content,
		})
	}
	return r.db.Create(&rows).Error
}

// FindByConversationID 按时间序返回某个对话的全部归档行。
func (r *conversationArchiveRepository) FindByConversationID(conversationID string) ([]model.ConversationArchive, error) {
	var rows []model.ConversationArchive
	err := r.db.Where("conversation_id = ?", conversationID).Order("id asc").Find(&rows).Error
	return rows, err
}
