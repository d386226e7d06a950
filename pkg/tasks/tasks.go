// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import (
	"time"

	"github.com/amaankhan02/movie-maestro/internal/model"
)

// TurnIndexTask 代表一条待异步索引到 Elasticsearch 的对话轮次。
type TurnIndexTask struct {
	ConversationID string           `json:"conversation_id"`
	TurnSeq        int              `json:"turn_seq"`
	Role           string           `json:"role"`
	Content        string           `json:"content"`
	Citations      []model.Citation `json:"citations,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}
