// Package pipeline 包含了异步任务的处理逻辑。
package pipeline

import (
	"context"
	"fmt"

	"github.com/amaankhan02/movie-maestro/internal/config"
	"github.com/amaankhan02/movie-maestro/internal/model"
	"github.com/amaankhan02/movie-maestro/pkg/es"
	"github.com/amaankhan02/movie-maestro/pkg/log"
	"github.com/amaankhan02/movie-maestro/pkg/tasks"
)

// Indexer 消费轮次索引任务，将助手回答写入 Elasticsearch。
// doc_id 由对话 ID 与轮次序号确定，重复消费是幂等写。
type Indexer struct{}

// NewIndexer 创建一个新的 Indexer 实例。
func NewIndexer() *Indexer {
	return &Indexer{}
}

// Process 实现 kafka.TaskProcessor 接口。
func (p *Indexer) Process(ctx context.Context, task tasks.TurnIndexTask) error {
	urls := make([]string, 0, len(task.Citations))
	for _, c := range task.Citations {
		if c.URL != "" {
			urls = append(urls, c.URL)
		}
	}

	doc := model.TurnDocument{
		DocID:          fmt.Sprintf("%s-%d", task.ConversationID, task.TurnSeq),
		ConversationID: task.ConversationID,
		Role:           task.Role,
		Content:        task.Content,
		CitationURLs:   urls,
		Timestamp:      task.Timestamp,
	}

	if err := es.IndexTurn(ctx, config.Conf.Elasticsearch.IndexName, doc); err != nil {
		return fmt.Errorf("failed to index turn %s: %w", doc.DocID, err)
	}

	log.Infof("[Indexer] 轮次 %s 索引完成", doc.DocID)
	return nil
}
