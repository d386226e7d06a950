package model

import "time"

// TurnDocument 代表索引到 Elasticsearch 的一轮助手回答，供全文检索。
type TurnDocument struct {
	DocID          string    `json:"doc_id"` // conversationID + 轮次序号
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CitationURLs   []string  `json:"citation_urls"`
	Timestamp      time.Time `json:"timestamp"`
}
