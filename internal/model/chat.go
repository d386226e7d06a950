// Package model 包含了应用的数据模型定义。
package model

import "time"

// Citation 代表答案中引用的一条来源。
// Text 是来源的摘录片段，URL 指向来源的规范页面。
type Citation struct {
	Text  string `json:"text"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// ImageData 代表一条随答案返回的图片及其元数据。
type ImageData struct {
	URL     string `json:"url"`
	Alt     string `json:"alt"`
	Caption string `json:"caption,omitempty"`
}

// RelatedQuery 代表一条推荐给用户的后续问题。自由生成，不做来源校验。
type RelatedQuery struct {
	Text string `json:"text"`
}

// ConversationTurn 代表对话中的一轮消息，写入后不可变。
type ConversationTurn struct {
	Role      string      `json:"role"` // "user" 或 "assistant"
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Error     bool        `json:"error,omitempty"`
	Citations []Citation  `json:"citations,omitempty"`
	Images    []ImageData `json:"images,omitempty"`
}

// Conversation 代表一段完整的用户/助手对话。
// ID 由服务端在首轮生成，是外部调用方持有的唯一句柄。
type Conversation struct {
	ID        string             `json:"id"`
	Turns     []ConversationTurn `json:"messages"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ChatRequest 是 POST /chat 的请求体。
type ChatRequest struct {
	Message        string `json:"message" binding:"required"`
	ConversationID string `json:"conversation_id"`
}

// ChatResponse 是 POST /chat 的响应体，只在本次请求内存在，不落库。
type ChatResponse struct {
	Response       string         `json:"response"`
	ConversationID string         `json:"conversation_id"`
	Timestamp      time.Time      `json:"timestamp"`
	Citations      []Citation     `json:"citations,omitempty"`
	Images         []ImageData    `json:"images,omitempty"`
	RelatedQueries []RelatedQuery `json:"related_queries,omitempty"`
}

// ConversationArchive 代表归档到 MySQL 的单轮问答记录。
type ConversationArchive struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"index;size:64;not null" json:"conversationId"`
	Role           string    `gorm:"size:16;not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (ConversationArchive) TableName() string {
	return "conversation_archive"
}
