package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amaankhan02/movie-maestro/internal/config"
	"github.com/amaankhan02/movie-maestro/internal/model"
	"github.com/amaankhan02/movie-maestro/internal/repository"
	"github.com/amaankhan02/movie-maestro/pkg/kafka"
	"github.com/amaankhan02/movie-maestro/pkg/log"
	"github.com/amaankhan02/movie-maestro/pkg/storage"
	"github.com/amaankhan02/movie-maestro/pkg/tasks"
	"github.com/gorilla/websocket"
)

// 管线阶段，仅用于日志与排障。
const (
	stagePlanning     = "PLANNING"
	stageRetrieving   = "RETRIEVING"
	stageSynthesizing = "SYNTHESIZING"
	stagePersisting   = "PERSISTING"
	stageDone         = "DONE"
	stageFailed       = "FAILED"
)

// 返回给用户的通用失败文案，不暴露内部细节。
const genericErrorAnswer = "Sorry, I ran into a problem while answering that. Please try again."

// 镜像图片的 presigned URL 有效期。
const imageURLExpiry = 24 * time.Hour

// ChatService 编排一轮完整的问答：历史 → 规划 → 检索 → 合成 → 持久化。
type ChatService interface {
	// Handle 处理一条用户消息并返回完整答案。conversationID 为空时新建对话。
	// 中途失败时会在对话中记录一轮标记为 error 的助手消息，然后返回错误，
	// 对话本身保持可用。
	Handle(ctx context.Context, message, conversationID string) (*model.ChatResponse, error)
	// StreamResponse 走 websocket 流式路径：答案分块下发，末尾补充引用、
	// 图片与相关问题的元数据帧。
	StreamResponse(ctx context.Context, message, conversationID string, ws *websocket.Conn, shouldStop func() bool) error
}

type chatService struct {
	planner          PlannerService
	retriever        RetrievalService
	synthesizer      SynthesizerService
	conversationRepo repository.ConversationRepository
	archiveRepo      repository.ConversationArchiveRepository
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	planner PlannerService,
	retriever RetrievalService,
	synthesizer SynthesizerService,
	conversationRepo repository.ConversationRepository,
	archiveRepo repository.ConversationArchiveRepository,
) ChatService {
	return &chatService{
		planner:          planner,
		retriever:        retriever,
		synthesizer:      synthesizer,
		conversationRepo: conversationRepo,
		archiveRepo:      archiveRepo,
	}
}

// Handle 同步处理一轮问答。
func (s *chatService) Handle(ctx context.Context, message, conversationID string) (*model.ChatResponse, error) {
	history := s.loadHistory(ctx, conversationID)

	log.Infof("[ChatService] 阶段 %s, conversation=%s", stagePlanning, conversationID)
	plan, err := s.planner.Plan(ctx, message, history)
	if err != nil {
		// Plan 自身带兜底，这里只有 ctx 取消之类的硬失败
		return nil, s.recordFailure(conversationID, message, fmt.Errorf("failed to plan query: %w", err))
	}

	log.Infof("[ChatService] 阶段 %s, conversation=%s", stageRetrieving, conversationID)
	records, err := s.retriever.Retrieve(ctx, plan, message, history)
	if err != nil {
		return nil, s.recordFailure(conversationID, message, fmt.Errorf("failed to retrieve sources: %w", err))
	}

	log.Infof("[ChatService] 阶段 %s, conversation=%s, records=%d", stageSynthesizing, conversationID, len(records))
	result, err := s.synthesizer.Synthesize(ctx, message, records, history)
	if err != nil {
		return nil, s.recordFailure(conversationID, message, fmt.Errorf("failed to synthesize answer: %w", err))
	}

	s.mirrorImages(ctx, result)

	log.Infof("[ChatService] 阶段 %s, conversation=%s", stagePersisting, conversationID)
	conv, err := s.persistTurns(message, conversationID, result)
	if err != nil {
		return nil, fmt.Errorf("failed to persist conversation: %w", err)
	}

	log.Infof("[ChatService] 阶段 %s, conversation=%s", stageDone, conv.ID)
	return &model.ChatResponse{
		Response:       result.ResponseText,
		ConversationID: conv.ID,
		Timestamp:      time.Now(),
		Citations:      result.Citations,
		Images:         result.Images,
		RelatedQueries: result.RelatedQueries,
	}, nil
}

// StreamResponse 流式处理一轮问答，分块写入 websocket 连接。
func (s *chatService) StreamResponse(ctx context.Context, message, conversationID string, ws *websocket.Conn, shouldStop func() bool) error {
	history := s.loadHistory(ctx, conversationID)

	plan, err := s.planner.Plan(ctx, message, history)
	if err != nil {
		return fmt.Errorf("failed to plan query: %w", err)
	}

	records, err := s.retriever.Retrieve(ctx, plan, message, history)
	if err != nil {
		return fmt.Errorf("failed to retrieve sources: %w", err)
	}

	// 拦截 websocket writer：包装 {"chunk":"..."} 分块并响应停止标志
	interceptor := &wsWriterInterceptor{conn: ws, shouldStop: shouldStop}
	result, err := s.synthesizer.SynthesizeStream(ctx, message, records, history, interceptor)
	if err != nil {
		return fmt.Errorf("failed to synthesize answer: %w", err)
	}

	s.mirrorImages(ctx, result)

	conv, err := s.persistTurns(message, conversationID, result)
	if err != nil {
		// 流式答案已经下发，持久化失败只记日志
		log.Errorf("[ChatService] 保存对话失败: %v", err)
	}

	convID := conversationID
	if conv != nil {
		convID = conv.ID
	}
	sendMetadata(ws, convID, result)
	sendCompletion(ws)
	return nil
}

// loadHistory 加载受窗口限制的对话历史；读取失败按空历史降级。
func (s *chatService) loadHistory(ctx context.Context, conversationID string) []model.ConversationTurn {
	history, err := s.conversationRepo.History(ctx, conversationID, config.Conf.Chat.HistoryWindow)
	if err != nil {
		log.Errorf("[ChatService] 加载对话历史失败, 按空历史继续: %v", err)
		return []model.ConversationTurn{}
	}
	return history
}

// persistTurns 将本轮的用户消息与助手答案写入对话。
// 使用后台上下文：答案已经产出，即使原始请求被取消也要提交这两轮。
func (s *chatService) persistTurns(message, conversationID string, result *SynthesisResult) (*model.Conversation, error) {
	now := time.Now()
	userTurn := model.ConversationTurn{
		Role:      "user",
		Content:   message,
		Timestamp: now,
	}
	assistantTurn := model.ConversationTurn{
		Role:      "assistant",
		Content:   result.ResponseText,
		Timestamp: now,
		Citations: result.Citations,
		Images:    result.Images,
	}

	conv, err := s.conversationRepo.Append(context.Background(), conversationID, userTurn, assistantTurn)
	if err != nil {
		return nil, err
	}

	// 归档与索引是旁路：失败只记日志，不影响本轮结果
	if err := s.archiveRepo.SaveTurns(conv.ID, []model.ConversationTurn{userTurn, assistantTurn}); err != nil {
		log.Errorf("[ChatService] 归档对话轮次失败: %v", err)
	}
	s.enqueueIndexTask(conv, assistantTurn)

	return conv, nil
}

// enqueueIndexTask 把助手轮次投递到 Kafka 做异步全文索引。
func (s *chatService) enqueueIndexTask(conv *model.Conversation, turn model.ConversationTurn) {
	if !config.Conf.Kafka.Enabled {
		return
	}
	task := tasks.TurnIndexTask{
		ConversationID: conv.ID,
		TurnSeq:        len(conv.Turns) - 1,
		Role:           turn.Role,
		Content:        turn.Content,
		Citations:      turn.Citations,
		Timestamp:      turn.Timestamp,
	}
	if err := kafka.ProduceTurnIndexTask(task); err != nil {
		log.Errorf("[ChatService] 投递轮次索引任务失败: %v", err)
	}
}

// recordFailure 在对话中记录一轮通用的错误助手消息，然后原样返回错误。
// 后台上下文保证即使请求已取消也能落盘。
func (s *chatService) recordFailure(conversationID, message string, cause error) error {
	log.Errorf("[ChatService] 阶段 %s, conversation=%s: %v", stageFailed, conversationID, cause)

	now := time.Now()
	_, err := s.conversationRepo.Append(context.Background(), conversationID,
		model.ConversationTurn{Role: "user", Content: message, Timestamp: now},
		model.ConversationTurn{Role: "assistant", Content: genericErrorAnswer, Timestamp: now, Error: true},
	)
	if err != nil {
		log.Errorf("[ChatService] 记录错误轮次失败: %v", err)
	}
	return cause
}

// mirrorImages 把外部图片镜像到对象存储并换成 presigned URL。
// 镜像失败时保留原始 URL，不影响答案。
func (s *chatService) mirrorImages(ctx context.Context, result *SynthesisResult) {
	if !config.Conf.MinIO.Enabled {
		return
	}
	bucket := config.Conf.MinIO.BucketName
	for i, img := range result.Images {
		mirrored, err := storage.MirrorImage(ctx, bucket, img.URL, imageURLExpiry)
		if err != nil {
			log.Warnf("[ChatService] 镜像图片失败, 保留原始 URL: %v", err)
			continue
		}
		result.Images[i].URL = mirrored
	}
}

// wsWriterInterceptor 是对 websocket.Conn 的封装，将流式分块包装成 JSON 下发。
type wsWriterInterceptor struct {
	conn       *websocket.Conn
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendMetadata 在答案流结束后下发引用、图片与相关问题。
func sendMetadata(ws *websocket.Conn, conversationID string, result *SynthesisResult) {
	frame := map[string]interface{}{
		"type":            "metadata",
		"conversation_id": conversationID,
		"citations":       result.Citations,
		"images":          result.Images,
		"related_queries": result.RelatedQueries,
	}
	b, _ := json.Marshal(frame)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(ws *websocket.Conn) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"timestamp": time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}
