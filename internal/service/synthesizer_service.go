package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/amaankhan02/movie-maestro/internal/model"
	"github.com/amaankhan02/movie-maestro/pkg/llm"
	"github.com/amaankhan02/movie-maestro/pkg/log"
)

// 相关问题的数量约束；解析失败时对模型的重试上限（恰好一次，绝不静默循环重试）。
const (
	minRelatedQueries = 2
	maxRelatedQueries = 4
	synthesisRetries  = 1
)

// citationMarkerPattern 匹配答案中的 [n] 引用标记，编号从 1 起对应 grounding 块。
var citationMarkerPattern = regexp.MustCompile(`\[(\d+)\]`)

// SynthesisResult 是一次答案合成的产出。
type SynthesisResult struct {
	ResponseText   string
	Citations      []model.Citation
	Images         []model.ImageData
	RelatedQueries []model.RelatedQuery
}

// SynthesizerService 基于检索记录合成带引用的答案。
// 模型的原始输出一律当作不可信字符串，按严格结构解析，结构不符时
// fail closed（ErrSynthesisFailed）而不是猜测。
type SynthesizerService interface {
	Synthesize(ctx context.Context, query string, records []model.SourceRecord, history []model.ConversationTurn) (*SynthesisResult, error)
	// SynthesizeStream 把答案分块写入 writer（websocket 路径），相关问题
	// 在流结束后单独生成。
	SynthesizeStream(ctx context.Context, query string, records []model.SourceRecord, history []model.ConversationTurn, writer llm.MessageWriter) (*SynthesisResult, error)
}

type synthesizerService struct {
	llmClient llm.Client
}

// NewSynthesizerService 创建一个新的 SynthesizerService 实例。
func NewSynthesizerService(llmClient llm.Client) SynthesizerService {
	return &synthesizerService{llmClient: llmClient}
}

const synthesisSystemPrompt = `You are an expert on movies and a helpful AI assistant for movie-related queries.
Be accurate, concise and informative. Ground every factual statement ONLY in the numbered
source blocks provided. Cite facts with numbered markers like [1], [2] at the end of the
sentence containing the fact. Never cite a block number that was not provided. Do not use
source names like [TMDb] or [Wikipedia] in the text, only numbered markers.`

const synthesisNoSourcesPrompt = `You are an expert on movies and a helpful AI assistant for movie-related queries.
No sources were retrieved for this query. Answer from your general knowledge, and state
explicitly that no sources were found. Do not include any citation markers.`

const synthesisProtocol = `Respond with JSON only, no extra text, in exactly this shape:
{"answer": "your answer text with [n] citation markers", "related_queries": ["2 to 4 follow-up questions the user might ask next"]}

The related queries must be answerable with a movie database or Wikipedia, must not repeat
questions already asked, and should build on movies or people from this conversation.`

// synthesisOutput 是模型输出的严格结构。
type synthesisOutput struct {
	Answer         string   `json:"answer"`
	RelatedQueries []string `json:"related_queries"`
}

// Synthesize 单次模型调用产出答案与相关问题，再做引用过滤。
func (s *synthesizerService) Synthesize(ctx context.Context, query string, records []model.SourceRecord, history []model.ConversationTurn) (*SynthesisResult, error) {
	messages := s.composeMessages(query, records, history, true)

	var out *synthesisOutput
	var lastErr error
	for attempt := 0; attempt <= synthesisRetries; attempt++ {
		raw, err := s.llmClient.Chat(ctx, messages, nil)
		if err != nil {
			lastErr = err
			log.Warnf("[SynthesizerService] 模型调用失败 (attempt %d): %v", attempt+1, err)
			continue
		}
		parsed, err := parseSynthesisOutput(raw)
		if err != nil {
			lastErr = err
			log.Warnf("[SynthesizerService] 输出解析失败 (attempt %d): %v", attempt+1, err)
			continue
		}
		out = parsed
		break
	}
	if out == nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, lastErr)
	}

	answer, citations, images := filterCitations(out.Answer, records)
	return &SynthesisResult{
		ResponseText:   answer,
		Citations:      citations,
		Images:         images,
		RelatedQueries: toRelatedQueries(out.RelatedQueries),
	}, nil
}

// SynthesizeStream 流式输出纯文本答案（捕获全文），随后单独生成相关问题。
// 流式路径走不了严格 JSON 协议，所以拆成两次模型调用。
func (s *synthesizerService) SynthesizeStream(ctx context.Context, query string, records []model.SourceRecord, history []model.ConversationTurn, writer llm.MessageWriter) (*SynthesisResult, error) {
	messages := s.composeMessages(query, records, history, false)

	capture := &captureWriter{target: writer}
	if err := s.llmClient.StreamChatMessages(ctx, messages, nil, capture); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}

	fullAnswer := capture.builder.String()
	if strings.TrimSpace(fullAnswer) == "" {
		return nil, fmt.Errorf("%w: model returned empty answer", ErrSynthesisFailed)
	}

	answer, citations, images := filterCitations(fullAnswer, records)
	result := &SynthesisResult{
		ResponseText: answer,
		Citations:    citations,
		Images:       images,
	}

	// 相关问题失败不致命，答案已经产出
	related, err := s.generateRelatedQueries(ctx, query, answer)
	if err != nil {
		log.Warnf("[SynthesizerService] 相关问题生成失败: %v", err)
	} else {
		result.RelatedQueries = related
	}
	return result, nil
}

// composeMessages 组装 system 消息、grounding 上下文、历史与本轮问题。
func (s *synthesizerService) composeMessages(query string, records []model.SourceRecord, history []model.ConversationTurn, jsonProtocol bool) []llm.Message {
	var sys strings.Builder
	if len(records) == 0 {
		sys.WriteString(synthesisNoSourcesPrompt)
	} else {
		sys.WriteString(synthesisSystemPrompt)
		sys.WriteString("\n\nSources:\n")
		sys.WriteString(buildGroundingContext(records))
	}
	if jsonProtocol {
		sys.WriteString("\n\n")
		sys.WriteString(synthesisProtocol)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: sys.String()})
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: query})
	return messages
}

// buildGroundingContext 把每条记录渲染成编号块，编号即 Retriever 输出序列中的位置。
func buildGroundingContext(records []model.SourceRecord) string {
	var b strings.Builder
	for i, r := range records {
		b.WriteString(fmt.Sprintf("[%d] %s (%s)\n%s\n\n", i+1, r.Title, r.Citation.URL, r.BodyText))
	}
	return b.String()
}

// parseSynthesisOutput 严格解析模型输出，缺失 answer 视为结构不符。
func parseSynthesisOutput(raw string) (*synthesisOutput, error) {
	var out synthesisOutput
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &out); err != nil {
		return nil, fmt.Errorf("合成输出无法解析: %w", err)
	}
	if strings.TrimSpace(out.Answer) == "" {
		return nil, fmt.Errorf("合成输出缺少 answer 字段")
	}
	return &out, nil
}

// filterCitations 落实引用过滤不变量：
//   - 只保留答案中实际出现 [n] 标记的记录对应的引用（未被引用的来源丢弃）；
//   - 指向不存在块号的标记从答案中剥除，绝不伪造没有检索记录背书的引用；
//   - records 为空时答案不得携带任何标记，引用列表为空。
func filterCitations(answer string, records []model.SourceRecord) (string, []model.Citation, []model.ImageData) {
	used := make(map[int]struct{})
	cleaned := citationMarkerPattern.ReplaceAllStringFunc(answer, func(marker string) string {
		idx, err := strconv.Atoi(citationMarkerPattern.FindStringSubmatch(marker)[1])
		if err != nil || idx < 1 || idx > len(records) {
			// 无中生有的块号：剥掉标记
			return ""
		}
		used[idx] = struct{}{}
		return marker
	})

	if len(used) == 0 {
		return strings.TrimSpace(cleaned), nil, nil
	}

	indices := make([]int, 0, len(used))
	for idx := range used {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	citations := make([]model.Citation, 0, len(indices))
	var images []model.ImageData
	for _, idx := range indices {
		record := records[idx-1]
		citations = append(citations, record.Citation)
		images = append(images, record.Images...)
	}
	return strings.TrimSpace(cleaned), citations, images
}

const relatedQueriesPromptTemplate = `Based on this movie Q&A exchange, generate %d follow-up questions the user might ask next.

Question: %s

Answer: %s

The questions must be answerable with a movie database or Wikipedia, must not repeat the
original question, and should cover things like streaming availability, cultural impact,
themes, people involved, or similar movies.

Respond with JSON only: {"related_queries": ["...", "..."]}`

// generateRelatedQueries 为流式路径单独生成相关问题。
func (s *synthesizerService) generateRelatedQueries(ctx context.Context, query, answer string) ([]model.RelatedQuery, error) {
	prompt := fmt.Sprintf(relatedQueriesPromptTemplate, maxRelatedQueries-1, query, answer)
	raw, err := s.llmClient.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		RelatedQueries []string `json:"related_queries"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &out); err != nil {
		return nil, fmt.Errorf("相关问题输出无法解析: %w", err)
	}
	return toRelatedQueries(out.RelatedQueries), nil
}

// toRelatedQueries 清洗并截断到数量上限。
func toRelatedQueries(texts []string) []model.RelatedQuery {
	out := make([]model.RelatedQuery, 0, maxRelatedQueries)
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, model.RelatedQuery{Text: t})
		if len(out) >= maxRelatedQueries {
			break
		}
	}
	return out
}

// captureWriter 在转发分块的同时捕获完整答案，供引用过滤使用。
type captureWriter struct {
	target  llm.MessageWriter
	builder strings.Builder
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *captureWriter) WriteMessage(messageType int, data []byte) error {
	w.builder.Write(data)
	if w.target == nil {
		return nil
	}
	return w.target.WriteMessage(messageType, data)
}

var _ llm.MessageWriter = (*captureWriter)(nil)
