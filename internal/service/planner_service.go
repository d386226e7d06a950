package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/amaankhan02/movie-maestro/internal/config"
	"github.com/amaankhan02/movie-maestro/internal/model"
	"github.com/amaankhan02/movie-maestro/pkg/llm"
	"github.com/amaankhan02/movie-maestro/pkg/log"
)

// PlannerService 定义了查询规划的接口：判定数据源、实体查询策略与检索关键词。
type PlannerService interface {
	// Plan 是输入的纯函数（外加一次模型调用），不产生副作用。
	// 模型输出坏掉时回退到「跳过结构化源」，绝不让请求失败。
	Plan(ctx context.Context, query string, history []model.ConversationTurn) (model.QueryPlan, error)
}

type plannerService struct {
	llmClient llm.Client
}

// NewPlannerService 创建一个新的 PlannerService 实例。
func NewPlannerService(llmClient llm.Client) PlannerService {
	return &plannerService{llmClient: llmClient}
}

const plannerPromptTemplate = `Determine how to answer this movie-related query.

Query: %s
%s
Available sources:
1. Movie database (TMDb) - factual information about specific movies, actors, directors,
   release dates, ratings, cast and crew. Use it when the query names (or refers back to)
   a specific movie or person.
2. Wikipedia - background information, film history, cultural context, thematic analysis,
   comparisons and open ended questions. It is always queried, so you only choose its
   search keywords.

If the query uses pronouns or follow-up references ("he", "its sequel"), resolve them
using the conversation context above before choosing the intent and keywords.

Respond with JSON only, no extra text:
{
  "use_structured_source": true/false,
  "structured_intent": "title_lookup" | "person_lookup" | "rating_lookup" | "comparison" | "none",
  "textual_keywords": ["up to %d short Wikipedia search keywords, most specific first"]
}

Intent rules:
- title_lookup: facts about one specific movie (plot, cast, release date)
- person_lookup: facts about one actor or director (biography, filmography)
- rating_lookup: the query asks specifically about a movie's rating or score
- comparison: the query compares two or more specific movies
- none: no specific movie or person is involved (set use_structured_source to false)`

// plannerOutput 是模型输出的原始结构，intent 先按字符串接收再收敛到枚举。
type plannerOutput struct {
	UseStructuredSource bool     `json:"use_structured_source"`
	StructuredIntent    string   `json:"structured_intent"`
	TextualKeywords     []string `json:"textual_keywords"`
}

// Plan 通过单次模型调用产出检索计划。
func (s *plannerService) Plan(ctx context.Context, query string, history []model.ConversationTurn) (model.QueryPlan, error) {
	maxKeywords := config.Conf.Chat.MaxKeywords

	prompt := fmt.Sprintf(plannerPromptTemplate, query, formatRecentTurns(history), maxKeywords)
	raw, err := s.llmClient.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		// 规划失败不致命：跳过结构化源，文本源用兜底关键词继续
		log.Warnf("[PlannerService] 规划模型调用失败, 使用兜底计划: %v", err)
		return fallbackPlan(query), nil
	}

	var out plannerOutput
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &out); err != nil {
		log.Warnf("[PlannerService] 规划输出无法解析, 使用兜底计划: %v, raw: %s", err, raw)
		return fallbackPlan(query), nil
	}

	intent := model.ParseStructuredIntent(out.StructuredIntent)
	plan := model.QueryPlan{
		UseStructuredSource: out.UseStructuredSource && intent != model.IntentNone,
		StructuredIntent:    intent,
		// 设计决策：文本源的上下文便宜且覆盖面广，永远参与检索，
		// 不相关的部分由下游合成器自然弃用。
		UseTextualSource: true,
		TextualKeywords:  sanitizeKeywords(out.TextualKeywords, maxKeywords),
	}
	if !plan.UseStructuredSource {
		plan.StructuredIntent = model.IntentNone
	}
	if len(plan.TextualKeywords) == 0 {
		plan.TextualKeywords = sanitizeKeywords([]string{query}, maxKeywords)
	}

	log.Infof("[PlannerService] 规划完成, use_structured=%v intent=%s keywords=%v",
		plan.UseStructuredSource, plan.StructuredIntent, plan.TextualKeywords)
	return plan, nil
}

// fallbackPlan 是模型不可用或输出坏掉时的保守计划：只查文本源。
func fallbackPlan(query string) model.QueryPlan {
	return model.QueryPlan{
		UseStructuredSource: false,
		StructuredIntent:    model.IntentNone,
		UseTextualSource:    true,
		TextualKeywords:     sanitizeKeywords([]string{query}, config.Conf.Chat.MaxKeywords),
	}
}

// formatRecentTurns 取最近两轮消息供规划器解析代词与跟进问句。
func formatRecentTurns(history []model.ConversationTurn) string {
	if len(history) == 0 {
		return ""
	}
	recent := history
	if len(recent) > 2 {
		recent = recent[len(recent)-2:]
	}
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, t := range recent {
		b.WriteString(fmt.Sprintf("%s: %s\n", t.Role, t.Content))
	}
	return b.String()
}

// sanitizeKeywords 去空白、去重并截断到上限。
func sanitizeKeywords(keywords []string, max int) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, max)
	for _, k := range keywords {
		k = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(k), "?"))
		if k == "" {
			continue
		}
		lower := strings.ToLower(k)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, k)
		if len(out) >= max {
			break
		}
	}
	return out
}

// extractJSONObject 从模型输出中剥离 markdown 围栏等噪音，取第一个完整的 JSON 对象。
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}
