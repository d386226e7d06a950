package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amaankhan02/movie-maestro/internal/model"
	"github.com/amaankhan02/movie-maestro/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanParsesModelOutput(t *testing.T) {
	fake := &fakeLLM{
		chatFn: func(_ context.Context, _ []llm.Message) (string, error) {
			return `{"use_structured_source": true, "structured_intent": "title_lookup", "textual_keywords": ["Inception", "Christopher Nolan"]}`, nil
		},
	}
	planner := NewPlannerService(fake)

	plan, err := planner.Plan(context.Background(), "Tell me about Inception", nil)
	require.NoError(t, err)

	assert.True(t, plan.UseStructuredSource)
	assert.Equal(t, model.IntentTitleLookup, plan.StructuredIntent)
	assert.True(t, plan.UseTextualSource, "文本源永远参与检索")
	assert.Equal(t, []string{"Inception", "Christopher Nolan"}, plan.TextualKeywords)
}

func TestPlanPromptContainsRecentTurns(t *testing.T) {
	var captured string
	fake := &fakeLLM{
		chatFn: func(_ context.Context, messages []llm.Message) (string, error) {
			captured = messages[0].Content
			return `{"use_structured_source": true, "structured_intent": "person_lookup", "textual_keywords": ["Christopher Nolan"]}`, nil
		},
	}
	planner := NewPlannerService(fake)

	history := []model.ConversationTurn{
		{Role: "user", Content: "Tell me about Inception", Timestamp: time.Now()},
		{Role: "assistant", Content: "Inception is a 2010 film directed by Christopher Nolan.", Timestamp: time.Now()},
	}
	_, err := planner.Plan(context.Background(), "Who directed it?", history)
	require.NoError(t, err)

	// 代词消解依赖历史上下文进入 prompt
	assert.Contains(t, captured, "Inception")
	assert.Contains(t, captured, "Who directed it?")
}

func TestPlanFallbackOnModelError(t *testing.T) {
	fake := &fakeLLM{
		chatFn: func(_ context.Context, _ []llm.Message) (string, error) {
			return "", errors.New("connection refused")
		},
	}
	planner := NewPlannerService(fake)

	plan, err := planner.Plan(context.Background(), "What makes film noir special?", nil)
	require.NoError(t, err, "规划失败不应让请求失败")

	assert.False(t, plan.UseStructuredSource)
	assert.Equal(t, model.IntentNone, plan.StructuredIntent)
	assert.True(t, plan.UseTextualSource)
	assert.Equal(t, []string{"What makes film noir special"}, plan.TextualKeywords)
}

func TestPlanFallbackOnMalformedOutput(t *testing.T) {
	fake := &fakeLLM{
		chatFn: func(_ context.Context, _ []llm.Message) (string, error) {
			return "Sure! I think you should query the movie database.", nil
		},
	}
	planner := NewPlannerService(fake)

	plan, err := planner.Plan(context.Background(), "best heist movies", nil)
	require.NoError(t, err)

	assert.False(t, plan.UseStructuredSource)
	assert.Equal(t, []string{"best heist movies"}, plan.TextualKeywords)
}

func TestPlanUnknownIntentDisablesStructured(t *testing.T) {
	fake := &fakeLLM{
		chatFn: func(_ context.Context, _ []llm.Message) (string, error) {
			return `{"use_structured_source": true, "structured_intent": "box_office_lookup", "textual_keywords": ["Avatar"]}`, nil
		},
	}
	planner := NewPlannerService(fake)

	plan, err := planner.Plan(context.Background(), "How much did Avatar make?", nil)
	require.NoError(t, err)

	// 未知 intent 收敛到 none，同时关闭结构化源
	assert.False(t, plan.UseStructuredSource)
	assert.Equal(t, model.IntentNone, plan.StructuredIntent)
}

func TestPlanKeywordsDedupedAndCapped(t *testing.T) {
	fake := &fakeLLM{
		chatFn: func(_ context.Context, _ []llm.Message) (string, error) {
			return `{"use_structured_source": false, "structured_intent": "none", "textual_keywords": ["film noir", "Film Noir", "  ", "German expressionism", "crime films", "detective fiction"]}`, nil
		},
	}
	planner := NewPlannerService(fake)

	plan, err := planner.Plan(context.Background(), "what is film noir", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"film noir", "German expressionism", "crime films"}, plan.TextualKeywords)
}
