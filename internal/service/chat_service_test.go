package service

import (
	"context"
	"errors"
	"testing"

	"github.com/amaankhan02/movie-maestro/internal/model"
	"github.com/amaankhan02/movie-maestro/internal/repository"
	"github.com/amaankhan02/movie-maestro/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlanner struct {
	plan            model.QueryPlan
	err             error
	receivedHistory []model.ConversationTurn
}

func (f *fakePlanner) Plan(_ context.Context, _ string, history []model.ConversationTurn) (model.QueryPlan, error) {
	f.receivedHistory = history
	return f.plan, f.err
}

type fakeRetriever struct {
	records []model.SourceRecord
	err     error
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ model.QueryPlan, _ string, _ []model.ConversationTurn) ([]model.SourceRecord, error) {
	return f.records, f.err
}

type fakeSynthesizer struct {
	result *SynthesisResult
	err    error
	calls  int
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _ string, _ []model.SourceRecord, _ []model.ConversationTurn) (*SynthesisResult, error) {
	f.calls++
	return f.result, f.err
}

func (f *fakeSynthesizer) SynthesizeStream(_ context.Context, _ string, _ []model.SourceRecord, _ []model.ConversationTurn, _ llm.MessageWriter) (*SynthesisResult, error) {
	f.calls++
	return f.result, f.err
}

// memoryConversationRepo 是 ConversationRepository 的内存实现，语义与 Redis 版一致。
type memoryConversationRepo struct {
	convs map[string]*model.Conversation
}

func newMemoryConversationRepo() *memoryConversationRepo {
	return &memoryConversationRepo{convs: make(map[string]*model.Conversation)}
}

func (r *memoryConversationRepo) Append(_ context.Context, id string, turns ...model.ConversationTurn) (*model.Conversation, error) {
	conv, ok := r.convs[id]
	if id == "" || !ok {
		if id == "" {
			id = "conv-generated"
		}
		conv = &model.Conversation{ID: id}
		r.convs[id] = conv
	}
	conv.Turns = append(conv.Turns, turns...)
	return conv, nil
}

func (r *memoryConversationRepo) Get(_ context.Context, id string) (*model.Conversation, error) {
	conv, ok := r.convs[id]
	if !ok {
		return nil, repository.ErrConversationNotFound
	}
	return conv, nil
}

func (r *memoryConversationRepo) History(_ context.Context, id string, maxTurns int) ([]model.ConversationTurn, error) {
	conv, ok := r.convs[id]
	if !ok {
		return []model.ConversationTurn{}, nil
	}
	turns := conv.Turns
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	return turns, nil
}

type memoryArchiveRepo struct {
	rows []model.ConversationArchive
}

func (r *memoryArchiveRepo) SaveTurns(conversationID string, turns []model.ConversationTurn) error {
	for _, t := range turns {
		r.rows = append(r.rows, model.ConversationArchive{
			ConversationID: conversationID,
			Role:           t.Role,
			Content:        t.Content,
		})
	}
	return nil
}

func (r *memoryArchiveRepo) FindByConversationID(conversationID string) ([]model.ConversationArchive, error) {
	var out []model.ConversationArchive
	for _, row := range r.rows {
		if row.ConversationID == conversationID {
			out = append(out, row)
		}
	}
	return out, nil
}

func successfulPipeline() (*fakePlanner, *fakeRetriever, *fakeSynthesizer) {
	planner := &fakePlanner{plan: model.QueryPlan{
		UseStructuredSource: true,
		StructuredIntent:    model.IntentTitleLookup,
		UseTextualSource:    true,
		TextualKeywords:     []string{"Inception"},
	}}
	retriever := &fakeRetriever{records: []model.SourceRecord{structuredRecord("Inception")}}
	synthesizer := &fakeSynthesizer{result: &SynthesisResult{
		ResponseText:   "Inception is a heist thriller [1].",
		Citations:      []model.Citation{{URL: "https://www.themoviedb.org/movie/1", Title: "Inception - TMDb"}},
		RelatedQueries: []model.RelatedQuery{{Text: "Who directed Inception?"}},
	}}
	return planner, retriever, synthesizer
}

func TestHandleHappyPath(t *testing.T) {
	planner, retriever, synthesizer := successfulPipeline()
	convRepo := newMemoryConversationRepo()
	archiveRepo := &memoryArchiveRepo{}
	svc := NewChatService(planner, retriever, synthesizer, convRepo, archiveRepo)

	resp, err := svc.Handle(context.Background(), "Tell me about Inception", "")
	require.NoError(t, err)

	assert.Equal(t, "Inception is a heist thriller [1].", resp.Response)
	assert.NotEmpty(t, resp.ConversationID)
	require.Len(t, resp.Citations, 1)
	require.Len(t, resp.RelatedQueries, 1)

	// 用户轮与助手轮以同一提交落盘
	conv, err := convRepo.Get(context.Background(), resp.ConversationID)
	require.NoError(t, err)
	require.Len(t, conv.Turns, 2)
	assert.Equal(t, "user", conv.Turns[0].Role)
	assert.Equal(t, "Tell me about Inception", conv.Turns[0].Content)
	assert.Equal(t, "assistant", conv.Turns[1].Role)
	assert.False(t, conv.Turns[1].Error)
	assert.Len(t, conv.Turns[1].Citations, 1)

	// 归档流水同步写入
	rows, err := archiveRepo.FindByConversationID(resp.ConversationID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestHandleReusesConversationHistory(t *testing.T) {
	planner, retriever, synthesizer := successfulPipeline()
	convRepo := newMemoryConversationRepo()
	svc := NewChatService(planner, retriever, synthesizer, convRepo, &memoryArchiveRepo{})

	_, err := convRepo.Append(context.Background(), "conv-42",
		model.ConversationTurn{Role: "user", Content: "Tell me about Inception"},
		model.ConversationTurn{Role: "assistant", Content: "Inception is a 2010 film."},
	)
	require.NoError(t, err)

	resp, err := svc.Handle(context.Background(), "Who directed it?", "conv-42")
	require.NoError(t, err)

	assert.Equal(t, "conv-42", resp.ConversationID)
	// 规划器必须看到已有历史，代词消解依赖它
	require.Len(t, planner.receivedHistory, 2)
	assert.Equal(t, "Inception is a 2010 film.", planner.receivedHistory[1].Content)

	conv, _ := convRepo.Get(context.Background(), "conv-42")
	assert.Len(t, conv.Turns, 4)
}

func TestHandleRetrievalFailureRecordsErrorTurn(t *testing.T) {
	planner, _, synthesizer := successfulPipeline()
	retriever := &fakeRetriever{err: ErrRetrievalFailed}
	convRepo := newMemoryConversationRepo()
	svc := NewChatService(planner, retriever, synthesizer, convRepo, &memoryArchiveRepo{})

	_, err := svc.Handle(context.Background(), "Tell me about Inception", "conv-7")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetrievalFailed))
	assert.Equal(t, 0, synthesizer.calls, "检索全军覆没时不得调用合成器")

	// 失败轮已记录，对话仍然可用
	conv, getErr := convRepo.Get(context.Background(), "conv-7")
	require.NoError(t, getErr)
	require.Len(t, conv.Turns, 2)
	assert.Equal(t, "user", conv.Turns[0].Role)
	assert.True(t, conv.Turns[1].Error)
	assert.NotEmpty(t, conv.Turns[1].Content)
}

func TestHandleSynthesisFailureRecordsErrorTurn(t *testing.T) {
	planner, retriever, _ := successfulPipeline()
	synthesizer := &fakeSynthesizer{err: ErrSynthesisFailed}
	convRepo := newMemoryConversationRepo()
	svc := NewChatService(planner, retriever, synthesizer, convRepo, &memoryArchiveRepo{})

	_, err := svc.Handle(context.Background(), "Tell me about Inception", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSynthesisFailed))
}
