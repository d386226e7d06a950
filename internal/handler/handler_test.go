package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/amaankhan02/movie-maestro/internal/model"
	"github.com/amaankhan02/movie-maestro/internal/repository"
	"github.com/amaankhan02/movie-maestro/internal/service"
	"github.com/amaankhan02/movie-maestro/pkg/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	log.InitForTest()
	os.Exit(m.Run())
}

type fakeChatService struct {
	resp *model.ChatResponse
	err  error
}

func (f *fakeChatService) Handle(_ context.Context, _, _ string) (*model.ChatResponse, error) {
	return f.resp, f.err
}

func (f *fakeChatService) StreamResponse(_ context.Context, _, _ string, _ *websocket.Conn, _ func() bool) error {
	return f.err
}

type fakeConversationService struct {
	turns []model.ConversationTurn
	docs  []model.TurnDocument
	err   error
}

func (f *fakeConversationService) GetConversationTurns(_ context.Context, _ string) ([]model.ConversationTurn, error) {
	return f.turns, f.err
}

func (f *fakeConversationService) SearchTurns(_ context.Context, _ string) ([]model.TurnDocument, error) {
	return f.docs, f.err
}

func newChatRouter(svc service.ChatService) *gin.Engine {
	r := gin.New()
	r.POST("/chat", NewChatHandler(svc).Chat)
	return r
}

func newConversationRouter(svc service.ConversationService) *gin.Engine {
	r := gin.New()
	h := NewConversationHandler(svc)
	r.GET("/conversation/:id", h.Get)
	r.GET("/conversations/search", h.Search)
	return r
}

func TestChatRejectsMissingMessage(t *testing.T) {
	r := newChatRouter(&fakeChatService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"conversation_id":"abc"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatReturnsAnswer(t *testing.T) {
	svc := &fakeChatService{resp: &model.ChatResponse{
		Response:       "Inception is a heist thriller [1].",
		ConversationID: "conv-1",
		Timestamp:      time.Now(),
		Citations:      []model.Citation{{URL: "https://www.themoviedb.org/movie/27205", Title: "Inception - TMDb"}},
	}}
	r := newChatRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"message":"Tell me about Inception"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp model.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "conv-1", resp.ConversationID)
	assert.Equal(t, "Inception is a heist thriller [1].", resp.Response)
	require.Len(t, resp.Citations, 1)
}

func TestChatHidesInternalErrors(t *testing.T) {
	r := newChatRouter(&fakeChatService{err: errors.New("redis: connection refused")})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "redis", "内部错误细节不得下发")
}

func TestGetConversation(t *testing.T) {
	svc := &fakeConversationService{turns: []model.ConversationTurn{
		{Role: "user", Content: "Tell me about Inception"},
		{Role: "assistant", Content: "Inception is a 2010 film."},
	}}
	r := newConversationRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/conversation/conv-1", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var turns []model.ConversationTurn
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &turns))
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "assistant", turns[1].Role)
}

func TestGetConversationNotFound(t *testing.T) {
	r := newConversationRouter(&fakeConversationService{err: repository.ErrConversationNotFound})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/conversation/nope", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchRequiresQuery(t *testing.T) {
	r := newConversationRouter(&fakeConversationService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/conversations/search", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchReturnsDocuments(t *testing.T) {
	svc := &fakeConversationService{docs: []model.TurnDocument{
		{DocID: "conv-1-1", ConversationID: "conv-1", Role: "assistant", Content: "Inception is a heist thriller."},
	}}
	r := newConversationRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/conversations/search?q=Inception", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Results []model.TurnDocument `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "conv-1-1", resp.Results[0].DocID)
}
