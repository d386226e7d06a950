package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/amaankhan02/movie-maestro/internal/model"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaankhan02/movie-maestro/pkg/log"
)

func TestMain(m *testing.M) {
	log.InitForTest()
	os.Exit(m.Run())
}

func newTestRepo(t *testing.T) (ConversationRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewConversationRepository(client), mr
}

func userTurn(content string) model.ConversationTurn {
	return model.ConversationTurn{Role: "user", Content: content, Timestamp: time.Now()}
}

func assistantTurn(content string) model.ConversationTurn {
	return model.ConversationTurn{Role: "assistant", Content: content, Timestamp: time.Now()}
}

func TestAppendGeneratesConversationID(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	conv, err := repo.Append(ctx, "", userTurn("hello"), assistantTurn("hi"))
	require.NoError(t, err)

	assert.NotEmpty(t, conv.ID)
	require.Len(t, conv.Turns, 2)

	got, err := repo.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	require.Len(t, got.Turns, 2)
	assert.Equal(t, "hello", got.Turns[0].Content)
}

func TestAppendAcceptsCallerSuppliedID(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	// 未知 ID 按新对话处理，沿用该 ID
	conv, err := repo.Append(ctx, "conv-supplied", userTurn("hello"))
	require.NoError(t, err)
	assert.Equal(t, "conv-supplied", conv.ID)

	conv, err = repo.Append(ctx, "conv-supplied", assistantTurn("hi"))
	require.NoError(t, err)
	require.Len(t, conv.Turns, 2)
}

func TestGetUnknownConversation(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestHistoryWindowLimitsTurns(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := repo.Append(ctx, "conv-1", userTurn(fmt.Sprintf("q%d", i)), assistantTurn(fmt.Sprintf("a%d", i)))
		require.NoError(t, err)
	}

	history, err := repo.History(ctx, "conv-1", 4)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "q3", history[0].Content)
	assert.Equal(t, "a4", history[3].Content)
}

func TestHistoryOfUnknownConversationIsEmpty(t *testing.T) {
	repo, _ := newTestRepo(t)

	history, err := repo.History(context.Background(), "does-not-exist", 10)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)

	history, err = repo.History(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAppendTrimsOldestTurnsBeyondCap(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	turns := make([]model.ConversationTurn, 0, maxStoredTurns+4)
	for i := 0; i < maxStoredTurns+4; i++ {
		turns = append(turns, userTurn(fmt.Sprintf("m%d", i)))
	}
	conv, err := repo.Append(ctx, "conv-long", turns...)
	require.NoError(t, err)

	require.Len(t, conv.Turns, maxStoredTurns)
	assert.Equal(t, "m4", conv.Turns[0].Content, "裁剪必须从最旧的一端开始")
}

func TestConversationHasTTL(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	conv, err := repo.Append(ctx, "", userTurn("hello"))
	require.NoError(t, err)

	ttl := mr.TTL(conversationKey(conv.ID))
	assert.Equal(t, conversationTTL, ttl)

	// TTL 到期后对话消失
	mr.FastForward(conversationTTL + time.Minute)
	_, err = repo.Get(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}
