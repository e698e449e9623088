package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpdf/internal/ai"
	"chatpdf/internal/app"
	"chatpdf/internal/model"
	"chatpdf/internal/platform/pinecone"
	"chatpdf/internal/transport/http/middleware"
	"chatpdf/internal/transport/http/response"
)

type stubChatStore struct {
	chat *model.Chat
}

func (s *stubChatStore) Create(chat *model.Chat) error { return nil }

func (s *stubChatStore) GetByIDAndUserID(id, userID uint) (*model.Chat, error) {
	if s.chat != nil && s.chat.ID == id && s.chat.UserID == userID {
		return s.chat, nil
	}
	return nil, nil
}

func (s *stubChatStore) ListByUserID(userID uint) ([]model.Chat, error) {
	if s.chat == nil {
		return nil, nil
	}
	return []model.Chat{*s.chat}, nil
}

func (s *stubChatStore) DeleteByIDAndUserID(id, userID uint) error {
	if s.chat != nil && s.chat.ID == id && s.chat.UserID == userID {
		s.chat = nil
	}
	return nil
}

type stubMessageStore struct{}

func (s *stubMessageStore) ListByChatID(chatID uint, limit int) ([]model.Message, error) {
	return nil, nil
}

func (s *stubMessageStore) DeleteByChatID(chatID uint) error { return nil }

type stubFetcher struct{}

func (stubFetcher) Fetch(context.Context, string, string) (string, error) { return "", nil }
func (stubFetcher) URL(fileKey, _ string) string                          { return fileKey }

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1}, nil
}

type stubIndex struct {
	matches []pinecone.Match
}

func (s *stubIndex) Upsert(context.Context, string, []pinecone.Record) error { return nil }

func (s *stubIndex) Query(context.Context, string, []float32, int) ([]pinecone.Match, error) {
	return s.matches, nil
}

type stubGenerator struct {
	resp *ai.GenerateResponse
	err  error
}

func (g *stubGenerator) GenerateWithRetry(context.Context, []ai.Content, ai.RetryPolicy) (*ai.GenerateResponse, error) {
	return g.resp, g.err
}

func setUser(userID uint) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, userID)
		c.Next()
	}
}

func newTestRouter(chatStore *stubChatStore, index *stubIndex, generator *stubGenerator, userID uint) *gin.Engine {
	gin.SetMode(gin.TestMode)
	embedder := stubEmbedder{}
	ingest := app.NewIngestService(stubFetcher{}, embedder, index, nil)
	svc := app.NewChatService(
		chatStore, &stubMessageStore{}, nil, nil,
		ingest, embedder, index, generator,
		ai.DefaultRetryPolicy(), 5, nil,
	)
	h := NewChatHandler(svc)

	router := gin.New()
	group := router.Group("/api/v1/chats")
	if userID != 0 {
		group.Use(setUser(userID))
	}
	group.POST("/:id/messages", h.SendMessage)
	group.GET("/:id/history", h.GetHistory)
	group.GET("", h.ListChats)
	group.DELETE("/:id", h.DeleteChat)
	return router
}

func postMessages(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) response.APIResponse {
	t.Helper()
	var resp response.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSendMessage_OK(t *testing.T) {
	chatStore := &stubChatStore{chat: &model.Chat{ID: 1, UserID: 10, FileKey: "doc.pdf"}}
	index := &stubIndex{matches: []pinecone.Match{
		{ID: "a", Metadata: pinecone.Metadata{Text: "passage", PageNumber: 1}},
	}}
	generator := &stubGenerator{resp: &ai.GenerateResponse{Candidates: []ai.Candidate{
		{Content: ai.Content{Parts: []ai.Part{{Text: "the answer"}}}},
	}}}
	router := newTestRouter(chatStore, index, generator, 10)

	w := postMessages(t, router, "/api/v1/chats/1/messages", gin.H{
		"messages": []gin.H{{"role": "user", "content": "question"}},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, response.CodeOK, resp.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "the answer", data["answer"])
	assert.Equal(t, true, data["grounded"])
}

func TestSendMessage_ModelOverloaded(t *testing.T) {
	chatStore := &stubChatStore{chat: &model.Chat{ID: 1, UserID: 10, FileKey: "doc.pdf"}}
	index := &stubIndex{matches: []pinecone.Match{
		{ID: "a", Metadata: pinecone.Metadata{Text: "passage", PageNumber: 1}},
	}}
	generator := &stubGenerator{err: &ai.APIError{StatusCode: http.StatusServiceUnavailable, Message: "overloaded"}}
	router := newTestRouter(chatStore, index, generator, 10)

	w := postMessages(t, router, "/api/v1/chats/1/messages", gin.H{
		"messages": []gin.H{{"role": "user", "content": "question"}},
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, response.CodeModelOverloaded, resp.Code)
}

func TestSendMessage_ChatNotFound(t *testing.T) {
	router := newTestRouter(&stubChatStore{}, &stubIndex{}, &stubGenerator{}, 10)

	w := postMessages(t, router, "/api/v1/chats/99/messages", gin.H{
		"messages": []gin.H{{"role": "user", "content": "question"}},
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, response.CodeChatNotFound, resp.Code)
}

func TestSendMessage_BadRequest(t *testing.T) {
	chatStore := &stubChatStore{chat: &model.Chat{ID: 1, UserID: 10, FileKey: "doc.pdf"}}
	router := newTestRouter(chatStore, &stubIndex{}, &stubGenerator{}, 10)

	// Empty messages array fails binding.
	w := postMessages(t, router, "/api/v1/chats/1/messages", gin.H{"messages": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Non-numeric chat id.
	w = postMessages(t, router, "/api/v1/chats/abc/messages", gin.H{
		"messages": []gin.H{{"role": "user", "content": "q"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendMessage_Unauthenticated(t *testing.T) {
	router := newTestRouter(&stubChatStore{}, &stubIndex{}, &stubGenerator{}, 0)

	w := postMessages(t, router, "/api/v1/chats/1/messages", gin.H{
		"messages": []gin.H{{"role": "user", "content": "q"}},
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetHistory_ChatNotFound(t *testing.T) {
	router := newTestRouter(&stubChatStore{}, &stubIndex{}, &stubGenerator{}, 10)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chats/5/history", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, response.CodeChatNotFound, resp.Code)
}

func TestDeleteChat_OK(t *testing.T) {
	chatStore := &stubChatStore{chat: &model.Chat{ID: 1, UserID: 10, FileKey: "doc.pdf"}}
	router := newTestRouter(chatStore, &stubIndex{}, &stubGenerator{}, 10)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/chats/1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, chatStore.chat)

	// A second delete of the same chat is a 404.
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/chats/1", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListChats_OK(t *testing.T) {
	chatStore := &stubChatStore{chat: &model.Chat{ID: 1, UserID: 10, PDFName: "Report", FileKey: "doc.pdf"}}
	router := newTestRouter(chatStore, &stubIndex{}, &stubGenerator{}, 10)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, response.CodeOK, resp.Code)
}
