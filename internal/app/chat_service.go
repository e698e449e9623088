package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"chatpdf/internal/ai"
	"chatpdf/internal/model"
)

var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrNoQuery         = errors.New("no user query was provided")
	ErrModelOverloaded = errors.New("the AI model is temporarily overloaded")
)

const (
	// NoContextReply is returned verbatim when retrieval finds nothing
	// relevant; the generator is never invoked in that case.
	NoContextReply = "I couldn't find any relevant information in the uploaded PDF to answer that question. Please try asking about something that appears in the document."

	groundingInstruction = `You are an AI assistant that must ONLY answer using the supplied PDF context. Never rely on outside knowledge. If the answer is not in the context, reply with "I'm sorry, but I don't know the answer to that question." Keep responses concise and cite page numbers when available.`

	emptyAnswerReply = "The model returned an empty response."

	defaultTopK = 5
)

// Generator issues a grounded conversation to the generative model with
// bounded retry on transient overload.
type Generator interface {
	GenerateWithRetry(ctx context.Context, contents []ai.Content, policy ai.RetryPolicy) (*ai.GenerateResponse, error)
}

// ChatStore is the chat metadata mapping (chat id -> document key).
type ChatStore interface {
	Create(chat *model.Chat) error
	GetByIDAndUserID(id, userID uint) (*model.Chat, error)
	ListByUserID(userID uint) ([]model.Chat, error)
	DeleteByIDAndUserID(id, userID uint) error
}

type MessageStore interface {
	ListByChatID(chatID uint, limit int) ([]model.Message, error)
	DeleteByChatID(chatID uint) error
}

type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, chatID uint) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, chatID uint, messages []model.Message) error
	DeleteHistory(ctx context.Context, chatID uint) error
	MarkDirty(ctx context.Context, chatID uint) error
	IsDirty(ctx context.Context, chatID uint) (bool, error)
}

// ChatService owns the query path: retrieve grounding context for a chat's
// document and produce a grounded answer. It also creates chats, which
// triggers document ingestion first.
type ChatService struct {
	chatStore    ChatStore
	messageStore MessageStore
	publisher    AsyncMessagePublisher
	historyCache HistoryCache
	ingest       *IngestService
	embedder     Embedder
	index        VectorIndex
	generator    Generator
	retryPolicy  ai.RetryPolicy
	topK         int
	log          *zap.Logger
}

func NewChatService(
	chatStore ChatStore,
	messageStore MessageStore,
	publisher AsyncMessagePublisher,
	historyCache HistoryCache,
	ingest *IngestService,
	embedder Embedder,
	index VectorIndex,
	generator Generator,
	retryPolicy ai.RetryPolicy,
	topK int,
	log *zap.Logger,
) *ChatService {
	if topK <= 0 {
		topK = defaultTopK
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{
		chatStore:    chatStore,
		messageStore: messageStore,
		publisher:    publisher,
		historyCache: historyCache,
		ingest:       ingest,
		embedder:     embedder,
		index:        index,
		generator:    generator,
		retryPolicy:  retryPolicy,
		topK:         topK,
		log:          log,
	}
}

type CreateChatInput struct {
	UserID       uint
	FileKey      string
	FileName     string
	ResourceType string
}

type CreateChatResult struct {
	Chat       model.Chat `json:"chat"`
	ChunkCount int        `json:"chunk_count"`
}

// CreateChat ingests the uploaded document, then records the chat mapping.
// An ingestion failure aborts chat creation; the caller may retry the
// whole upload (upserts are content-addressed, so a retry is idempotent).
func (s *ChatService) CreateChat(ctx context.Context, input CreateChatInput) (*CreateChatResult, error) {
	if input.UserID == 0 || strings.TrimSpace(input.FileKey) == "" {
		return nil, ErrInvalidInput
	}
	name := strings.TrimSpace(input.FileName)
	if name == "" {
		name = "Untitled"
	}

	count, err := s.ingest.Ingest(ctx, input.FileKey, input.ResourceType)
	if err != nil {
		return nil, err
	}

	chat := &model.Chat{
		UserID:       input.UserID,
		PDFName:      name,
		PDFURL:       s.ingest.fetcher.URL(input.FileKey, input.ResourceType),
		FileKey:      input.FileKey,
		ResourceType: input.ResourceType,
	}
	if err := s.chatStore.Create(chat); err != nil {
		return nil, err
	}
	return &CreateChatResult{Chat: *chat, ChunkCount: count}, nil
}

func (s *ChatService) ListChats(userID uint) ([]model.Chat, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.chatStore.ListByUserID(userID)
}

// DeleteChat removes the chat, its persisted messages, and its cached
// history. Indexed vectors stay in the document's namespace; they are
// content-addressed, so a later re-upload of the same document reuses them.
func (s *ChatService) DeleteChat(ctx context.Context, userID, chatID uint) error {
	if userID == 0 || chatID == 0 {
		return ErrInvalidInput
	}

	chat, err := s.chatStore.GetByIDAndUserID(chatID, userID)
	if err != nil {
		return err
	}
	if chat == nil {
		return ErrChatNotFound
	}

	if err := s.messageStore.DeleteByChatID(chatID); err != nil {
		return err
	}
	if err := s.chatStore.DeleteByIDAndUserID(chatID, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		if err := s.historyCache.DeleteHistory(ctx, chatID); err != nil {
			s.log.Warn("drop cached history failed", zap.Uint("chat_id", chatID), zap.Error(err))
		}
	}
	return nil
}

// ChatTurn is one entry of the caller-supplied message history.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AnswerInput struct {
	UserID   uint
	ChatID   uint
	Messages []ChatTurn
}

type AnswerResult struct {
	Answer   string `json:"answer"`
	Grounded bool   `json:"grounded"`
}

// Answer retrieves grounding context for the latest user message and asks
// the generative model. Retrieval failures degrade to the no-context reply
// instead of failing the request; only generation errors propagate, with
// exhausted overload retries surfaced as ErrModelOverloaded.
func (s *ChatService) Answer(ctx context.Context, input AnswerInput) (*AnswerResult, error) {
	if input.UserID == 0 || input.ChatID == 0 {
		return nil, ErrInvalidInput
	}

	chat, err := s.chatStore.GetByIDAndUserID(input.ChatID, input.UserID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}

	query := ""
	if len(input.Messages) > 0 {
		query = strings.TrimSpace(input.Messages[len(input.Messages)-1].Content)
	}
	if query == "" {
		return nil, ErrNoQuery
	}

	contextText := s.retrieveContext(ctx, chat.FileKey, query)
	if contextText == "" {
		s.persistExchange(ctx, chat, query, NoContextReply)
		return &AnswerResult{Answer: NoContextReply, Grounded: false}, nil
	}

	contents := buildContents(contextText, input.Messages)
	resp, err := s.generator.GenerateWithRetry(ctx, contents, s.retryPolicy)
	if err != nil {
		if ai.IsOverloaded(err) {
			s.log.Warn("generation retries exhausted", zap.Uint("chat_id", chat.ID), zap.Error(err))
			return nil, ErrModelOverloaded
		}
		return nil, err
	}

	answer := strings.TrimSpace(resp.FirstText())
	if answer == "" {
		answer = emptyAnswerReply
	}

	s.persistExchange(ctx, chat, query, answer)
	return &AnswerResult{Answer: answer, Grounded: true}, nil
}

// retrieveContext embeds the query and assembles context from the chat's
// namespace. Any failure here is logged and treated as "no context
// available": availability over completeness.
func (s *ChatService) retrieveContext(ctx context.Context, fileKey, query string) string {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.log.Warn("query embedding failed", zap.String("file_key", fileKey), zap.Error(err))
		return ""
	}
	matches, err := s.index.Query(ctx, fileKey, vec, s.topK)
	if err != nil {
		s.log.Warn("vector query failed", zap.String("file_key", fileKey), zap.Error(err))
		return ""
	}
	return AssembleContext(matches)
}

// buildContents prepends the grounding instruction and the context turn to
// the normalized message history.
func buildContents(contextText string, history []ChatTurn) []ai.Content {
	contents := make([]ai.Content, 0, len(history)+2)
	contents = append(contents, ai.Content{
		Role:  "user",
		Parts: []ai.Part{{Text: groundingInstruction}},
	})
	contents = append(contents, ai.Content{
		Role: "user",
		Parts: []ai.Part{{Text: "Context from the uploaded PDF:\n" + contextText +
			"\nDo not use any information beyond this context."}},
	})
	for _, turn := range history {
		contents = append(contents, ai.Content{
			Role:  normalizeRole(turn.Role),
			Parts: []ai.Part{{Text: turn.Content}},
		})
	}
	return contents
}

// normalizeRole collapses history roles to the two the model accepts.
func normalizeRole(role string) string {
	if role == "assistant" || role == "model" {
		return "model"
	}
	return "user"
}

// persistExchange enqueues the question and answer for async persistence
// and invalidates the cached history. Best effort: a broker hiccup must
// not fail an answered request.
func (s *ChatService) persistExchange(ctx context.Context, chat *model.Chat, question, answer string) {
	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, chat.ID)
		_ = s.historyCache.DeleteHistory(ctx, chat.ID)
	}
	if s.publisher == nil {
		return
	}
	now := time.Now()
	userMsg := model.Message{ChatID: chat.ID, UserID: chat.UserID, Role: "user", Content: question, CreatedAt: now}
	assistantMsg := model.Message{ChatID: chat.ID, UserID: chat.UserID, Role: "assistant", Content: answer, CreatedAt: now}
	if err := s.publisher.Publish(ctx, userMsg); err != nil {
		s.log.Warn("enqueue user message failed", zap.Uint("chat_id", chat.ID), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, assistantMsg); err != nil {
		s.log.Warn("enqueue assistant message failed", zap.Uint("chat_id", chat.ID), zap.Error(err))
	}
}

// GetHistory returns the chat's persisted messages, served from the Redis
// cache when it is fresh.
func (s *ChatService) GetHistory(ctx context.Context, userID, chatID uint, limit int) ([]model.Message, error) {
	if userID == 0 || chatID == 0 {
		return nil, ErrInvalidInput
	}

	chat, err := s.chatStore.GetByIDAndUserID(chatID, userID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}

	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, chatID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, chatID); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	messages, err := s.messageStore.ListByChatID(chatID, limit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, chatID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, chatID, messages)
		}
	}
	return messages, nil
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
