package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/healthbot/healthbot/internal/store"
)

// DateLayout is the key format of grouped history.
const DateLayout = "2006-01-02"

// HistoryStore persists chat entries of registered users.
type HistoryStore interface {
	AppendChatEntry(ctx context.Context, userID int64, query, response string) (*store.ChatEntry, error)
	ListChatEntries(ctx context.Context, userID int64) ([]store.ChatEntry, error)
	GetChatEntry(ctx context.Context, entryID, userID int64) (*store.ChatEntry, error)
	DeleteChatEntries(ctx context.Context, userID int64) (int64, error)
}

type ChatService struct {
	history    HistoryStore
	classifier Classifier
	generator  Generator
	log        *zap.Logger
}

func NewChatService(history HistoryStore, classifier Classifier, generator Generator, log *zap.Logger) *ChatService {
	return &ChatService{
		history:    history,
		classifier: classifier,
		generator:  generator,
		log:        log,
	}
}

type ChatReply struct {
	Classification *Classification
	Response       string
}

// Chat runs one turn. Only turns of registered users are persisted.
func (s *ChatService) Chat(ctx context.Context, id Identity, query string) (*ChatReply, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}

	classification, err := s.classifier.Classify(ctx, query)
	if err != nil {
		s.log.Error("classification failed", zap.Error(err))
		return nil, err
	}

	response, err := s.generator.Generate(ctx, query)
	if err != nil {
		s.log.Error("generation failed", zap.Error(err))
		return nil, err
	}

	if !id.IsGuest() {
		if _, err := s.history.AppendChatEntry(ctx, id.UserID, query, response); err != nil {
			return nil, fmt.Errorf("failed to store chat entry: %w", err)
		}
	}

	return &ChatReply{Classification: classification, Response: response}, nil
}

// History returns the user's entries grouped by UTC calendar date, newest
// first within each day. Conversion to a display timezone is left to clients.
func (s *ChatService) History(ctx context.Context, userID int64) (map[string][]store.ChatEntry, error) {
	entries, err := s.history.ListChatEntries(ctx, userID)
	if err != nil {
		return nil, err
	}
	return GroupByDate(entries), nil
}

func GroupByDate(entries []store.ChatEntry) map[string][]store.ChatEntry {
	grouped := make(map[string][]store.ChatEntry)
	for _, e := range entries {
		date := e.Timestamp.UTC().Format(DateLayout)
		grouped[date] = append(grouped[date], e)
	}
	return grouped
}

func (s *ChatService) GetEntry(ctx context.Context, entryID, userID int64) (*store.ChatEntry, error) {
	entry, err := s.history.GetChatEntry(ctx, entryID, userID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrNotFound
	}
	return entry, nil
}

func (s *ChatService) DeleteHistory(ctx context.Context, userID int64) error {
	n, err := s.history.DeleteChatEntries(ctx, userID)
	if err != nil {
		return err
	}
	s.log.Info("chat history deleted", zap.Int64("user_id", userID), zap.Int64("entries", n))
	return nil
}
