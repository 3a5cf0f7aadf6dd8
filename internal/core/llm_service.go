package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	defaultChatModelName      = "gemini-1.5-flash-latest"
	defaultEmbeddingModelName = "text-embedding-004"

	chatSystemInstruction = "You are a helpful health assistant. Answer questions about medical symptoms, treatments " +
		"and general health advice clearly and concisely. " +
		"You are not a substitute for a doctor: recommend professional care when symptoms sound serious."
)

// LLMService talks to Gemini. It generates answers and provides the
// embeddings used by EmbeddingClassifier.
type LLMService struct {
	client *genai.Client
	log    *zap.Logger
}

func NewLLMService(ctx context.Context, apiKey string, log *zap.Logger) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &LLMService{
		client: client,
		log:    log,
	}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.log.Error("error closing GenAI client", zap.Error(err))
		} else {
			s.log.Info("GenAI client closed")
		}
	}
}

func (s *LLMService) Embed(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(defaultEmbeddingModelName)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}

	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

// Generate returns the model's answer verbatim. Failures and empty answers
// are reported as ErrInferenceUnavailable.
func (s *LLMService) Generate(ctx context.Context, text string) (string, error) {
	model := s.client.GenerativeModel(defaultChatModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return "", fmt.Errorf("%w: gemini request failed: %v", ErrInferenceUnavailable, err)
	}

	answer := responseText(resp)
	if answer == "" {
		s.log.Warn("gemini response was empty or had no text parts")
		return "", fmt.Errorf("%w: empty response from gemini", ErrInferenceUnavailable)
	}
	return answer, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
