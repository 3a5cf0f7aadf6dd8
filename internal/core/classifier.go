package core

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/healthbot/healthbot/internal/utils"
)

// Label is a classification target; Description is what gets embedded.
type Label struct {
	Name        string
	Description string
}

var DefaultLabels = []Label{
	{Name: "symptom", Description: "Describing physical symptoms such as pain, headache, fever, cough, nausea or fatigue"},
	{Name: "treatment", Description: "Asking how to treat, cure or relieve a health problem"},
	{Name: "medication", Description: "Questions about medicines, drugs, dosage, side effects and prescriptions"},
	{Name: "condition", Description: "Asking for information about a disease, disorder or medical condition"},
	{Name: "mental_health", Description: "Stress, anxiety, depression, sleep problems and emotional wellbeing"},
	{Name: "lifestyle", Description: "Diet, nutrition, exercise, weight and healthy habits for prevention"},
	{Name: "emergency", Description: "Urgent danger such as chest pain, difficulty breathing, heavy bleeding or loss of consciousness"},
	{Name: "general", Description: "General conversation or a question that is not about health"},
}

// EmbeddingClassifier is a zero-shot classifier: the text is scored against
// each label description by cosine similarity of their embeddings.
type EmbeddingClassifier struct {
	embedder Embedder
	labels   []Label

	mu      sync.Mutex
	vectors [][]float32 // label embeddings, computed on first successful use
}

func NewEmbeddingClassifier(embedder Embedder, labels []Label) *EmbeddingClassifier {
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	return &EmbeddingClassifier{embedder: embedder, labels: labels}
}

func (c *EmbeddingClassifier) Classify(ctx context.Context, text string) (*Classification, error) {
	vectors, err := c.labelVectors(ctx)
	if err != nil {
		return nil, err
	}

	query, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInferenceUnavailable, err)
	}

	scores := make([]LabelScore, 0, len(c.labels))
	for i, label := range c.labels {
		sim, err := utils.CosineSimilarity(query, vectors[i])
		if err != nil {
			return nil, fmt.Errorf("%w: scoring label %s: %v", ErrInferenceUnavailable, label.Name, err)
		}
		scores = append(scores, LabelScore{Label: label.Name, Score: sim})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})

	return &Classification{Label: scores[0].Label, Scores: scores}, nil
}

// labelVectors returns the cached label embeddings, computing them on first
// use. The embedding calls run without the lock held; concurrent first callers
// may each compute them and the first to finish wins. A failure caches nothing.
func (c *EmbeddingClassifier) labelVectors(ctx context.Context) ([][]float32, error) {
	c.mu.Lock()
	cached := c.vectors
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	vectors := make([][]float32, 0, len(c.labels))
	for _, label := range c.labels {
		v, err := c.embedder.Embed(ctx, label.Description)
		if err != nil {
			return nil, fmt.Errorf("%w: embedding label %s: %v", ErrInferenceUnavailable, label.Name, err)
		}
		vectors = append(vectors, v)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vectors == nil {
		c.vectors = vectors
	}
	return c.vectors, nil
}
