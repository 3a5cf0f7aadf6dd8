package core

import "context"

// LabelScore is the similarity of a text to one classification label.
type LabelScore struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// Classification holds the best label and every label's score, highest first.
type Classification struct {
	Label  string       `json:"label"`
	Scores []LabelScore `json:"scores"`
}

type Classifier interface {
	Classify(ctx context.Context, text string) (*Classification, error)
}

type Generator interface {
	Generate(ctx context.Context, text string) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
