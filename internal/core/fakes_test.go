package core

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/healthbot/healthbot/internal/store"
)

var errBackendDown = errors.New("backend down")

type fakeClassifier struct {
	err   error
	calls int
}

func (f *fakeClassifier) Classify(_ context.Context, text string) (*Classification, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Classification{Label: "symptom", Scores: []LabelScore{{Label: "symptom", Score: 0.9}}}, nil
}

type fakeGenerator struct {
	err error
}

func (f *fakeGenerator) Generate(_ context.Context, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "Answer: " + text, nil
}

// keywordEmbedder maps text onto a 3-dimensional space keyed by words.
type keywordEmbedder struct {
	err   error
	calls int
}

func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	t := strings.ToLower(text)
	v := []float32{0.01, 0.01, 0.01}
	if strings.Contains(t, "pain") || strings.Contains(t, "headache") {
		v[0] = 1
	}
	if strings.Contains(t, "drug") || strings.Contains(t, "pill") {
		v[1] = 1
	}
	if strings.Contains(t, "weather") {
		v[2] = 1
	}
	return v, nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "core.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
