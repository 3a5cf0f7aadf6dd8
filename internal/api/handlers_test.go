package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/healthbot/healthbot/internal/auth"
	"github.com/healthbot/healthbot/internal/core"
	"github.com/healthbot/healthbot/internal/store"
)

type stubClassifier struct{ err error }

func (s stubClassifier) Classify(_ context.Context, _ string) (*core.Classification, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &core.Classification{Label: "symptom", Scores: []core.LabelScore{{Label: "symptom", Score: 0.87}}}, nil
}

type stubGenerator struct{ err error }

func (s stubGenerator) Generate(_ context.Context, text string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "Rest and drink plenty of water.", nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	server *httptest.Server
	db     *store.SQLiteStore
	clock  *testClock
}

func newTestEnv(t *testing.T, classifier core.Classifier, generator core.Generator) *testEnv {
	t.Helper()
	return newTestEnvWithLogger(t, classifier, generator, zap.NewNop())
}

func newTestEnvWithLogger(t *testing.T, classifier core.Classifier, generator core.Generator, log *zap.Logger) *testEnv {
	t.Helper()

	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &testEnv{db: db, clock: &testClock{t: time.Now()}}
	tokens, err := auth.NewTokenService("test_secret_key_very_long_for_testing", auth.WithClock(env.clock.Now))
	require.NoError(t, err)

	authService := core.NewAuthService(db, tokens, log)
	chatService := core.NewChatService(db, classifier, generator, log)
	env.server = httptest.NewServer(NewRouter(NewAPIHandler(authService, chatService, log), log))
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func (e *testEnv) registerAndLogin(t *testing.T, username, password string) string {
	t.Helper()
	resp, _ := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return body["token"].(string)
}

func TestEndToEnd_RegisterLoginChatHistory(t *testing.T) {
	env := newTestEnv(t, stubClassifier{}, stubGenerator{})

	resp, body := env.do(t, http.MethodPost, "/auth/register", "", map[string]string{"username": "bob", "password": "s3cr3t"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "User registered successfully", body["message"])

	resp, body = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "bob", "password": "s3cr3t"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	resp, body = env.do(t, http.MethodPost, "/healthbot", token, map[string]string{"query": "I have a headache"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["response"])
	assert.NotEmpty(t, body["classification"])

	resp, body = env.do(t, http.MethodGet, "/chat_history/", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history, ok := body["history"].(map[string]any)
	require.True(t, ok)
	require.Len(t, history, 1)

	var entries []any
	for _, day := range history {
		entries = append(entries, day.([]any)...)
	}
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]any)
	assert.Equal(t, "I have a headache", entry["query"])

	entryID := strconv.FormatInt(int64(entry["id"].(float64)), 10)
	resp, body = env.do(t, http.MethodGet, "/chat_history/"+entryID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "I have a headache", body["query"])
	assert.Equal(t, "Rest and drink plenty of water.", body["response"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestRegister_Failures(t *testing.T) {
	env := newTestEnv(t, stubClassifier{}, stubGenerator{})
	env.registerAndLogin(t, "bob", "s3cr3t")

	resp, body := env.do(t, http.MethodPost, "/auth/register", "", map[string]string{"username": "bob", "password": "other"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Username already exists", body["detail"])

	// the original credentials still own the name
	resp, _ = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "bob", "password": "other"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "bob", "password": "s3cr3t"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/auth/register", "", map[string]string{"username": "", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/auth/register", "", map[string]string{"username": "carol"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/auth/register", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t, stubClassifier{}, stubGenerator{})
	env.registerAndLogin(t, "bob", "s3cr3t")

	resp, body := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "bob", "password": "wrong"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.NotContains(t, body, "token")

	resp, body = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "nobody", "password": "s3cr3t"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.NotContains(t, body, "token")
}

func TestLogin_PasswordLongerThanBcryptLimit(t *testing.T) {
	env := newTestEnv(t, stubClassifier{}, stubGenerator{})
	password := strings.Repeat("x", 72)
	env.registerAndLogin(t, "bob", password)

	resp, body := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "bob", "password": password + "WRONG-SUFFIX"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "Invalid username or password", body["detail"])
	assert.NotContains(t, body, "token")

	resp, _ = env.do(t, http.MethodPost, "/auth/register", "", map[string]string{"username": "carol", "password": password + "y"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIdentityMiddleware_LogsIdentityKind(t *testing.T) {
	obs, logs := observer.New(zap.DebugLevel)
	env := newTestEnvWithLogger(t, stubClassifier{}, stubGenerator{}, zap.New(obs))
	token := env.registerAndLogin(t, "bob", "s3cr3t")

	resp, _ := env.do(t, http.MethodPost, "/healthbot", core.GuestToken, map[string]string{"query": "hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/chat_history", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/chat_history", core.GuestToken, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// the guest rejected from history never reaches resolution
	resolved := logs.FilterMessage("identity resolved").All()
	require.Len(t, resolved, 2)
	assert.Equal(t, "guest", resolved[0].ContextMap()["identity"])
	assert.Equal(t, "registered", resolved[1].ContextMap()["identity"])
	assert.Equal(t, "bob", resolved[1].ContextMap()["username"])

	rejected := logs.FilterMessage("identity rejected on registered-only route").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, "guest", rejected[0].ContextMap()["identity"])
}

func TestChat_Guest(t *testing.T) {
	env := newTestEnv(t, stubClassifier{}, stubGenerator{})
	token := env.registerAndLogin(t, "bob", "s3cr3t")

	for i := 0; i < 3; i++ {
		resp, body := env.do(t, http.MethodPost, "/healthbot", core.GuestToken, map[string]string{"query": "hello"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, body["response"])
	}

	resp, body := env.do(t, http.MethodGet, "/chat_history", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["history"])

	// the guest sentinel does not open history
	resp, _ = env.do(t, http.MethodGet, "/chat_history", core.GuestToken, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChat_Failures(t *testing.T) {
	env := newTestEnv(t, stubClassifier{}, stubGenerator{})
	token := env.registerAndLogin(t, "bob", "s3cr3t")

	resp, body := env.do(t, http.MethodPost, "/healthbot", token, map[string]string{"query": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Query is required", body["detail"])

	resp, _ = env.do(t, http.MethodPost, "/healthbot", token, map[string]string{"query": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/healthbot", "", map[string]string{"query": "hi"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))

	resp, body = env.do(t, http.MethodPost, "/healthbot", "not-a-token", map[string]string{"query": "hi"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid token", body["detail"])
}

func TestChat_InferenceUnavailable(t *testing.T) {
	env := newTestEnv(t, stubClassifier{}, stubGenerator{err: core.ErrInferenceUnavailable})
	token := env.registerAndLogin(t, "bob", "s3cr3t")

	resp, _ := env.do(t, http.MethodPost, "/healthbot", token, map[string]string{"query": "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, body := env.do(t, http.MethodGet, "/chat_history", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["history"])
}

func TestHistory_ExpiredToken(t *testing.T) {
	env := newTestEnv(t, stubClassifier{}, stubGenerator{})
	token := env.registerAndLogin(t, "bob", "s3cr3t")

	env.clock.Advance(auth.TokenTTL + time.Second)

	resp, body := env.do(t, http.MethodGet, "/chat_history", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Token expired", body["detail"])
	assert.NotContains(t, body, "history")
}

func TestHistory_Isolation(t *testing.T) {
	env := newTestEnv(t, stubClassifier{}, stubGenerator{})
	alice := env.registerAndLogin(t, "alice", "pw-a")
	bob := env.registerAndLogin(t, "bob", "pw-b")

	resp, _ := env.do(t, http.MethodPost, "/healthbot", bob, map[string]string{"query": "bob's secret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	entries, err := env.db.ListChatEntries(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	for _, id := range []int64{entries[0].ID, entries[0].ID + 1} {
		resp, body := env.do(t, http.MethodGet, "/chat_history/"+strconv.FormatInt(id, 10), alice, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "Chat not found", body["detail"])
	}

	resp, _ = env.do(t, http.MethodGet, "/chat_history/abc", alice, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteHistory(t *testing.T) {
	env := newTestEnv(t, stubClassifier{}, stubGenerator{})
	token := env.registerAndLogin(t, "bob", "s3cr3t")

	// nothing to delete yet
	resp, body := env.do(t, http.MethodDelete, "/chat_history/delete/", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Chat history deleted successfully", body["message"])

	for i := 0; i < 2; i++ {
		resp, _ = env.do(t, http.MethodPost, "/healthbot", token, map[string]string{"query": "q"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodDelete, "/chat_history/delete", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/chat_history", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["history"])

	resp, _ = env.do(t, http.MethodDelete, "/chat_history/delete", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthAndRequestID(t *testing.T) {
	env := newTestEnv(t, stubClassifier{}, stubGenerator{})

	resp, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get(headerRequestID))
}
