package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/healthbot/healthbot/internal/core"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRef points at one history entry; Label is its timestamp in the
// display timezone.
type ChatRef struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// Confirmation is a destructive action waiting for /yes or /cancel.
type Confirmation string

const (
	ConfirmNone          Confirmation = ""
	ConfirmClearChat     Confirmation = "clear_chat"
	ConfirmDeleteHistory Confirmation = "delete_history"
)

// Session is the whole client-side state. It is passed explicitly to every
// update and render step and persisted between runs.
type Session struct {
	AuthToken    string       `json:"auth_token,omitempty"`
	Username     string       `json:"username,omitempty"`
	IsGuest      bool         `json:"is_guest"`
	Messages     []Message    `json:"messages"`
	ChatSessions []ChatRef    `json:"chat_sessions"`
	SelectedChat *int64       `json:"selected_chat,omitempty"`
	Pending      Confirmation `json:"pending,omitempty"`
}

func NewSession() *Session {
	return &Session{IsGuest: true}
}

func (s *Session) LoggedIn() bool {
	return s.AuthToken != ""
}

// Bearer is the credential sent with chat requests.
func (s *Session) Bearer() string {
	if s.IsGuest {
		return core.GuestToken
	}
	return s.AuthToken
}

func (s *Session) SignIn(username, token string) {
	s.AuthToken = token
	s.Username = username
	s.IsGuest = false
}

func (s *Session) SignInGuest() {
	s.AuthToken = core.GuestToken
	s.Username = core.GuestUsername
	s.IsGuest = true
}

// SignOut resets everything back to a fresh session.
func (s *Session) SignOut() {
	*s = *NewSession()
}

func (s *Session) AddMessage(role Role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
}

func (s *Session) ClearChat() {
	s.Messages = nil
	s.SelectedChat = nil
}

func (s *Session) ClearHistory() {
	s.Messages = nil
	s.ChatSessions = nil
	s.SelectedChat = nil
}

// LoadSession reads a saved session; a missing file yields a new one.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewSession(), nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	s := NewSession()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to decode session file %s: %w", path, err)
	}
	return s, nil
}

func SaveSession(path string, s *Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
