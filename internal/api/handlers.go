package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/healthbot/healthbot/internal/core"
	"github.com/healthbot/healthbot/internal/store"
)

type APIHandler struct {
	authService *core.AuthService
	chatService *core.ChatService
	validate    *validator.Validate
	log         *zap.Logger
}

func NewAPIHandler(as *core.AuthService, cs *core.ChatService, log *zap.Logger) *APIHandler {
	return &APIHandler{
		authService: as,
		chatService: cs,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		log:         log,
	}
}

// decode reads a JSON body into dst and validates it.
func (h *APIHandler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

type CredentialsRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	if _, err := h.authService.Register(r.Context(), req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, core.ErrDuplicateUsername):
			writeError(w, http.StatusBadRequest, "Username already exists")
		case errors.Is(err, core.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "Username and password are required")
		default:
			h.log.Error("error registering user", zap.String("username", req.Username), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to register user")
		}
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "User registered successfully"})
}

type LoginResponse struct {
	Token string `json:"token"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid username or password")
		return
	}

	token, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, core.ErrAuthenticationFailure) {
			writeError(w, http.StatusUnprocessableEntity, "Invalid username or password")
			return
		}
		h.log.Error("error logging in", zap.String("username", req.Username), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token})
}

type ChatRequest struct {
	Query string `json:"query" validate:"required"`
}

type ChatResponse struct {
	Classification *core.Classification `json:"classification"`
	Response       string               `json:"response"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	var req ChatRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}

	reply, err := h.chatService.Chat(r.Context(), id, req.Query)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "Query is required")
		case errors.Is(err, core.ErrInferenceUnavailable):
			writeError(w, http.StatusServiceUnavailable, "Inference service unavailable")
		default:
			h.log.Error("error handling chat turn",
				zap.Stringer("identity", id.Kind),
				zap.String("username", id.Username),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "Failed to process query")
		}
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Classification: reply.Classification, Response: reply.Response})
}

type HistoryEntry struct {
	ID        int64     `json:"id"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

type HistoryResponse struct {
	History map[string][]HistoryEntry `json:"history"`
}

func toHistoryEntry(e store.ChatEntry) HistoryEntry {
	return HistoryEntry{ID: e.ID, Query: e.Query, Response: e.Response, Timestamp: e.Timestamp.UTC()}
}

func (h *APIHandler) ListHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	grouped, err := h.chatService.History(r.Context(), id.UserID)
	if err != nil {
		h.log.Error("error listing chat history", zap.Int64("user_id", id.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list chat history")
		return
	}

	resp := HistoryResponse{History: make(map[string][]HistoryEntry, len(grouped))}
	for date, entries := range grouped {
		for _, e := range entries {
			resp.History[date] = append(resp.History[date], toHistoryEntry(e))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) GetHistoryEntryHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	// a malformed id is reported exactly like a missing one
	entryID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "Chat not found")
		return
	}

	entry, err := h.chatService.GetEntry(r.Context(), entryID, id.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Chat not found")
			return
		}
		h.log.Error("error getting chat entry", zap.Int64("user_id", id.UserID), zap.Int64("entry_id", entryID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get chat entry")
		return
	}

	writeJSON(w, http.StatusOK, toHistoryEntry(*entry))
}

func (h *APIHandler) DeleteHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	if err := h.chatService.DeleteHistory(r.Context(), id.UserID); err != nil {
		h.log.Error("error deleting chat history", zap.Int64("user_id", id.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete chat history")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Chat history deleted successfully"})
}
