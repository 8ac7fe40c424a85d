package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/stockpulse/assistant/internal/i18n"
	"github.com/stockpulse/assistant/internal/models"
	"github.com/stockpulse/assistant/internal/orchestrator"
	"github.com/stockpulse/assistant/internal/services/store"
)

// RateLimiter is the slice of the middleware limiter the handler uses.
type RateLimiter interface {
	Allow(userID string) bool
}

// RateLimitRecorder exports rejected-request counts. nil disables export.
type RateLimitRecorder interface {
	RecordRateLimitExceeded(userID string)
}

// chatPayload is the inbound request body. Session fields other than
// language are ignored; the authenticated session wins.
type chatPayload struct {
	Message         string `json:"message"`
	Language        string `json:"language,omitempty"`
	StockSymbolHint string `json:"stockSymbolHint,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// ChatHandler is the HTTP ingress for the chat orchestrator. It owns
// authentication, rate limiting and input framing; everything semantic
// happens in the orchestrator.
type ChatHandler struct {
	orchestrator   *orchestrator.Orchestrator
	sessions       store.SessionValidator
	limiter        RateLimiter
	localizer      *i18n.Localizer
	metrics        RateLimitRecorder
	logger         *logrus.Logger
	requireSession bool
	maxMessageLen  int
}

// NewChatHandler wires the ingress. metrics may be nil.
func NewChatHandler(
	orch *orchestrator.Orchestrator,
	sessions store.SessionValidator,
	limiter RateLimiter,
	localizer *i18n.Localizer,
	metrics RateLimitRecorder,
	logger *logrus.Logger,
	requireSession bool,
	maxMessageLen int,
) *ChatHandler {
	return &ChatHandler{
		orchestrator:   orch,
		sessions:       sessions,
		limiter:        limiter,
		localizer:      localizer,
		metrics:        metrics,
		logger:         logger,
		requireSession: requireSession,
		maxMessageLen:  maxMessageLen,
	}
}

// Chat handles POST /chatbot/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload chatPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	lang := payload.Language

	session, err := h.authenticate(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{
			Error: h.localizer.Get(lang, i18n.MsgUnauthenticated, nil),
		})
		return
	}
	if session.Language == "" {
		session.Language = lang
	}
	if session.StockSymbolHint == "" {
		session.StockSymbolHint = payload.StockSymbolHint
	}

	if !h.limiter.Allow(session.UserID) {
		if h.metrics != nil {
			h.metrics.RecordRateLimitExceeded(session.UserID)
		}
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error: h.localizer.Get(session.Language, i18n.MsgRateLimitExceeded, nil),
		})
		return
	}

	resp, err := h.orchestrator.Process(ctx, models.ChatRequest{
		Message: payload.Message,
		Session: *session,
	})
	if err != nil {
		// Only validation errors reach here.
		if errors.Is(err, orchestrator.ErrEmptyMessage) || errors.Is(err, orchestrator.ErrMessageTooLong) {
			writeJSON(w, http.StatusBadRequest, errorBody{
				Error: h.localizer.Get(session.Language, i18n.MsgInvalidMessage, map[string]interface{}{
					"Max": h.maxMessageLen,
				}),
			})
			return
		}
		h.logger.WithError(err).Error("Unexpected orchestrator error")
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error: h.localizer.Get(session.Language, i18n.MsgError, nil),
		})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// authenticate resolves the session token. Anonymous access is allowed only
// when session enforcement is disabled; it gets an empty session context.
func (h *ChatHandler) authenticate(r *http.Request) (*models.SessionContext, error) {
	token := r.Header.Get("X-Session-Token")
	if token == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
	}

	if token == "" {
		if h.requireSession {
			return nil, store.ErrNoSession
		}
		return &models.SessionContext{}, nil
	}

	session, err := h.sessions.Validate(r.Context(), token)
	if err != nil {
		if h.requireSession {
			return nil, err
		}
		return &models.SessionContext{}, nil
	}
	return session, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
