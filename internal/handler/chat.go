package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taskpilot-ai/taskpilot/internal/middleware"
	"github.com/taskpilot-ai/taskpilot/internal/model"
	"github.com/taskpilot-ai/taskpilot/internal/orchestrator"
	"github.com/taskpilot-ai/taskpilot/internal/service"
	"github.com/taskpilot-ai/taskpilot/pkg/logger"
	"github.com/taskpilot-ai/taskpilot/pkg/metrics"
)

// ChatHandler handles the chat turn endpoints.
type ChatHandler struct {
	conversations *service.ConversationService
	orchestrator  *orchestrator.Orchestrator
	contextWindow int
	logger        *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(convSvc *service.ConversationService, orch *orchestrator.Orchestrator, contextWindow int, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		conversations: convSvc,
		orchestrator:  orch,
		contextWindow: contextWindow,
		logger:        log,
	}
}

// Chat handles POST /api/v1/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	req, conv, userMsg, ok := h.prepareTurn(w, r)
	if !ok {
		return
	}

	history, err := h.history(ctx, conv, userID, userMsg.ID)
	if err != nil {
		h.logger.Error("failed to build context window", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to process chat request")
		return
	}

	result := h.orchestrator.RunTurn(ctx, orchestrator.TurnInput{
		UserID:         userID,
		ConversationID: conv.ID,
		Message:        req.Message,
		History:        history,
		ConfirmToken:   req.ConfirmToken,
	})

	if _, err := h.conversations.Append(ctx, conv, model.RoleAssistant, result.Response); err != nil {
		h.logger.Error("failed to persist assistant message", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to process chat request")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse(conv.ID, result))
}

// Stream handles POST /api/v1/chat/stream
//
// Event order: start, then thinking/tool_call/token events as the turn
// progresses, then error (if the turn failed), then done. If the
// client disconnects mid-stream, whatever partial assistant text was
// already emitted is still persisted.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	req, conv, userMsg, ok := h.prepareTurn(w, r)
	if !ok {
		return
	}

	history, err := h.history(ctx, conv, userID, userMsg.ID)
	if err != nil {
		h.logger.Error("failed to build context window", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to process chat request")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, fok := w.(http.Flusher)
	if !fok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	sendSSEEvent(w, flusher, string(model.StreamEventStart), model.StartEvent{
		ConversationID: conv.ID,
	})

	var streamed strings.Builder
	tokenIndex := 0

	result := h.orchestrator.RunTurnStream(ctx, orchestrator.TurnInput{
		UserID:         userID,
		ConversationID: conv.ID,
		Message:        req.Message,
		History:        history,
		ConfirmToken:   req.ConfirmToken,
	}, func(ev orchestrator.Event) {
		switch e := ev.(type) {
		case orchestrator.Thinking:
			sendSSEEvent(w, flusher, string(model.StreamEventThinking), map[string]any{
				"step": e.Step,
			})
		case orchestrator.ToolCallUpdate:
			sendSSEEvent(w, flusher, string(model.StreamEventToolCall), e.Call)
		case orchestrator.Token:
			streamed.WriteString(e.Content)
			sendSSEEvent(w, flusher, string(model.StreamEventToken), model.TokenEvent{
				Content: e.Content,
				Index:   tokenIndex,
			})
			tokenIndex++
		}
	})

	// A cancelled stream persists the partial text that reached the
	// client; the request context is gone, so use a fresh one.
	if ctx.Err() != nil {
		partial := streamed.String()
		if partial == "" {
			partial = result.Response
		}
		persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := h.conversations.Append(persistCtx, conv, model.RoleAssistant, partial); err != nil {
			h.logger.Error("failed to persist partial assistant message", zap.Error(err))
		}
		h.logger.Info("stream cancelled by client",
			zap.Int64("conversation_id", conv.ID),
			zap.Int("partial_length", len(partial)))
		return
	}

	if result.Err != "" {
		sendSSEEvent(w, flusher, string(model.StreamEventError), model.ErrorEvent{
			Code:    "turn_error",
			Message: result.Response,
		})
	}

	if _, err := h.conversations.Append(ctx, conv, model.RoleAssistant, result.Response); err != nil {
		h.logger.Error("failed to persist assistant message", zap.Error(err))
	}

	sendSSEEvent(w, flusher, string(model.StreamEventDone), model.DoneEvent{
		ProcessingTimeMs:     result.ProcessingTimeMs,
		ConfirmationRequired: result.ConfirmationRequired,
	})
}

// History handles GET /api/v1/chat/history
//
// Returns the full message history of the given conversation, or of
// the user's default conversation when no id is supplied. Used by the
// frontend to hydrate chat state on page load.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var conv *model.Conversation
	var err error
	if raw := r.URL.Query().Get("conversation_id"); raw != "" {
		conversationID, perr := middleware.ParseID(raw)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		conv, err = h.conversations.Get(ctx, conversationID, userID)
		if err != nil {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
	} else {
		conv, err = h.conversations.GetOrCreateDefault(ctx, userID)
		if err != nil {
			h.logger.Error("failed to resolve default conversation", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load history")
			return
		}
	}

	messages, err := h.conversations.FullHistory(ctx, conv.ID, userID)
	if err != nil {
		h.logger.Error("failed to load history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	history := make([]model.HistoryMessage, 0, len(messages))
	for _, msg := range messages {
		history = append(history, model.HistoryMessage{
			ID:        msg.ID,
			Role:      string(msg.Role),
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, history)
}

// prepareTurn validates the request, resolves the conversation, and
// persists the user message. It writes the error response itself when
// validation fails.
func (h *ChatHandler) prepareTurn(w http.ResponseWriter, r *http.Request) (*model.ChatRequest, *model.Conversation, *model.Message, bool) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, nil, nil, false
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return nil, nil, nil, false
	}

	var conv *model.Conversation
	var err error
	if req.ConversationID != 0 {
		conv, err = h.conversations.Get(ctx, req.ConversationID, userID)
		if err != nil {
			writeError(w, http.StatusNotFound, "conversation not found")
			return nil, nil, nil, false
		}
	} else {
		conv, err = h.conversations.GetOrCreateDefault(ctx, userID)
		if err != nil {
			h.logger.Error("failed to resolve conversation", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to process chat request")
			return nil, nil, nil, false
		}
	}

	userMsg, err := h.conversations.Append(ctx, conv, model.RoleUser, req.Message)
	if err != nil {
		h.logger.Error("failed to persist user message", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to process chat request")
		return nil, nil, nil, false
	}

	return &req, conv, userMsg, true
}

// history builds the chronological context window, excluding the user
// message that was just appended for this turn.
func (h *ChatHandler) history(ctx context.Context, conv *model.Conversation, userID string, currentMsgID int64) ([]model.ChatMessage, error) {
	recent, err := h.conversations.Recent(ctx, conv.ID, userID, h.contextWindow)
	if err != nil {
		return nil, err
	}

	history := make([]model.ChatMessage, 0, len(recent))
	for _, msg := range recent {
		if msg.ID == currentMsgID {
			continue
		}
		history = append(history, model.ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return history, nil
}

func chatResponse(conversationID int64, result *orchestrator.TurnResult) model.ChatResponse {
	resp := model.ChatResponse{
		ConversationID:       conversationID,
		Response:             result.Response,
		ToolCalls:            result.ToolCalls,
		ThinkingSteps:        result.ThinkingSteps,
		ConfirmationRequired: result.ConfirmationRequired,
		ProcessingTimeMs:     result.ProcessingTimeMs,
	}
	if resp.ToolCalls == nil {
		resp.ToolCalls = []model.ToolCall{}
	}
	if resp.ThinkingSteps == nil {
		resp.ThinkingSteps = []model.ThinkingStep{}
	}
	return resp
}
