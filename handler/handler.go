// Package handler exposes the chat session to API Gateway as JSON routes.
// It only reads session state and forwards user actions; all lifecycle rules
// live in the usecase package.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"lyzr-chat/internal/domain"
	"lyzr-chat/internal/observability"
	"lyzr-chat/internal/timefmt"
	"lyzr-chat/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type SessionService interface {
	Send(ctx context.Context, text string) (usecase.SendOutcome, error)
	AskShortcut(ctx context.Context, index int) (usecase.SendOutcome, error)
	NewConversation(ctx context.Context) (domain.Conversation, error)
	SelectConversation(id string) (domain.Conversation, error)
	Snapshot() usecase.State
	PredefinedQuestions() []string
	Refresh(ctx context.Context)
}

type Handler struct {
	session SessionService
	now     func() time.Time
}

// sendRequest may name the conversation to continue. Consecutive requests can
// land on different function instances, so the client carries the active id.
type sendRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

type messageView struct {
	ID              string   `json:"id"`
	Role            string   `json:"role"`
	Content         string   `json:"content"`
	Timestamp       string   `json:"timestamp"`
	Time            string   `json:"time,omitempty"`
	Sources         []string `json:"sources,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
	ConfidenceLabel string   `json:"confidenceLabel,omitempty"`
	SuggestedAction string   `json:"suggestedAction,omitempty"`
}

type conversationView struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Timestamp    int64  `json:"timestamp"`
	LastActivity string `json:"lastActivity"`
	MessageCount int    `json:"messageCount"`
}

type stateResponse struct {
	ConversationID string             `json:"conversationId,omitempty"`
	Messages       []messageView      `json:"messages"`
	IsLoading      bool               `json:"isLoading"`
	Error          string             `json:"error,omitempty"`
	Conversations  []conversationView `json:"conversations"`
}

type conversationResponse struct {
	Conversation conversationView `json:"conversation"`
	Messages     []messageView    `json:"messages"`
}

type sendResponse struct {
	ConversationID   string      `json:"conversationId"`
	UserMessage      messageView `json:"userMessage"`
	AssistantMessage messageView `json:"assistantMessage"`
	Error            string      `json:"error,omitempty"`
}

type shortcutsResponse struct {
	Questions []string `json:"questions"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func NewHandler(session SessionService) (*Handler, error) {
	if session == nil {
		return nil, errors.New("handler: session must not be nil")
	}
	return &Handler{session: session, now: time.Now}, nil
}

// Handle routes one API Gateway proxy request.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ctx = observability.WithCorrelationID(ctx, correlationID)
	log := observability.LoggerFromContext(ctx).With("method", req.HTTPMethod, "path", req.Path)

	h.session.Refresh(ctx)
	status, body := h.route(ctx, req)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "status", status)
	} else {
		log.Info("request handled", "status", status)
	}
	return h.respond(status, body, correlationID), nil
}

func (h *Handler) route(ctx context.Context, req events.APIGatewayProxyRequest) (int, any) {
	segments := pathSegments(req.Path)
	method := strings.ToUpper(req.HTTPMethod)

	switch {
	case method == http.MethodGet && matches(segments, "state"):
		return http.StatusOK, h.stateView()

	case method == http.MethodGet && matches(segments, "conversations"):
		return http.StatusOK, h.stateView().Conversations

	case method == http.MethodPost && matches(segments, "conversations"):
		conv, err := h.session.NewConversation(ctx)
		if err != nil {
			return errorStatus(err)
		}
		return http.StatusCreated, h.conversationView(conv)

	case method == http.MethodGet && len(segments) == 2 && segments[0] == "conversations":
		conv, err := h.session.SelectConversation(segments[1])
		if err != nil {
			return errorStatus(err)
		}
		return http.StatusOK, h.conversationView(conv)

	case method == http.MethodPost && matches(segments, "messages"):
		var in sendRequest
		if err := json.Unmarshal([]byte(req.Body), &in); err != nil {
			return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"}
		}
		if err := h.selectIfSet(in.ConversationID); err != nil {
			return errorStatus(err)
		}
		out, err := h.session.Send(ctx, in.Message)
		if err != nil {
			return errorStatus(err)
		}
		return http.StatusOK, h.sendView(out)

	case method == http.MethodGet && matches(segments, "shortcuts"):
		return http.StatusOK, shortcutsResponse{Questions: h.session.PredefinedQuestions()}

	case method == http.MethodPost && len(segments) == 2 && segments[0] == "shortcuts":
		index, err := strconv.Atoi(segments[1])
		if err != nil {
			return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_shortcut_index"}
		}
		if err := h.selectIfSet(req.QueryStringParameters["conversationId"]); err != nil {
			return errorStatus(err)
		}
		out, err := h.session.AskShortcut(ctx, index)
		if err != nil {
			return errorStatus(err)
		}
		return http.StatusOK, h.sendView(out)
	}
	return http.StatusNotFound, errorResponse{Error: "NOT_FOUND", Reason: "unknown_route"}
}

func (h *Handler) selectIfSet(id string) error {
	if id = strings.TrimSpace(id); id == "" {
		return nil
	}
	_, err := h.session.SelectConversation(id)
	return err
}

func (h *Handler) respond(status int, body any, correlationID string) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"INTERNAL_ERROR","reason":"encode_response"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(raw),
	}
}

func errorStatus(err error) (int, any) {
	var usecaseErr *usecase.Error
	if !errors.As(err, &usecaseErr) {
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}
	}
	status := http.StatusInternalServerError
	switch usecaseErr.Code {
	case usecase.ErrorInvalidInput:
		status = http.StatusBadRequest
	case usecase.ErrorBusy:
		status = http.StatusConflict
	case usecase.ErrorNotFound:
		status = http.StatusNotFound
	case usecase.ErrorAgentFailure, usecase.ErrorTransport:
		status = http.StatusBadGateway
	}
	return status, errorResponse{Error: string(usecaseErr.Code), Reason: usecaseErr.Reason}
}

func (h *Handler) stateView() stateResponse {
	st := h.session.Snapshot()
	out := stateResponse{
		ConversationID: st.ConversationID,
		Messages:       messageViews(st.Messages),
		IsLoading:      st.IsLoading,
		Error:          st.LastError,
		Conversations:  make([]conversationView, 0, len(st.Conversations)),
	}
	for _, c := range st.Conversations {
		out.Conversations = append(out.Conversations, h.summary(c))
	}
	return out
}

func (h *Handler) conversationView(c domain.Conversation) conversationResponse {
	return conversationResponse{Conversation: h.summary(c), Messages: messageViews(c.Messages)}
}

func (h *Handler) sendView(out usecase.SendOutcome) sendResponse {
	resp := sendResponse{
		ConversationID:   out.ConversationID,
		UserMessage:      toMessageView(out.UserMessage),
		AssistantMessage: toMessageView(out.AssistantMessage),
	}
	if out.Failure != nil {
		resp.Error = string(out.Failure.Code)
	}
	return resp
}

func (h *Handler) summary(c domain.Conversation) conversationView {
	return conversationView{
		ID:           c.ID,
		Title:        c.Title,
		Timestamp:    c.Timestamp,
		LastActivity: timefmt.Relative(timefmt.FromMillis(c.Timestamp), h.now()),
		MessageCount: len(c.Messages),
	}
}

func messageViews(msgs []domain.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageView(m))
	}
	return out
}

func toMessageView(m domain.Message) messageView {
	v := messageView{
		ID:              m.ID,
		Role:            string(m.Role),
		Content:         m.Content,
		Timestamp:       m.Timestamp,
		Sources:         m.Sources,
		Confidence:      m.Confidence,
		ConfidenceLabel: m.ConfidencePercent(),
		SuggestedAction: m.SuggestedAction,
	}
	if ts, err := timefmt.ParseISO(m.Timestamp); err == nil {
		v.Time = timefmt.Clock(ts)
	}
	return v
}

func pathSegments(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func matches(segments []string, want ...string) bool {
	if len(segments) != len(want) {
		return false
	}
	for i := range want {
		if segments[i] != want[i] {
			return false
		}
	}
	return true
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
