package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"lyzr-chat/internal/config"
	"lyzr-chat/internal/domain"
	"lyzr-chat/internal/observability"
	"lyzr-chat/internal/store"
	"lyzr-chat/internal/timefmt"
)

const defaultAgentTimeout = 60 * time.Second

type AgentInvoker interface {
	Invoke(ctx context.Context, message, agentID string) (domain.AgentResult, error)
}

type ConversationStore interface {
	CreateConversation(ctx context.Context, seedTitle string) domain.Conversation
	SelectConversation(id string) (domain.Conversation, bool)
	AppendMessage(ctx context.Context, conversationID string, msg domain.Message) error
	Conversations() []domain.Conversation
	PlaceholderTitle() string
	Refresh(ctx context.Context)
}

// Session drives the request lifecycle for one chat user. At most one agent
// request is in flight at a time; sends attempted meanwhile are rejected
// without touching any state.
type Session struct {
	agent        AgentInvoker
	store        ConversationStore
	constants    config.Constants
	agentTimeout time.Duration
	now          func() time.Time
	newID        func() string

	mu        sync.Mutex
	currentID string
	loading   bool
	lastError string
}

type SessionOption func(*Session)

// WithAgentTimeout bounds each agent call. Zero or negative disables the deadline.
func WithAgentTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		s.agentTimeout = d
	}
}

func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(newID func() string) SessionOption {
	return func(s *Session) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// SendOutcome reports what a send appended. Failure is nil on the success path.
type SendOutcome struct {
	ConversationID   string
	UserMessage      domain.Message
	AssistantMessage domain.Message
	Failure          *Error
}

// State is the read-only view handed to the presentation layer.
type State struct {
	ConversationID string
	Messages       []domain.Message
	IsLoading      bool
	LastError      string
	Conversations  []domain.Conversation
}

func NewSession(agent AgentInvoker, st ConversationStore, constants config.Constants, opts ...SessionOption) (*Session, error) {
	if agent == nil {
		return nil, errors.New("usecase: agent must not be nil")
	}
	if st == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if strings.TrimSpace(constants.AgentID) == "" {
		return nil, errors.New("usecase: agent id must not be empty")
	}
	if constants.FallbackAnswer == "" {
		constants.FallbackAnswer = config.DefaultFallbackAnswer
	}
	s := &Session{
		agent:        agent,
		store:        st,
		constants:    constants,
		agentTimeout: defaultAgentTimeout,
		now:          time.Now,
		newID:        timefmt.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Send runs one request lifecycle: append the user message, call the agent,
// append the assistant reply (answer or error notice). Empty input and sends
// during an in-flight request return an error and change nothing.
func (s *Session) Send(ctx context.Context, text string) (SendOutcome, error) {
	message := strings.TrimSpace(text)
	if message == "" {
		return SendOutcome{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if !s.begin() {
		return SendOutcome{}, newError(ErrorBusy, "request_in_flight", nil)
	}
	defer s.finish()

	log := observability.LoggerFromContext(ctx)

	convID, userMsg, err := s.startTurn(ctx, message)
	if err != nil {
		return SendOutcome{}, err
	}
	log = log.With("conversation_id", convID)
	log.Info("sending message to agent", "message_id", userMsg.ID, "agent_id", s.constants.AgentID)

	res, callErr := s.invoke(ctx, message)

	out := SendOutcome{ConversationID: convID, UserMessage: userMsg}
	switch {
	case callErr != nil:
		errText := transportErrorText(callErr)
		log.Warn("agent call failed", "error", callErr)
		out.Failure = newError(ErrorTransport, "agent_call_failed", callErr)
		out.AssistantMessage = s.newMessage(domain.RoleAssistant, transportFailureReply(errText, s.constants.SupportContact))
		s.setError(errText)
	case res.Succeeded():
		content, sources, confidence, action := successContent(res, s.constants.FallbackAnswer)
		out.AssistantMessage = s.newMessage(domain.RoleAssistant, content)
		out.AssistantMessage.Sources = sources
		out.AssistantMessage.Confidence = confidence
		out.AssistantMessage.SuggestedAction = action
		log.Info("agent answered", "sources", len(sources))
	default:
		errText := agentErrorText(res)
		log.Warn("agent reported failure", "error", errText)
		out.Failure = newError(ErrorAgentFailure, "agent_reported_failure", errors.New(errText))
		out.AssistantMessage = s.newMessage(domain.RoleAssistant, agentFailureReply(errText, s.constants.SupportContact))
		s.setError(errText)
	}

	if err := s.store.AppendMessage(ctx, convID, out.AssistantMessage); err != nil {
		return SendOutcome{}, newError(ErrorInternal, "append_assistant_message", err)
	}
	return out, nil
}

// AskShortcut sends the predefined question at index.
func (s *Session) AskShortcut(ctx context.Context, index int) (SendOutcome, error) {
	questions := s.constants.PredefinedQuestions
	if index < 0 || index >= len(questions) {
		return SendOutcome{}, newError(ErrorInvalidInput, "unknown_shortcut", nil)
	}
	return s.Send(ctx, questions[index])
}

// PredefinedQuestions returns the shortcut questions in display order.
func (s *Session) PredefinedQuestions() []string {
	return append([]string(nil), s.constants.PredefinedQuestions...)
}

// NewConversation starts an empty chat with the placeholder title and makes it active.
func (s *Session) NewConversation(ctx context.Context) (domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return domain.Conversation{}, newError(ErrorBusy, "request_in_flight", nil)
	}
	conv := s.store.CreateConversation(ctx, s.store.PlaceholderTitle())
	s.currentID = conv.ID
	s.lastError = ""
	return conv, nil
}

// SelectConversation makes the conversation with id active.
func (s *Session) SelectConversation(id string) (domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return domain.Conversation{}, newError(ErrorBusy, "request_in_flight", nil)
	}
	conv, ok := s.store.SelectConversation(id)
	if !ok {
		return domain.Conversation{}, newError(ErrorNotFound, "conversation_not_found", nil)
	}
	s.currentID = conv.ID
	s.lastError = ""
	return conv, nil
}

// Refresh picks up conversations persisted by other processes sharing the
// same slot. The active conversation id is kept.
func (s *Session) Refresh(ctx context.Context) {
	s.store.Refresh(ctx)
}

// Snapshot returns a consistent copy of everything the presentation layer renders.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	st := State{
		ConversationID: s.currentID,
		IsLoading:      s.loading,
		LastError:      s.lastError,
	}
	s.mu.Unlock()

	st.Conversations = s.store.Conversations()
	for _, c := range st.Conversations {
		if c.ID == st.ConversationID {
			st.Messages = c.Messages
			break
		}
	}
	if st.Messages == nil {
		st.Messages = []domain.Message{}
	}
	return st
}

func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// begin claims the single in-flight slot.
func (s *Session) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return false
	}
	s.loading = true
	return true
}

// finish releases the in-flight slot. Runs once per accepted send on every exit path.
func (s *Session) finish() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

// startTurn resolves the active conversation, creating one titled after the
// message when none is active, then appends the user message.
func (s *Session) startTurn(ctx context.Context, message string) (string, domain.Message, error) {
	s.mu.Lock()
	convID := s.currentID
	s.mu.Unlock()

	if _, ok := s.store.SelectConversation(convID); convID == "" || !ok {
		conv := s.store.CreateConversation(ctx, store.TruncateTitle(message))
		convID = conv.ID
	}

	userMsg := s.newMessage(domain.RoleUser, message)
	if err := s.store.AppendMessage(ctx, convID, userMsg); err != nil {
		return "", domain.Message{}, newError(ErrorInternal, "append_user_message", err)
	}

	s.mu.Lock()
	s.currentID = convID
	s.lastError = ""
	s.mu.Unlock()
	return convID, userMsg, nil
}

func (s *Session) invoke(ctx context.Context, message string) (domain.AgentResult, error) {
	if s.agentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.agentTimeout)
		defer cancel()
	}
	return s.agent.Invoke(ctx, message, s.constants.AgentID)
}

func (s *Session) newMessage(role domain.Role, content string) domain.Message {
	return domain.Message{
		ID:        s.newID(),
		Role:      role,
		Content:   content,
		Timestamp: timefmt.ISO(s.now()),
	}
}

func (s *Session) setError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}
