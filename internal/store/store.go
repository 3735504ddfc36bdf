// Package store keeps the in-memory conversation list and writes it through to
// durable storage after every mutation.
package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"lyzr-chat/internal/config"
	"lyzr-chat/internal/domain"
	"lyzr-chat/internal/observability"
	"lyzr-chat/internal/timefmt"
)

const (
	maxTitleRunes = 30
	titleEllipsis = "..."
)

// ErrConversationNotFound is returned when an operation names an unknown conversation.
var ErrConversationNotFound = errors.New("store: conversation not found")

// Persister is the durable side of the store. Load degrades to an empty list;
// Latest reports failures so a refresh can keep the cached list instead.
type Persister interface {
	Load(ctx context.Context) []domain.Conversation
	Latest(ctx context.Context) ([]domain.Conversation, error)
	Save(ctx context.Context, convs []domain.Conversation)
}

// Options configures a Store.
type Options struct {
	// WelcomeMessage seeds every new conversation.
	WelcomeMessage string
	// PlaceholderTitle is the title a conversation carries until its first user message.
	PlaceholderTitle string

	Now   func() time.Time
	NewID func() string
}

// Store owns the conversation list. Conversations are kept most-recent-first
// by creation; messages inside a conversation are append-only.
//
// Several processes may share one persisted slot. Every mutation re-reads the
// slot, applies the change and saves while holding mu, so writes from this
// process are saved in order and never drop conversations written elsewhere.
type Store struct {
	persister   Persister
	welcome     string
	placeholder string
	now         func() time.Time
	newID       func() string

	mu    sync.RWMutex
	convs []domain.Conversation
}

// Open loads the persisted conversations and returns a ready Store.
func Open(ctx context.Context, p Persister, opts Options) (*Store, error) {
	if p == nil {
		return nil, errors.New("store: persister must not be nil")
	}
	if strings.TrimSpace(opts.WelcomeMessage) == "" {
		return nil, errors.New("store: welcome message must not be empty")
	}
	if opts.PlaceholderTitle == "" {
		opts.PlaceholderTitle = config.DefaultPlaceholderTitle
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = timefmt.NewID
	}
	return &Store{
		persister:   p,
		welcome:     opts.WelcomeMessage,
		placeholder: opts.PlaceholderTitle,
		now:         opts.Now,
		newID:       opts.NewID,
		convs:       p.Load(ctx),
	}, nil
}

// PlaceholderTitle returns the title given to conversations before their first user message.
func (s *Store) PlaceholderTitle() string {
	return s.placeholder
}

// CreateConversation prepends a new conversation seeded with the welcome
// message and persists the list.
func (s *Store) CreateConversation(ctx context.Context, seedTitle string) domain.Conversation {
	now := s.now()
	conv := domain.Conversation{
		ID:        s.newID(),
		Title:     seedTitle,
		Timestamp: timefmt.Millis(now),
		Messages: []domain.Message{{
			ID:        s.newID(),
			Role:      domain.RoleAssistant,
			Content:   s.welcome,
			Timestamp: timefmt.ISO(now),
		}},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked(ctx)
	s.convs = append([]domain.Conversation{conv}, s.convs...)
	s.persister.Save(ctx, s.cloneLocked())

	observability.LoggerFromContext(ctx).Info("conversation created", "conversation_id", conv.ID)
	return conv.Clone()
}

// SelectConversation returns a copy of the conversation with id, if present.
func (s *Store) SelectConversation(id string) (domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return domain.Conversation{}, false
	}
	return s.convs[i].Clone(), true
}

// AppendMessage appends msg to the conversation, refreshes its activity
// timestamp, applies the one-time title rewrite, and persists the list.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked(ctx)

	i := s.indexLocked(conversationID)
	if i < 0 {
		observability.LoggerFromContext(ctx).Error("append to missing conversation", "conversation_id", conversationID, "message_id", msg.ID)
		return ErrConversationNotFound
	}

	conv := &s.convs[i]
	conv.Messages = append(conv.Messages, msg.Clone())
	conv.Timestamp = timefmt.Millis(s.now())
	if conv.Title == s.placeholder {
		if first, ok := firstUserMessage(conv.Messages); ok {
			conv.Title = TruncateTitle(first.Content)
		}
	}
	s.persister.Save(ctx, s.cloneLocked())
	return nil
}

// Refresh replaces the cached list with what is currently persisted. On a
// read failure the cached list is kept.
func (s *Store) Refresh(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked(ctx)
}

// Conversations returns a copy of the list, most-recent-first.
func (s *Store) Conversations() []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cloneLocked()
}

// TruncateTitle derives a conversation title from message text. The result is
// at most 30 characters; cut text ends with an ellipsis.
func TruncateTitle(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= maxTitleRunes {
		return text
	}
	keep := maxTitleRunes - utf8.RuneCountInString(titleEllipsis)
	return strings.TrimRight(string([]rune(text)[:keep]), " ") + titleEllipsis
}

func firstUserMessage(msgs []domain.Message) (domain.Message, bool) {
	for _, m := range msgs {
		if m.Role == domain.RoleUser {
			return m, true
		}
	}
	return domain.Message{}, false
}

func (s *Store) refreshLocked(ctx context.Context) {
	convs, err := s.persister.Latest(ctx)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("conversation refresh failed, using cached list", "error", err)
		return
	}
	s.convs = convs
}

func (s *Store) indexLocked(id string) int {
	for i := range s.convs {
		if s.convs[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) cloneLocked() []domain.Conversation {
	out := make([]domain.Conversation, len(s.convs))
	for i, c := range s.convs {
		out[i] = c.Clone()
	}
	return out
}
