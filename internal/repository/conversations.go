package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lyzr-chat/internal/domain"
	"lyzr-chat/internal/observability"
)

// ConversationRepository loads and saves the full conversation list through a
// single slot. Storage problems never reach the caller: Load degrades to an
// empty list and Save logs and moves on.
type ConversationRepository struct {
	slot    Slot
	marshal func(v any) ([]byte, error)
}

// NewConversationRepository creates a repository over slot.
func NewConversationRepository(slot Slot) (*ConversationRepository, error) {
	if slot == nil {
		return nil, errors.New("repository: slot must not be nil")
	}
	return &ConversationRepository{slot: slot, marshal: json.Marshal}, nil
}

// Load returns the persisted conversations, or an empty list if the slot is
// absent, unreadable, or corrupt.
func (r *ConversationRepository) Load(ctx context.Context) []domain.Conversation {
	convs, err := r.Latest(ctx)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("conversation load failed, starting empty", "error", err)
		return []domain.Conversation{}
	}
	return convs
}

// Latest reads the slot as it is now. An absent slot is an empty list; read
// failures and corrupt data are returned so callers can keep what they have.
func (r *ConversationRepository) Latest(ctx context.Context) ([]domain.Conversation, error) {
	raw, err := r.slot.Get(ctx)
	if errors.Is(err, ErrSlotNotFound) {
		return []domain.Conversation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: read conversations: %w", err)
	}

	var convs []domain.Conversation
	if err := json.Unmarshal(raw, &convs); err != nil {
		return nil, fmt.Errorf("repository: decode conversations: %w", err)
	}
	if convs == nil {
		return []domain.Conversation{}, nil
	}
	return convs, nil
}

// Save overwrites the slot with convs. Failures are logged, not returned.
func (r *ConversationRepository) Save(ctx context.Context, convs []domain.Conversation) {
	if err := r.save(ctx, convs); err != nil {
		observability.LoggerFromContext(ctx).Error("conversation save failed", "error", err, "conversations", len(convs))
	}
}

func (r *ConversationRepository) save(ctx context.Context, convs []domain.Conversation) error {
	if convs == nil {
		convs = []domain.Conversation{}
	}
	raw, err := r.marshal(convs)
	if err != nil {
		return fmt.Errorf("repository: marshal conversations: %w", err)
	}
	return r.slot.Put(ctx, raw)
}
