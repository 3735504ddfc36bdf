package domain

import (
	"fmt"
	"math"
	"slices"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single immutable conversation turn. Optional agent metadata is
// only present on assistant replies.
type Message struct {
	ID              string   `json:"id"`
	Role            Role     `json:"role"`
	Content         string   `json:"content"`
	Timestamp       string   `json:"timestamp"`
	Sources         []string `json:"sources,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
	SuggestedAction string   `json:"suggestedAction,omitempty"`
}

// ConfidencePercent renders the confidence score as a whole percentage, e.g. "92%".
// It returns "" when no score is attached.
func (m Message) ConfidencePercent() string {
	if m.Confidence == nil {
		return ""
	}
	return fmt.Sprintf("%d%%", int(math.Round(*m.Confidence*100)))
}

// Clone returns a deep copy so callers cannot alias stored slices or pointers.
func (m Message) Clone() Message {
	out := m
	out.Sources = slices.Clone(m.Sources)
	if m.Confidence != nil {
		c := *m.Confidence
		out.Confidence = &c
	}
	return out
}

// Conversation is a titled, ordered sequence of messages persisted as a unit.
// Timestamp is the last-activity marker in epoch milliseconds.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Timestamp int64     `json:"timestamp"`
	Messages  []Message `json:"messages"`
}

// Clone returns a deep copy of the conversation and its messages.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m.Clone()
	}
	return out
}
