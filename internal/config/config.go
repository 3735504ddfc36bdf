// Package config holds the fixed configuration constants of the chat session:
// agent identity, predefined questions, and user-facing message templates.
// Values are resolved once at startup and never change afterwards.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"lyzr-chat/internal/integrations/paramstore"
)

const (
	DefaultAgentID          = "lyzr-support-agent"
	DefaultSupportContact   = "support@lyzr.ai"
	DefaultPlaceholderTitle = "New Chat"
	DefaultWelcomeMessage   = "Hi! I'm the Lyzr assistant. Ask me anything about building, deploying, or integrating Lyzr agents."
	DefaultFallbackAnswer   = "I received your question but could not generate a response."
)

// DefaultPredefinedQuestions are the shortcut questions offered to new users.
var DefaultPredefinedQuestions = []string{
	"How do I get started with Lyzr?",
	"What are Lyzr agents?",
	"How does Lyzr pricing work?",
	"How do I integrate Lyzr with my app?",
}

// Constants is the immutable runtime configuration of the session engine.
type Constants struct {
	AgentID             string
	PredefinedQuestions []string
	WelcomeMessage      string
	SupportContact      string
	PlaceholderTitle    string
	FallbackAnswer      string
}

// Defaults returns the compiled-in constants.
func Defaults() Constants {
	return Constants{
		AgentID:             DefaultAgentID,
		PredefinedQuestions: append([]string(nil), DefaultPredefinedQuestions...),
		WelcomeMessage:      DefaultWelcomeMessage,
		SupportContact:      DefaultSupportContact,
		PlaceholderTitle:    DefaultPlaceholderTitle,
		FallbackAnswer:      DefaultFallbackAnswer,
	}
}

// Load overlays parameters stored under prefix on top of Defaults. Absent
// parameters keep their default value.
//
//	<prefix>/agent_id              plain string
//	<prefix>/predefined_questions  JSON array of strings
//	<prefix>/welcome_message       plain string
//	<prefix>/support_contact       plain string
func Load(ctx context.Context, params paramstore.BatchGetter, prefix string) (Constants, error) {
	if params == nil {
		return Constants{}, errors.New("config: parameter getter must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return Constants{}, errors.New("config: parameter prefix must not be empty")
	}

	names := map[string]string{
		"agent_id":             prefix + "/agent_id",
		"predefined_questions": prefix + "/predefined_questions",
		"welcome_message":      prefix + "/welcome_message",
		"support_contact":      prefix + "/support_contact",
	}
	values, err := params.GetParameters(ctx,
		names["agent_id"],
		names["predefined_questions"],
		names["welcome_message"],
		names["support_contact"],
	)
	if err != nil {
		return Constants{}, fmt.Errorf("config: load parameters: %w", err)
	}

	c := Defaults()
	if v := strings.TrimSpace(values[names["agent_id"]]); v != "" {
		c.AgentID = v
	}
	if v := strings.TrimSpace(values[names["welcome_message"]]); v != "" {
		c.WelcomeMessage = v
	}
	if v := strings.TrimSpace(values[names["support_contact"]]); v != "" {
		c.SupportContact = v
	}
	if raw := strings.TrimSpace(values[names["predefined_questions"]]); raw != "" {
		questions, err := parseQuestions(raw)
		if err != nil {
			return Constants{}, err
		}
		c.PredefinedQuestions = questions
	}
	return c, nil
}

func parseQuestions(raw string) ([]string, error) {
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("config: decode predefined questions: %w", err)
	}
	out := make([]string, 0, len(list))
	for _, q := range list {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("config: predefined questions must not be empty")
	}
	return out, nil
}
