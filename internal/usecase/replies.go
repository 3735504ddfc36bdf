package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"lyzr-chat/internal/domain"
)

const (
	fallbackAgentError     = "Failed to get response from agent"
	fallbackTransportError = "Network error occurred"
	timeoutTransportError  = "The agent did not respond in time"
)

// successContent extracts the assistant reply fields from a successful result.
func successContent(res domain.AgentResult, fallbackAnswer string) (content string, sources []string, confidence *float64, action string) {
	answer := res.Response.Result
	if answer == nil {
		return fallbackAnswer, nil, nil, ""
	}
	content = answer.Answer
	if strings.TrimSpace(content) == "" {
		content = fallbackAnswer
	}
	if len(answer.Sources) > 0 {
		sources = slices.Clone(answer.Sources)
	}
	if answer.Confidence != nil {
		c := *answer.Confidence
		confidence = &c
	}
	return content, sources, confidence, answer.SuggestedAction
}

// agentErrorText picks the most specific description of an agent-reported
// failure: the agent's own message, then the transport error, then a fixed text.
func agentErrorText(res domain.AgentResult) string {
	if res.Response != nil {
		if msg := strings.TrimSpace(res.Response.Message); msg != "" {
			return msg
		}
	}
	if msg := strings.TrimSpace(res.Error); msg != "" {
		return msg
	}
	return fallbackAgentError
}

// transportErrorText is the user-facing cause of a failed call. Only the
// innermost error is shown; the full chain goes to the log.
func transportErrorText(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutTransportError
	}
	cause := err
	for next := errors.Unwrap(cause); next != nil; next = errors.Unwrap(cause) {
		cause = next
	}
	if msg := strings.TrimSpace(cause.Error()); msg != "" {
		return msg
	}
	return fallbackTransportError
}

func agentFailureReply(errText, supportContact string) string {
	return fmt.Sprintf("I encountered an issue: %s. Please try again, or contact %s if the problem continues.", errText, supportContact)
}

func transportFailureReply(errText, supportContact string) string {
	return fmt.Sprintf("An error occurred: %s. Please check your internet connection and try again. If the issue persists, contact %s.", errText, supportContact)
}
