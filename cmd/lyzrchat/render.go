package main

import (
	"fmt"
	"strings"
	"time"

	"lyzr-chat/internal/domain"
	"lyzr-chat/internal/timefmt"
	"lyzr-chat/internal/usecase"
)

func (a *app) printOutcome(out usecase.SendOutcome) {
	a.printMessages([]domain.Message{out.AssistantMessage})
}

func (a *app) printMessages(msgs []domain.Message) {
	for _, m := range msgs {
		a.printMessage(m)
	}
}

func (a *app) printMessage(m domain.Message) {
	speaker := "Assistant"
	if m.Role == domain.RoleUser {
		speaker = "You"
	}
	stamp := ""
	if ts, err := timefmt.ParseISO(m.Timestamp); err == nil {
		stamp = "[" + timefmt.Clock(ts) + "] "
	}
	fmt.Fprintf(a.out, "%s%s: %s\n", stamp, speaker, m.Content)

	if len(m.Sources) > 0 {
		fmt.Fprintf(a.out, "  Sources: %s\n", strings.Join(m.Sources, ", "))
	}
	if label := m.ConfidencePercent(); label != "" {
		fmt.Fprintf(a.out, "  Confidence: %s\n", label)
	}
	if m.SuggestedAction != "" {
		fmt.Fprintf(a.out, "  Suggested: %s\n", m.SuggestedAction)
	}
}

func (a *app) printConversations(convs []domain.Conversation, now time.Time) {
	if len(convs) == 0 {
		fmt.Fprintln(a.out, "No conversations yet.")
		return
	}
	for _, c := range convs {
		fmt.Fprintf(a.out, "%s  %-30s  %3d msgs  %s\n",
			c.ID, c.Title, len(c.Messages), timefmt.Relative(timefmt.FromMillis(c.Timestamp), now))
	}
}
