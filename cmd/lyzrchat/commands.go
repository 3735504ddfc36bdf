package main

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	chatconfig "lyzr-chat/internal/config"
	"lyzr-chat/internal/domain"
	"lyzr-chat/internal/usecase"
)

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "lyzrchat",
		Short: "Chat with a Lyzr support agent from the terminal",
		Long: `lyzrchat keeps a local history of conversations with a Lyzr agent.
Without a subcommand it starts an interactive chat.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := a.loadDotEnv(); err != nil {
				return err
			}
			a.configureLogging()
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChat(cmd.Context(), "")
		},
	}

	flags := root.PersistentFlags()
	flags.String(keyStateFile, "", "Conversation history file")
	flags.String(keyParamPrefix, "", "Parameter prefix for agent settings and the API key")
	flags.String(keyAPIKey, "", "Lyzr API key (skips SSM)")
	flags.String(keyAgentID, "", "Agent id override")
	flags.String(keyBaseURL, "", "Agent endpoint base URL")
	flags.String(keyUserID, "", "User id reported to the agent")
	flags.Duration(keyTimeout, 0, "Maximum time to wait for an agent reply")
	flags.String(keyLogLevel, "", "Log level (debug|info|warn|error)")
	flags.String(keyEnvFile, "", "Env file with LYZRCHAT_* defaults [default: .env]")
	for _, key := range []string{keyStateFile, keyParamPrefix, keyAPIKey, keyAgentID, keyBaseURL, keyUserID, keyTimeout, keyLogLevel, keyEnvFile} {
		// Flags only override viper when set explicitly.
		_ = a.v.BindPFlag(key, flags.Lookup(key))
	}

	root.AddCommand(
		a.askCommand(),
		a.shortcutsCommand(),
		a.shortcutCommand(),
		a.newCommand(),
		a.listCommand(),
		a.showCommand(),
		a.chatCommand(),
	)
	return root
}

func (a *app) askCommand() *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.selectIfSet(s, conversationID); err != nil {
				return err
			}
			out, err := s.Send(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			a.printOutcome(out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Continue an existing conversation")
	return cmd
}

func (a *app) shortcutsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shortcuts",
		Short: "List the predefined questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ps, err := a.params(cmd.Context())
			if err != nil {
				return err
			}
			constants, err := a.constants(cmd.Context(), ps)
			if err != nil {
				return err
			}
			for i, q := range constants.PredefinedQuestions {
				fmt.Fprintf(a.out, "%d. %s\n", i+1, q)
			}
			return nil
		},
	}
}

func (a *app) shortcutCommand() *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "shortcut <number>",
		Short: "Ask a predefined question by its number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("shortcut number %q: %w", args[0], err)
			}
			s, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.selectIfSet(s, conversationID); err != nil {
				return err
			}
			out, err := s.AskShortcut(cmd.Context(), n-1)
			if err != nil {
				return err
			}
			a.printOutcome(out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Continue an existing conversation")
	return cmd
}

func (a *app) newCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			conv, err := s.NewConversation(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, conv.ID)
			a.printMessages(conv.Messages)
			return nil
		},
	}
}

func (a *app) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore(cmd.Context(), chatconfig.Defaults())
			if err != nil {
				return err
			}
			a.printConversations(st.Conversations(), time.Now())
			return nil
		},
	}
}

func (a *app) showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print every message of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context(), chatconfig.Defaults())
			if err != nil {
				return err
			}
			conv, ok := st.SelectConversation(args[0])
			if !ok {
				return fmt.Errorf("conversation %q not found", args[0])
			}
			fmt.Fprintf(a.out, "# %s\n", conv.Title)
			a.printMessages(conv.Messages)
			return nil
		},
	}
}

func (a *app) chatCommand() *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChat(cmd.Context(), conversationID)
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Resume an existing conversation")
	return cmd
}

func (a *app) selectIfSet(s *usecase.Session, id string) error {
	if id == "" {
		return nil
	}
	_, err := s.SelectConversation(id)
	return err
}

// runChat reads lines until EOF or /quit. Lines starting with a slash are
// commands; everything else is sent to the agent.
func (a *app) runChat(ctx context.Context, conversationID string) error {
	s, err := a.session(ctx)
	if err != nil {
		return err
	}
	if err := a.selectIfSet(s, conversationID); err != nil {
		return err
	}
	if conversationID != "" {
		a.printMessages(s.Snapshot().Messages)
	}

	fmt.Fprintln(a.out, "Type a question, /1../n for a shortcut, /new, /list, /open <id>, or /quit.")
	for i, q := range s.PredefinedQuestions() {
		fmt.Fprintf(a.out, "  /%d %s\n", i+1, q)
	}

	scanner := bufio.NewScanner(a.in)
	for {
		fmt.Fprint(a.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(a.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		quit, err := a.chatLine(ctx, s, line)
		if err != nil {
			fmt.Fprintf(a.out, "! %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (a *app) chatLine(ctx context.Context, s *usecase.Session, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		out, err := s.Send(ctx, line)
		if err != nil {
			return false, err
		}
		a.printMessages([]domain.Message{out.AssistantMessage})
		return false, nil
	}

	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	switch name {
	case "quit", "exit":
		return true, nil
	case "new":
		conv, err := s.NewConversation(ctx)
		if err != nil {
			return false, err
		}
		a.printMessages(conv.Messages)
	case "list":
		s.Refresh(ctx)
		a.printConversations(s.Snapshot().Conversations, time.Now())
	case "open":
		conv, err := s.SelectConversation(strings.TrimSpace(arg))
		if err != nil {
			return false, err
		}
		a.printMessages(conv.Messages)
	default:
		n, err := strconv.Atoi(name)
		if err != nil {
			return false, fmt.Errorf("unknown command /%s", name)
		}
		out, err := s.AskShortcut(ctx, n-1)
		if err != nil {
			return false, err
		}
		a.printMessages([]domain.Message{out.UserMessage, out.AssistantMessage})
	}
	return false, nil
}
