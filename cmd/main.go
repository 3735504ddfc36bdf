package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"lyzr-chat/handler"
	chatconfig "lyzr-chat/internal/config"
	"lyzr-chat/internal/integrations/lyzr"
	"lyzr-chat/internal/integrations/paramstore"
	"lyzr-chat/internal/repository"
	"lyzr-chat/internal/store"
	"lyzr-chat/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	slotName := envString("SLOT_NAME", "lyzr_conversations")
	agentBaseURL := envString("AGENT_BASE_URL", lyzr.DefaultBaseURL)
	agentTimeout := envDuration("AGENT_TIMEOUT", 60*time.Second)
	userID := os.Getenv("USER_ID")

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	constants, err := chatconfig.Load(ctx, ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to load chat constants", "err", err)
		os.Exit(1)
	}

	slot, err := repository.NewDynamoSlot(awsdynamodb.NewFromConfig(cfg), stateTable, slotName)
	if err != nil {
		slog.Error("failed to create state slot", "err", err)
		os.Exit(1)
	}
	repo, err := repository.NewConversationRepository(slot)
	if err != nil {
		slog.Error("failed to create conversation repository", "err", err)
		os.Exit(1)
	}
	conversations, err := store.Open(ctx, repo, store.Options{
		WelcomeMessage:   constants.WelcomeMessage,
		PlaceholderTitle: constants.PlaceholderTitle,
	})
	if err != nil {
		slog.Error("failed to open conversation store", "err", err)
		os.Exit(1)
	}

	agent, err := lyzr.NewClient(ssmClient, paramPrefix, lyzr.WithBaseURL(agentBaseURL), lyzr.WithUserID(userID))
	if err != nil {
		slog.Error("failed to create Lyzr client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	// The in-flight guard and last error live in this process. Deploy with
	// reserved concurrency 1 so one instance serves every request.
	session, err := usecase.NewSession(agent, conversations, constants, usecase.WithAgentTimeout(agentTimeout))
	if err != nil {
		slog.Error("failed to create chat session", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(session)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("ignoring invalid duration", "key", key, "value", v)
		return def
	}
	return d
}
