package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	chatconfig "lyzr-chat/internal/config"
	"lyzr-chat/internal/integrations/lyzr"
	"lyzr-chat/internal/integrations/paramstore"
	"lyzr-chat/internal/observability"
	"lyzr-chat/internal/repository"
	"lyzr-chat/internal/store"
	"lyzr-chat/internal/usecase"
)

const envPrefix = "LYZRCHAT"

// Configuration keys. Each is also readable as LYZRCHAT_<KEY> with dashes
// replaced by underscores.
const (
	keyStateFile   = "state-file"
	keyParamPrefix = "param-prefix"
	keyAPIKey      = "api-key"
	keyAgentID     = "agent-id"
	keyBaseURL     = "base-url"
	keyUserID      = "user-id"
	keyTimeout     = "timeout"
	keyLogLevel    = "log-level"
	keyEnvFile     = "env-file"
)

type params interface {
	paramstore.Getter
	paramstore.BatchGetter
}

type app struct {
	v   *viper.Viper
	out io.Writer
	in  io.Reader

	// newAgent is replaced in tests.
	newAgent func(ps params, prefix string) (usecase.AgentInvoker, error)
}

func newApp(out io.Writer, in io.Reader) *app {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyStateFile, defaultStateFile())
	v.SetDefault(keyParamPrefix, "/lyzr-chat")
	v.SetDefault(keyBaseURL, lyzr.DefaultBaseURL)
	v.SetDefault(keyTimeout, 60*time.Second)
	v.SetDefault(keyLogLevel, "warn")
	v.SetDefault(keyEnvFile, ".env")

	a := &app{v: v, out: out, in: in}
	a.newAgent = a.lyzrAgent
	return a
}

func defaultStateFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "lyzrchat-conversations.json"
	}
	return filepath.Join(home, ".lyzrchat", "conversations.json")
}

// loadDotEnv reads LYZRCHAT_* entries from the env file as defaults. Flags and
// real environment variables still take precedence. A missing file is fine.
func (a *app) loadDotEnv() error {
	path := a.v.GetString(keyEnvFile)
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read env file %s: %w", path, err)
	}
	entries, err := godotenv.Unmarshal(string(data))
	if err != nil {
		return fmt.Errorf("parse env file %s: %w", path, err)
	}
	for name, value := range entries {
		key, ok := strings.CutPrefix(name, envPrefix+"_")
		if !ok {
			continue
		}
		a.v.SetDefault(strings.ReplaceAll(strings.ToLower(key), "_", "-"), value)
	}
	return nil
}

func (a *app) configureLogging() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.v.GetString(keyLogLevel))); err != nil {
		level = slog.LevelWarn
	}
	observability.SetOutput(os.Stderr, level)
}

// params resolves where parameters come from. An API key given on the command
// line or in the environment keeps everything local; otherwise SSM is used.
func (a *app) params(ctx context.Context) (params, error) {
	prefix := a.paramPrefix()
	if key := strings.TrimSpace(a.v.GetString(keyAPIKey)); key != "" {
		token, err := json.Marshal(struct {
			Token string `json:"token"`
		}{Token: key})
		if err != nil {
			return nil, err
		}
		return paramstore.Static{prefix + "/lyzr-api-key": string(token)}, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return paramstore.New(awsssm.NewFromConfig(cfg))
}

func (a *app) paramPrefix() string {
	return strings.TrimRight(a.v.GetString(keyParamPrefix), "/")
}

func (a *app) lyzrAgent(ps params, prefix string) (usecase.AgentInvoker, error) {
	return lyzr.NewClient(ps, prefix,
		lyzr.WithBaseURL(a.v.GetString(keyBaseURL)),
		lyzr.WithUserID(a.v.GetString(keyUserID)),
	)
}

// openStore opens the local conversation file without touching the agent.
func (a *app) openStore(ctx context.Context, constants chatconfig.Constants) (*store.Store, error) {
	slot, err := repository.NewFileSlot(a.v.GetString(keyStateFile))
	if err != nil {
		return nil, err
	}
	repo, err := repository.NewConversationRepository(slot)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, repo, store.Options{
		WelcomeMessage:   constants.WelcomeMessage,
		PlaceholderTitle: constants.PlaceholderTitle,
	})
}

func (a *app) constants(ctx context.Context, ps params) (chatconfig.Constants, error) {
	constants, err := chatconfig.Load(ctx, ps, a.paramPrefix())
	if err != nil {
		return chatconfig.Constants{}, err
	}
	if id := strings.TrimSpace(a.v.GetString(keyAgentID)); id != "" {
		constants.AgentID = id
	}
	return constants, nil
}

// session wires a full chat session over the local conversation file.
func (a *app) session(ctx context.Context) (*usecase.Session, error) {
	ps, err := a.params(ctx)
	if err != nil {
		return nil, err
	}
	constants, err := a.constants(ctx, ps)
	if err != nil {
		return nil, err
	}
	conversations, err := a.openStore(ctx, constants)
	if err != nil {
		return nil, err
	}
	agent, err := a.newAgent(ps, a.paramPrefix())
	if err != nil {
		return nil, err
	}
	return usecase.NewSession(agent, conversations, constants,
		usecase.WithAgentTimeout(a.v.GetDuration(keyTimeout)))
}
