// Package lyzr calls a remote Lyzr agent and normalizes its reply into a
// domain.AgentResult.
package lyzr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"lyzr-chat/internal/domain"
	"lyzr-chat/internal/timefmt"
)

const (
	DefaultBaseURL = "https://agent-prod.studio.lyzr.ai"
	inferencePath  = "/v3/inference/chat/"
	defaultUserID  = "lyzr-chat"
)

// chatRequest is the request shape for the agent inference endpoint.
type chatRequest struct {
	UserID    string `json:"user_id"`
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// chatResponse is the envelope returned by the inference endpoint. Response is
// either a JSON string (often itself JSON) or an object.
type chatResponse struct {
	Response json.RawMessage `json:"response"`
}

// agentPayload is the structured answer the agent is instructed to produce.
type agentPayload struct {
	Status  string              `json:"status"`
	Result  *domain.AgentAnswer `json:"result"`
	Message string              `json:"message"`
}

// errorBody covers the error shapes the endpoint returns on non-2xx.
type errorBody struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// tokenPayload is the expected JSON shape stored in SSM for the API key.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("lyzr: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused client for a single Lyzr agent inference endpoint.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string
	userID      string
	sessionID   string

	keyMu  sync.Mutex
	apiKey string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserID sets the user identity reported to the agent.
func WithUserID(userID string) Option {
	return func(c *Client) {
		if userID = strings.TrimSpace(userID); userID != "" {
			c.userID = userID
		}
	}
}

// WithSessionID pins the agent-side memory session. By default every Client
// gets a fresh one.
func WithSessionID(sessionID string) Option {
	return func(c *Client) {
		if sessionID = strings.TrimSpace(sessionID); sessionID != "" {
			c.sessionID = sessionID
		}
	}
}

// NewClient creates a new Client backed by the given Getter for API key
// retrieval. The key is fetched on the first Invoke and reused for the
// lifetime of the process; a failed fetch is retried on the next call.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("lyzr: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("lyzr: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: 90 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
		userID:      defaultUserID,
		sessionID:   timefmt.NewID(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	key, err := fetchAPIKeyFromParamStore(ctx, c.getter, c.tokenParameterName())
	if err != nil {
		return "", err
	}
	c.apiKey = key
	return key, nil
}

func (c *Client) tokenParameterName() string {
	return c.paramPrefix + "/lyzr-api-key"
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 90 * time.Second}
}

func inferenceURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if strings.HasSuffix(base, "/v3/inference/chat") {
		return base + "/"
	}
	return base + inferencePath
}

// Invoke sends message to agentID. Agent-level and HTTP-status failures come
// back as an unsuccessful AgentResult; a returned error means the call itself
// failed (network, context, credentials).
func (c *Client) Invoke(ctx context.Context, message, agentID string) (domain.AgentResult, error) {
	if strings.TrimSpace(agentID) == "" {
		return domain.AgentResult{}, errors.New("lyzr: agent id must not be empty")
	}

	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return domain.AgentResult{}, err
	}

	body, err := json.Marshal(chatRequest{
		UserID:    c.userID,
		AgentID:   agentID,
		SessionID: c.sessionID,
		Message:   message,
	})
	if err != nil {
		return domain.AgentResult{}, fmt.Errorf("lyzr: marshal request: %w", err)
	}

	url := inferenceURL(c.baseURL)
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return domain.AgentResult{}, fmt.Errorf("lyzr: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) {
			return domain.AgentResult{Success: false, Error: describeStatusError(statusErr)}, nil
		}
		return domain.AgentResult{}, fmt.Errorf("lyzr: request failed: %w", err)
	}
	return normalize(raw), nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func describeStatusError(e *HTTPStatusError) string {
	var body errorBody
	if err := json.Unmarshal([]byte(e.Body), &body); err == nil {
		if msg := strings.TrimSpace(body.Detail); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(body.Message); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("agent returned HTTP %d", e.StatusCode)
}

// normalize maps a 2xx inference body onto the AgentResult envelope.
func normalize(raw []byte) domain.AgentResult {
	var envelope chatResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return domain.AgentResult{Success: false, Error: fmt.Sprintf("lyzr: decode response: %v", err)}
	}
	if len(envelope.Response) == 0 || string(envelope.Response) == "null" {
		return domain.AgentResult{Success: false, Error: "lyzr: response missing"}
	}

	var text string
	if err := json.Unmarshal(envelope.Response, &text); err == nil {
		return domain.AgentResult{Success: true, Response: payloadFromText(text)}
	}

	var payload agentPayload
	if err := json.Unmarshal(envelope.Response, &payload); err != nil {
		return domain.AgentResult{Success: false, Error: fmt.Sprintf("lyzr: decode agent payload: %v", err)}
	}
	return domain.AgentResult{Success: true, Response: payload.toResponse()}
}

// payloadFromText accepts the agent's text reply, which is structured JSON
// (optionally inside a markdown code fence) or free text used as the answer.
func payloadFromText(text string) *domain.AgentResponse {
	trimmed := stripCodeFence(text)
	if strings.HasPrefix(trimmed, "{") {
		var payload agentPayload
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil && (payload.Status != "" || payload.Result != nil) {
			return payload.toResponse()
		}
	}
	return &domain.AgentResponse{
		Status: domain.StatusSuccess,
		Result: &domain.AgentAnswer{Answer: strings.TrimSpace(text)},
	}
}

func (p agentPayload) toResponse() *domain.AgentResponse {
	status := strings.TrimSpace(p.Status)
	if status == "" && p.Result != nil {
		status = domain.StatusSuccess
	}
	return &domain.AgentResponse{Status: status, Result: p.Result, Message: p.Message}
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("lyzr: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("lyzr: api key parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("lyzr: fetch api key from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("lyzr: unmarshal paramstore api key value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("lyzr: API key is empty")
	}
	return tp.Token, nil
}
