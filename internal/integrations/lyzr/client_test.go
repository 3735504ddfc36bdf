package lyzr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lyzr-chat/internal/domain"
)

// ---------------------------------------------------------------------------
// inferenceURL helper
// ---------------------------------------------------------------------------

func TestInferenceURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://agent-prod.studio.lyzr.ai", "https://agent-prod.studio.lyzr.ai/v3/inference/chat/"},
		{"https://agent-prod.studio.lyzr.ai/", "https://agent-prod.studio.lyzr.ai/v3/inference/chat/"},
		{"http://localhost:8080/v3/inference/chat", "http://localhost:8080/v3/inference/chat/"},
		{"", "https://agent-prod.studio.lyzr.ai/v3/inference/chat/"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, inferenceURL(tc.base), "base=%q", tc.base)
	}
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, "/lyzr-chat")
	require.ErrorContains(t, err, "nil")

	_, err = NewClient(&fakeGetter{}, " / ")
	require.ErrorContains(t, err, "prefix")
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(&fakeGetter{}, "/lyzr-chat/")
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, c.baseURL)
	require.Equal(t, "/lyzr-chat/lyzr-api-key", c.tokenParameterName())
	require.Equal(t, defaultUserID, c.userID)
	require.NotEmpty(t, c.sessionID)
}

// ---------------------------------------------------------------------------
// resolveAPIKey caching
// ---------------------------------------------------------------------------

type fakeGetter struct {
	val    string
	err    error
	onCall func()
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	if f.onCall != nil {
		f.onCall()
	}
	return f.val, f.err
}

func TestResolveAPIKey_CachedAfterSuccess(t *testing.T) {
	calls := 0
	g := &fakeGetter{val: `{"token":"key-from-ssm"}`, onCall: func() { calls++ }}
	c, err := NewClient(g, "/lyzr-chat")
	require.NoError(t, err)

	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "key-from-ssm", key)

	_, _ = c.resolveAPIKey(context.Background())
	require.Equal(t, 1, calls)
}

func TestResolveAPIKey_RetriedAfterFailure(t *testing.T) {
	g := &fakeGetter{err: errors.New("ssm unavailable")}
	c, err := NewClient(g, "/lyzr-chat")
	require.NoError(t, err)

	_, err = c.resolveAPIKey(context.Background())
	require.ErrorContains(t, err, "ssm unavailable")

	g.err = nil
	g.val = `{"token":"recovered"}`
	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "recovered", key)
}

func TestFetchAPIKey(t *testing.T) {
	_, err := fetchAPIKeyFromParamStore(context.Background(), nil, "/x")
	require.ErrorContains(t, err, "nil")

	_, err = fetchAPIKeyFromParamStore(context.Background(), &fakeGetter{}, " ")
	require.ErrorContains(t, err, "empty")

	_, err = fetchAPIKeyFromParamStore(context.Background(), &fakeGetter{val: `{"broken`}, "/x")
	require.ErrorContains(t, err, "unmarshal")

	_, err = fetchAPIKeyFromParamStore(context.Background(), &fakeGetter{val: `{"other":"v"}`}, "/x")
	require.ErrorContains(t, err, "API key is empty")
}

// ---------------------------------------------------------------------------
// Client.Invoke
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(
		&fakeGetter{val: `{"token":"key-test"}`},
		"/lyzr-chat",
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
		WithUserID("user@example.com"),
		WithSessionID("session-1"),
	)
	require.NoError(t, err)
	return c
}

func respondWith(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestInvoke_SendsRequest(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/inference/chat/", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "key-test", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		respondWith(200, `{"response":"hello"}`)(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Invoke(context.Background(), "What are Lyzr agents?", "agent-1")
	require.NoError(t, err)
	require.Equal(t, chatRequest{
		UserID:    "user@example.com",
		AgentID:   "agent-1",
		SessionID: "session-1",
		Message:   "What are Lyzr agents?",
	}, got)
}

func TestInvoke_StructuredStringResponse(t *testing.T) {
	payload := `{"status":"success","result":{"answer":"Visit docs.lyzr.ai","sources":["https://docs.lyzr.ai"],"confidence":0.92,"suggested_action":"Open the quickstart"}}`
	body, err := json.Marshal(map[string]string{"response": "```json\n" + payload + "\n```"})
	require.NoError(t, err)

	srv := httptest.NewServer(respondWith(200, string(body)))
	defer srv.Close()

	res, err := newTestClient(t, srv).Invoke(context.Background(), "How do I get started with Lyzr?", "agent-1")
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.Equal(t, "Visit docs.lyzr.ai", res.Response.Result.Answer)
	require.Equal(t, []string{"https://docs.lyzr.ai"}, res.Response.Result.Sources)
	require.InDelta(t, 0.92, *res.Response.Result.Confidence, 1e-9)
	require.Equal(t, "Open the quickstart", res.Response.Result.SuggestedAction)
}

func TestInvoke_ObjectResponse(t *testing.T) {
	srv := httptest.NewServer(respondWith(200, `{"response":{"status":"error","message":"rate limited"}}`))
	defer srv.Close()

	res, err := newTestClient(t, srv).Invoke(context.Background(), "hi", "agent-1")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.False(t, res.Succeeded())
	require.Equal(t, "error", res.Response.Status)
	require.Equal(t, "rate limited", res.Response.Message)
}

func TestInvoke_PlainTextResponse(t *testing.T) {
	srv := httptest.NewServer(respondWith(200, `{"response":"  Lyzr is an agent framework.  "}`))
	defer srv.Close()

	res, err := newTestClient(t, srv).Invoke(context.Background(), "hi", "agent-1")
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.Equal(t, "Lyzr is an agent framework.", res.Response.Result.Answer)
	require.Nil(t, res.Response.Result.Confidence)
}

func TestInvoke_UnstructuredJSONTextIsAnswer(t *testing.T) {
	srv := httptest.NewServer(respondWith(200, `{"response":"{\"foo\":1}"}`))
	defer srv.Close()

	res, err := newTestClient(t, srv).Invoke(context.Background(), "hi", "agent-1")
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.Equal(t, `{"foo":1}`, res.Response.Result.Answer)
}

func TestInvoke_Non2xxIsUnsuccessfulResult(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail", 422, `{"detail":"agent not found"}`, "agent not found"},
		{"message", 500, `{"message":"internal failure"}`, "internal failure"},
		{"opaque", 502, `<html>bad gateway</html>`, "agent returned HTTP 502"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(respondWith(tc.status, tc.body))
			defer srv.Close()

			res, err := newTestClient(t, srv).Invoke(context.Background(), "hi", "agent-1")
			require.NoError(t, err)
			require.False(t, res.Success)
			require.Equal(t, tc.want, res.Error)
		})
	}
}

func TestInvoke_MalformedBodyIsUnsuccessfulResult(t *testing.T) {
	for _, body := range []string{`not-json`, `{}`, `{"response":null}`, `{"response":42}`} {
		srv := httptest.NewServer(respondWith(200, body))
		res, err := newTestClient(t, srv).Invoke(context.Background(), "hi", "agent-1")
		srv.Close()
		require.NoError(t, err, body)
		require.False(t, res.Success, body)
		require.NotEmpty(t, res.Error, body)
	}
}

func TestInvoke_NetworkErrorIsReturned(t *testing.T) {
	c, err := NewClient(&fakeGetter{val: `{"token":"key-test"}`}, "/lyzr-chat",
		WithBaseURL("http://127.0.0.1:1"),
		WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}),
	)
	require.NoError(t, err)

	_, err = c.Invoke(context.Background(), "hi", "agent-1")
	require.ErrorContains(t, err, "request failed")
}

func TestInvoke_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		respondWith(200, `{"response":"late"}`)(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}
	_, err := c.Invoke(context.Background(), "hi", "agent-1")
	require.Error(t, err)
}

func TestInvoke_APIKeyErrorIsReturned(t *testing.T) {
	c, err := NewClient(&fakeGetter{err: errors.New("access denied")}, "/lyzr-chat")
	require.NoError(t, err)
	_, err = c.Invoke(context.Background(), "hi", "agent-1")
	require.ErrorContains(t, err, "access denied")
}

func TestInvoke_EmptyAgentID(t *testing.T) {
	c, err := NewClient(&fakeGetter{val: `{"token":"key-test"}`}, "/lyzr-chat")
	require.NoError(t, err)
	_, err = c.Invoke(context.Background(), "hi", " ")
	require.ErrorContains(t, err, "agent id")
}

func TestAgentResult_Succeeded(t *testing.T) {
	require.False(t, domain.AgentResult{Success: true}.Succeeded())
	require.False(t, domain.AgentResult{Success: false, Response: &domain.AgentResponse{Status: "success"}}.Succeeded())
	require.True(t, domain.AgentResult{Success: true, Response: &domain.AgentResponse{Status: "success"}}.Succeeded())
}
