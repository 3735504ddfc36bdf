package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"lyzr-chat/internal/config"
	"lyzr-chat/internal/domain"
)

// fakePersister behaves like one shared slot: Save replaces what Load and
// Latest return.
type fakePersister struct {
	loaded    []domain.Conversation
	latestErr error
	saves     [][]domain.Conversation
}

func (f *fakePersister) Load(context.Context) []domain.Conversation {
	return cloneAll(f.loaded)
}

func (f *fakePersister) Latest(context.Context) ([]domain.Conversation, error) {
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	return cloneAll(f.loaded), nil
}

func (f *fakePersister) Save(_ context.Context, convs []domain.Conversation) {
	f.saves = append(f.saves, convs)
	f.loaded = convs
}

func cloneAll(convs []domain.Conversation) []domain.Conversation {
	out := make([]domain.Conversation, len(convs))
	for i, c := range convs {
		out[i] = c.Clone()
	}
	return out
}

func (f *fakePersister) last() []domain.Conversation {
	if len(f.saves) == 0 {
		return nil
	}
	return f.saves[len(f.saves)-1]
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func newTestStore(t *testing.T, p *fakePersister, clock *testClock) *Store {
	t.Helper()
	s, err := Open(context.Background(), p, Options{
		WelcomeMessage: "Hi! Ask me anything about Lyzr.",
		Now:            clock.now,
		NewID:          seqIDs(),
	})
	require.NoError(t, err)
	return s
}

func userMsg(id, text string) domain.Message {
	return domain.Message{ID: id, Role: domain.RoleUser, Content: text, Timestamp: "2026-10-19T10:00:00.000Z"}
}

func TestOpen_LoadsPersistedConversations(t *testing.T) {
	p := &fakePersister{loaded: []domain.Conversation{{ID: "old", Title: "Old", Messages: []domain.Message{}}}}
	s := newTestStore(t, p, &testClock{t: time.Now()})

	convs := s.Conversations()
	require.Len(t, convs, 1)
	require.Equal(t, "old", convs[0].ID)
	require.Empty(t, p.saves, "opening must not write")
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(context.Background(), nil, Options{WelcomeMessage: "hi"})
	require.ErrorContains(t, err, "persister")

	_, err = Open(context.Background(), &fakePersister{}, Options{WelcomeMessage: " "})
	require.ErrorContains(t, err, "welcome")

	s, err := Open(context.Background(), &fakePersister{}, Options{WelcomeMessage: "hi"})
	require.NoError(t, err)
	require.Equal(t, config.DefaultPlaceholderTitle, s.PlaceholderTitle())
}

func TestCreateConversation_SeedsWelcomeAndPrepends(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
	p := &fakePersister{}
	s := newTestStore(t, p, clock)

	first := s.CreateConversation(context.Background(), "New Chat")
	clock.advance(time.Minute)
	second := s.CreateConversation(context.Background(), "Pricing")

	require.Equal(t, "New Chat", first.Title)
	require.Equal(t, clock.t.Add(-time.Minute).UnixMilli(), first.Timestamp)
	require.Len(t, first.Messages, 1)
	require.Equal(t, domain.RoleAssistant, first.Messages[0].Role)
	require.Equal(t, "Hi! Ask me anything about Lyzr.", first.Messages[0].Content)
	require.Equal(t, "2026-10-19T10:00:00.000Z", first.Messages[0].Timestamp)

	convs := s.Conversations()
	require.Equal(t, []string{second.ID, first.ID}, []string{convs[0].ID, convs[1].ID})
	require.Len(t, p.saves, 2)
	require.Equal(t, convs, p.last())
}

func TestSelectConversation(t *testing.T) {
	s := newTestStore(t, &fakePersister{}, &testClock{t: time.Now()})
	conv := s.CreateConversation(context.Background(), "New Chat")

	got, ok := s.SelectConversation(conv.ID)
	require.True(t, ok)
	require.Equal(t, conv, got)

	_, ok = s.SelectConversation("missing")
	require.False(t, ok)
}

func TestSelectConversation_ReturnsCopy(t *testing.T) {
	s := newTestStore(t, &fakePersister{}, &testClock{t: time.Now()})
	conv := s.CreateConversation(context.Background(), "New Chat")

	got, _ := s.SelectConversation(conv.ID)
	got.Messages[0].Content = "tampered"
	got.Title = "tampered"

	again, _ := s.SelectConversation(conv.ID)
	require.Equal(t, "New Chat", again.Title)
	require.Equal(t, "Hi! Ask me anything about Lyzr.", again.Messages[0].Content)
}

func TestAppendMessage_OrderTimestampAndPersist(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
	p := &fakePersister{}
	s := newTestStore(t, p, clock)
	conv := s.CreateConversation(context.Background(), "New Chat")

	clock.advance(5 * time.Second)
	require.NoError(t, s.AppendMessage(context.Background(), conv.ID, userMsg("u1", "What are Lyzr agents?")))
	require.NoError(t, s.AppendMessage(context.Background(), conv.ID, domain.Message{ID: "a1", Role: domain.RoleAssistant, Content: "Agents are..."}))

	got, _ := s.SelectConversation(conv.ID)
	require.Equal(t, []string{conv.Messages[0].ID, "u1", "a1"}, []string{got.Messages[0].ID, got.Messages[1].ID, got.Messages[2].ID})
	require.Equal(t, clock.t.UnixMilli(), got.Timestamp)
	require.Len(t, p.saves, 3)
	require.Equal(t, got, p.last()[0])
}

func TestAppendMessage_NoDeduplication(t *testing.T) {
	s := newTestStore(t, &fakePersister{}, &testClock{t: time.Now()})
	conv := s.CreateConversation(context.Background(), "New Chat")

	msg := userMsg("u1", "same")
	require.NoError(t, s.AppendMessage(context.Background(), conv.ID, msg))
	require.NoError(t, s.AppendMessage(context.Background(), conv.ID, msg))

	got, _ := s.SelectConversation(conv.ID)
	require.Len(t, got.Messages, 3)
}

func TestAppendMessage_MissingConversation(t *testing.T) {
	p := &fakePersister{}
	s := newTestStore(t, p, &testClock{t: time.Now()})

	err := s.AppendMessage(context.Background(), "missing", userMsg("u1", "hi"))
	require.ErrorIs(t, err, ErrConversationNotFound)
	require.Empty(t, p.saves)
}

func TestAppendMessage_TitleRewrittenOnceFromPlaceholder(t *testing.T) {
	s := newTestStore(t, &fakePersister{}, &testClock{t: time.Now()})
	conv := s.CreateConversation(context.Background(), "New Chat")

	require.NoError(t, s.AppendMessage(context.Background(), conv.ID, domain.Message{ID: "a0", Role: domain.RoleAssistant, Content: "still welcome"}))
	got, _ := s.SelectConversation(conv.ID)
	require.Equal(t, "New Chat", got.Title, "assistant messages never trigger the rewrite")

	require.NoError(t, s.AppendMessage(context.Background(), conv.ID, userMsg("u1", "How does pricing work?")))
	got, _ = s.SelectConversation(conv.ID)
	require.Equal(t, "How does pricing work?", got.Title)

	require.NoError(t, s.AppendMessage(context.Background(), conv.ID, userMsg("u2", "And enterprise plans?")))
	got, _ = s.SelectConversation(conv.ID)
	require.Equal(t, "How does pricing work?", got.Title)
}

func TestAppendMessage_NonPlaceholderTitleKept(t *testing.T) {
	s := newTestStore(t, &fakePersister{}, &testClock{t: time.Now()})
	conv := s.CreateConversation(context.Background(), "Seeded title")

	require.NoError(t, s.AppendMessage(context.Background(), conv.ID, userMsg("u1", "Something else")))
	got, _ := s.SelectConversation(conv.ID)
	require.Equal(t, "Seeded title", got.Title)
}

func TestAppendMessage_StoresCopy(t *testing.T) {
	s := newTestStore(t, &fakePersister{}, &testClock{t: time.Now()})
	conv := s.CreateConversation(context.Background(), "New Chat")

	msg := domain.Message{ID: "a1", Role: domain.RoleAssistant, Content: "x", Sources: []string{"https://docs.lyzr.ai"}}
	require.NoError(t, s.AppendMessage(context.Background(), conv.ID, msg))
	msg.Sources[0] = "https://evil.example"

	got, _ := s.SelectConversation(conv.ID)
	require.Equal(t, "https://docs.lyzr.ai", got.Messages[1].Sources[0])
}

func TestTruncateTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Short question?", "Short question?"},
		{"  padded  ", "padded"},
		{"exactly thirty characters long", "exactly thirty characters long"},
		{"How do I get started with Lyzr?", "How do I get started with L..."},
		{"How do I integrate Lyzr agents with my existing app?", "How do I integrate Lyzr age..."},
		{"ünïcödé ünïcödé ünïcödé ünïcödé ünïcödé", "ünïcödé ünïcödé ünïcödé ünï..."},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got := TruncateTitle(tc.in)
			require.Equal(t, tc.want, got)
			require.LessOrEqual(t, utf8.RuneCountInString(got), 30)
		})
	}
}

func TestStore_SharedPersisterKeepsEveryWriter(t *testing.T) {
	p := &fakePersister{}
	a := newTestStore(t, p, &testClock{t: time.Now()})
	n := 0
	b, err := Open(context.Background(), p, Options{WelcomeMessage: "hi", NewID: func() string {
		n++
		return fmt.Sprintf("b-%03d", n)
	}})
	require.NoError(t, err)

	fromA := a.CreateConversation(context.Background(), "From A")
	fromB := b.CreateConversation(context.Background(), "From B")
	require.NoError(t, b.AppendMessage(context.Background(), fromA.ID, userMsg("u1", "continued on B")))

	saved := p.last()
	require.Len(t, saved, 2)
	require.Equal(t, fromB.ID, saved[0].ID)
	require.Equal(t, fromA.ID, saved[1].ID)
	require.Len(t, saved[1].Messages, 2)

	a.Refresh(context.Background())
	got, ok := a.SelectConversation(fromA.ID)
	require.True(t, ok)
	require.Equal(t, "continued on B", got.Messages[1].Content)
}

func TestStore_RefreshFailureKeepsCachedList(t *testing.T) {
	p := &fakePersister{}
	s := newTestStore(t, p, &testClock{t: time.Now()})
	conv := s.CreateConversation(context.Background(), "New Chat")

	p.latestErr = errors.New("throttled")
	s.Refresh(context.Background())
	require.NoError(t, s.AppendMessage(context.Background(), conv.ID, userMsg("u1", "still here")))

	require.Len(t, s.Conversations(), 1)
	require.Len(t, p.last()[0].Messages, 2)
}

func TestAppendMessage_ConcurrentSavesStayOrdered(t *testing.T) {
	p := &fakePersister{}
	s := newTestStore(t, p, &testClock{t: time.Now()})
	conv := s.CreateConversation(context.Background(), "New Chat")

	errs := make(chan error, 20)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.AppendMessage(context.Background(), conv.ID, userMsg(fmt.Sprintf("u%02d", i), "hi"))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for i, saved := range p.saves {
		require.Len(t, saved[0].Messages, i+1)
	}
	require.Len(t, p.last()[0].Messages, 21)
}
