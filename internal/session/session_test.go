package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comigor/agentgraph-go/internal/chatbot"
	"github.com/comigor/agentgraph-go/internal/history"
)

type mockBot struct {
	answers  []string
	err      error
	empty    bool
	received [][]chatbot.Exchange
}

func (m *mockBot) Respond(ctx context.Context, h []chatbot.Exchange, prompt string) (string, []chatbot.Exchange, error) {
	m.received = append(m.received, append([]chatbot.Exchange(nil), h...))
	if m.err != nil {
		return "", h, m.err
	}
	if m.empty {
		return "", nil, nil
	}
	answer := "echo: " + prompt
	if len(m.answers) > 0 {
		answer = m.answers[0]
		m.answers = m.answers[1:]
	}
	return "", append(append([]chatbot.Exchange(nil), h...), chatbot.Exchange{User: prompt, Assistant: answer}), nil
}

func TestSend_AppendsPromptAndResponse(t *testing.T) {
	bot := &mockBot{answers: []string{"Hello!"}}
	m := NewManager(bot, nil, t.TempDir())
	ctx := context.Background()

	reply, err := m.Send(ctx, "s1", "  hi there  ")
	require.NoError(t, err)
	require.Equal(t, Turn{Role: RoleAssistant, Content: "Hello!", Avatar: DefaultBotAvatar}, reply)

	st := m.Get(ctx, "s1")
	require.Equal(t, []Turn{
		{Role: RoleUser, Content: "hi there", Avatar: DefaultUserAvatar},
		{Role: RoleAssistant, Content: "Hello!", Avatar: DefaultBotAvatar},
	}, st.Messages)
	require.Equal(t, []chatbot.Exchange{{User: "hi there", Assistant: "Hello!"}}, st.Legacy)
	require.Equal(t, Stats{Messages: 2, Conversations: 1}, m.Stats(ctx, "s1"))
}

func TestSend_EmptyPrompt(t *testing.T) {
	m := NewManager(&mockBot{}, nil, "")
	_, err := m.Send(context.Background(), "s1", "   ")
	require.ErrorIs(t, err, ErrEmptyPrompt)
	require.Empty(t, m.Get(context.Background(), "s1").Messages)
}

func TestSend_ImageAvatars(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, userAvatarFile), []byte("png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, botAvatarFile), []byte("png"), 0o644))

	m := NewManager(&mockBot{}, nil, dir)
	reply, err := m.Send(context.Background(), "s1", "hi")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, botAvatarFile), reply.Avatar)
	require.Equal(t, filepath.Join(dir, userAvatarFile), m.Get(context.Background(), "s1").Messages[0].Avatar)
}

func TestSend_ChatbotError(t *testing.T) {
	m := NewManager(&mockBot{err: errors.New("boom")}, nil, "")
	reply, err := m.Send(context.Background(), "s1", "hi")
	require.NoError(t, err)
	require.Equal(t, Turn{Role: RoleAssistant, Content: "An error occurred: boom", Avatar: ErrorAvatar}, reply)
	require.Len(t, m.Get(context.Background(), "s1").Messages, 2)
}

func TestSend_EmptyHistoryFallback(t *testing.T) {
	m := NewManager(&mockBot{empty: true}, nil, "")
	reply, err := m.Send(context.Background(), "s1", "hi")
	require.NoError(t, err)
	require.Equal(t, Turn{Role: RoleAssistant, Content: FallbackReply, Avatar: DefaultBotAvatar}, reply)
	require.Empty(t, m.Get(context.Background(), "s1").Legacy)
}

func TestSend_RebuildsLegacyAfterFailure(t *testing.T) {
	bot := &mockBot{}
	m := NewManager(bot, nil, "")
	ctx := context.Background()

	_, err := m.Send(ctx, "s1", "first")
	require.NoError(t, err)

	bot.err = errors.New("temporary")
	_, err = m.Send(ctx, "s1", "second")
	require.NoError(t, err)

	bot.err = nil
	_, err = m.Send(ctx, "s1", "third")
	require.NoError(t, err)

	require.Len(t, bot.received, 3)
	require.Equal(t, []chatbot.Exchange{
		{User: "first", Assistant: "echo: first"},
		{User: "second"},
	}, bot.received[2])
	require.Len(t, m.Get(ctx, "s1").Legacy, 3)
}

func TestClear(t *testing.T) {
	store := history.New("")
	m := NewManager(&mockBot{}, store, "")
	ctx := context.Background()

	_, err := m.Send(ctx, "s1", "hi")
	require.NoError(t, err)
	require.Len(t, store.List(ctx, "s1"), 2)

	m.Clear(ctx, "s1")
	require.Empty(t, m.Get(ctx, "s1").Messages)
	require.Empty(t, m.Get(ctx, "s1").Legacy)
	require.Equal(t, Stats{}, m.Stats(ctx, "s1"))
	require.Empty(t, store.List(ctx, "s1"))
}

func TestSessionsAreIsolated(t *testing.T) {
	m := NewManager(&mockBot{}, nil, "")
	ctx := context.Background()
	_, err := m.Send(ctx, "a", "hello")
	require.NoError(t, err)
	require.Empty(t, m.Get(ctx, "b").Messages)
}

func TestRestoreFromHistory(t *testing.T) {
	store := history.New(filepath.Join(t.TempDir(), "history.db"))
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	first := NewManager(&mockBot{answers: []string{"one"}}, store, "")
	_, err := first.Send(ctx, "s1", "q1")
	require.NoError(t, err)

	bot := &mockBot{answers: []string{"two"}}
	second := NewManager(bot, store, "")
	st := second.Get(ctx, "s1")
	require.Len(t, st.Messages, 2)
	require.Equal(t, []chatbot.Exchange{{User: "q1", Assistant: "one"}}, st.Legacy)

	_, err = second.Send(ctx, "s1", "q2")
	require.NoError(t, err)
	require.Equal(t, []chatbot.Exchange{{User: "q1", Assistant: "one"}}, bot.received[0])
	require.Len(t, store.List(ctx, "s1"), 4)
}

func TestRestoreIgnoresRequestCancellation(t *testing.T) {
	store := history.New(filepath.Join(t.TempDir(), "history.db"))
	t.Cleanup(func() { _ = store.Close() })
	_, err := NewManager(&mockBot{answers: []string{"one"}}, store, "").Send(context.Background(), "s1", "q1")
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewManager(&mockBot{}, store, "")
	require.Len(t, m.Get(cancelled, "s1").Messages, 2)
	require.Len(t, m.Get(context.Background(), "s1").Messages, 2)
}

// blockingRecorder holds List for the "slow" session until release is closed.
type blockingRecorder struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRecorder) Save(context.Context, history.Message) {}

func (b *blockingRecorder) List(_ context.Context, id string) []history.Message {
	if id == "slow" {
		close(b.entered)
		<-b.release
	}
	return nil
}

func (b *blockingRecorder) Delete(context.Context, string) {}

func TestSlowRestoreDoesNotBlockOtherSessions(t *testing.T) {
	rec := &blockingRecorder{entered: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(&mockBot{}, rec, "")
	ctx := context.Background()

	done := make(chan State)
	go func() { done <- m.Get(ctx, "slow") }()
	<-rec.entered

	_, err := m.Send(ctx, "fast", "hi")
	require.NoError(t, err)
	require.Len(t, m.Get(ctx, "fast").Messages, 2)

	close(rec.release)
	require.Empty(t, (<-done).Messages)
}
