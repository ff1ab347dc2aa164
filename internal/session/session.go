// Package session keeps the per-browser chat state: the displayed turns and
// the pair-based history handed to the chatbot.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/comigor/agentgraph-go/internal/chatbot"
	"github.com/comigor/agentgraph-go/internal/history"
	"github.com/comigor/agentgraph-go/internal/logger"
)

// ErrEmptyPrompt is returned by Send for a blank prompt.
var ErrEmptyPrompt = errors.New("prompt is empty")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FallbackReply is shown when the chatbot returns no history at all.
const FallbackReply = "I'm sorry, I couldn't process your request at the moment."

const (
	DefaultUserAvatar = "🧑‍💻"
	DefaultBotAvatar  = "🤖"
	ErrorAvatar       = "⚠️"

	userAvatarFile = "AI_RT.png"
	botAvatarFile  = "openai.png"
)

// Turn is one displayed chat message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Avatar  string `json:"avatar"`
}

// State is a snapshot of one session.
type State struct {
	Messages []Turn             `json:"messages"`
	Legacy   []chatbot.Exchange `json:"-"`
}

// Stats summarises a session for the sidebar.
type Stats struct {
	Messages      int `json:"messages"`
	Conversations int `json:"conversations"`
}

// Responder is the chatbot calling convention.
type Responder interface {
	Respond(ctx context.Context, history []chatbot.Exchange, prompt string) (string, []chatbot.Exchange, error)
}

// Recorder persists turns across restarts. *history.Store satisfies it.
type Recorder interface {
	Save(ctx context.Context, msg history.Message)
	List(ctx context.Context, sessionID string) []history.Message
	Delete(ctx context.Context, sessionID string)
}

type session struct {
	mu    sync.Mutex
	state State
}

// Manager owns every live session. Requests for the same session are serialised.
type Manager struct {
	bot       Responder
	store     Recorder
	imagesDir string

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager creates a Manager. store may be nil to keep sessions in memory only.
func NewManager(bot Responder, store Recorder, imagesDir string) *Manager {
	return &Manager{
		bot:       bot,
		store:     store,
		imagesDir: imagesDir,
		sessions:  make(map[string]*session),
	}
}

// session returns the live session for id, restoring it from history on first
// use. The restore runs outside m.mu and is not cancelled with ctx.
func (m *Manager) session(ctx context.Context, id string) *session {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		return s
	}

	restored := &session{state: m.restore(context.WithoutCancel(ctx), id)}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s
	}
	m.sessions[id] = restored
	return restored
}

// restore rebuilds a session from persisted turns.
func (m *Manager) restore(ctx context.Context, id string) State {
	if m.store == nil {
		return State{}
	}
	stored := m.store.List(ctx, id)
	if len(stored) == 0 {
		return State{}
	}
	turns := make([]Turn, 0, len(stored))
	for _, msg := range stored {
		turns = append(turns, Turn{Role: msg.Role, Content: msg.Content, Avatar: msg.Avatar})
	}
	logger.L.Debug("Restored session from history", "session", id, "turns", len(turns))
	return State{Messages: turns, Legacy: exchangesFrom(turns)}
}

// Get returns a copy of the session state.
func (m *Manager) Get(ctx context.Context, id string) State {
	s := m.session(ctx, id)
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Messages: append([]Turn(nil), s.state.Messages...),
		Legacy:   append([]chatbot.Exchange(nil), s.state.Legacy...),
	}
}

// Stats reports message and conversation counts.
func (m *Manager) Stats(ctx context.Context, id string) Stats {
	s := m.session(ctx, id)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.state.Messages)
	return Stats{Messages: n, Conversations: n / 2}
}

// Clear empties the session and its persisted history.
func (m *Manager) Clear(ctx context.Context, id string) {
	s := m.session(ctx, id)
	s.mu.Lock()
	s.state = State{}
	s.mu.Unlock()
	if m.store != nil {
		m.store.Delete(ctx, id)
	}
	logger.L.Info("Session cleared", "session", id)
}

// Send appends prompt as a user turn, asks the chatbot and appends its reply.
// Chatbot failures never surface as an error: they become an assistant turn
// carrying the error text. The returned turn is the appended assistant turn.
func (m *Manager) Send(ctx context.Context, id, prompt string) (Turn, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Turn{}, ErrEmptyPrompt
	}

	s := m.session(ctx, id)
	s.mu.Lock()
	defer s.mu.Unlock()

	m.appendTurn(ctx, id, s, Turn{Role: RoleUser, Content: prompt, Avatar: m.avatar(userAvatarFile, DefaultUserAvatar)})

	// The pair history misses exchanges whenever a previous reply failed.
	// Rebuild it from the displayed turns, excluding the prompt just added.
	prior := s.state.Messages[:len(s.state.Messages)-1]
	if countUsers(prior) > len(s.state.Legacy) {
		s.state.Legacy = exchangesFrom(prior)
	}

	var reply Turn
	_, updated, err := m.bot.Respond(ctx, s.state.Legacy, prompt)
	switch {
	case err != nil:
		logger.L.Warn("Chatbot returned an error", "session", id, "error", err)
		reply = Turn{Role: RoleAssistant, Content: fmt.Sprintf("An error occurred: %v", err), Avatar: ErrorAvatar}
	case len(updated) == 0:
		reply = Turn{Role: RoleAssistant, Content: FallbackReply, Avatar: DefaultBotAvatar}
	default:
		reply = Turn{Role: RoleAssistant, Content: updated[len(updated)-1].Assistant, Avatar: m.avatar(botAvatarFile, DefaultBotAvatar)}
		s.state.Legacy = updated
	}
	m.appendTurn(ctx, id, s, reply)
	return reply, nil
}

func (m *Manager) appendTurn(ctx context.Context, id string, s *session, t Turn) {
	s.state.Messages = append(s.state.Messages, t)
	if m.store != nil {
		m.store.Save(ctx, history.Message{
			SessionID: id,
			Role:      t.Role,
			Content:   t.Content,
			Avatar:    t.Avatar,
			CreatedAt: time.Now().UTC(),
		})
	}
}

// avatar returns the image path when the file exists, else the fallback emoji.
func (m *Manager) avatar(file, fallback string) string {
	if m.imagesDir == "" {
		return fallback
	}
	p := filepath.Join(m.imagesDir, file)
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return fallback
}

func countUsers(turns []Turn) int {
	n := 0
	for _, t := range turns {
		if t.Role == RoleUser {
			n++
		}
	}
	return n
}

// exchangesFrom pairs each user turn with the assistant reply that followed
// it. Error and fallback replies are left empty so the model never sees them.
func exchangesFrom(turns []Turn) []chatbot.Exchange {
	var out []chatbot.Exchange
	for i, t := range turns {
		if t.Role != RoleUser {
			continue
		}
		ex := chatbot.Exchange{User: t.Content}
		if i+1 < len(turns) {
			next := turns[i+1]
			if next.Role == RoleAssistant && next.Avatar != ErrorAvatar && next.Content != FallbackReply {
				ex.Assistant = next.Content
			}
		}
		out = append(out, ex)
	}
	return out
}
