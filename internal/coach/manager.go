// Package coach owns the conversation turn lifecycle: a user submission
// creates a pending assistant message, inference runs in the background,
// and the turn resolves to success or failure exactly once.
package coach

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/coachvault/coachd/internal/entity"
	"github.com/coachvault/coachd/internal/events"
	"github.com/coachvault/coachd/internal/inference"
	"github.com/coachvault/coachd/internal/prompt"
	"github.com/coachvault/coachd/internal/repo"
)

const maxDerivedTitle = 48

// Gateway produces a completion for an assembled prompt.
type Gateway interface {
	Infer(ctx context.Context, p prompt.Prompt) (string, error)
}

// Manager mediates all turn-lifecycle access to conversations. Per
// conversation it serializes the critical sections (message id assignment,
// status transitions) with a dedicated mutex, and the single-pending
// invariant keeps two turns from ever being in flight on one conversation.
type Manager struct {
	repo    *repo.Repo
	prompts *prompt.Builder
	gateway Gateway
	events  *events.Publisher
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	wg sync.WaitGroup
}

func NewManager(r *repo.Repo, b *prompt.Builder, g Gateway, ev *events.Publisher, logger *slog.Logger) *Manager {
	return &Manager{
		repo:    r,
		prompts: b,
		gateway: g,
		events:  ev,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lock(conversationID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[conversationID] = l
	}
	return l
}

// CreateConversation starts an empty conversation owned by the identity.
func (m *Manager) CreateConversation(ctx context.Context, identity entity.Identity, title string) (*entity.Conversation, error) {
	c, err := m.repo.CreateConversation(ctx, identity, title)
	if err != nil {
		return nil, err
	}
	m.events.ConversationCreated(c.ID)
	return c, nil
}

// ListConversations returns the identity's conversation summaries ordered
// by most recently updated.
func (m *Manager) ListConversations(ctx context.Context, identity entity.Identity) ([]entity.Summary, error) {
	cs, err := m.repo.ListConversations(ctx, identity)
	if err != nil {
		return nil, err
	}
	out := make([]entity.Summary, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Summary())
	}
	return out, nil
}

// SubmitUserTurn records the user message, creates the pending assistant
// message and kicks off inference in the background. It returns the
// conversation id and the pending message id immediately; the caller
// discovers the outcome via PollTurn. An empty conversationID starts a
// new conversation titled from the first words of the text.
//
// A conversation with an unresolved pending message rejects the
// submission with repo.ErrConflict and records nothing.
func (m *Manager) SubmitUserTurn(ctx context.Context, identity entity.Identity, conversationID, text string) (string, uint64, error) {
	var c *entity.Conversation
	var err error

	if conversationID == "" {
		c, err = m.repo.CreateConversation(ctx, identity, deriveTitle(text))
		if err != nil {
			return "", 0, err
		}
		m.events.ConversationCreated(c.ID)
		conversationID = c.ID
	}

	l := m.lock(conversationID)
	l.Lock()
	defer l.Unlock()

	if c == nil {
		c, err = m.repo.Conversation(ctx, identity, conversationID)
		if err != nil {
			return "", 0, err
		}
	}
	if c.PendingSeq != 0 {
		return "", 0, repo.ErrConflict
	}

	if _, err := m.repo.AppendMessage(ctx, c, entity.RoleUser, text, entity.StatusResolved); err != nil {
		return "", 0, err
	}
	pending, err := m.repo.AppendMessage(ctx, c, entity.RoleAssistant, "", entity.StatusPending)
	if err != nil {
		return "", 0, err
	}
	c.PendingSeq = pending.ID
	if err := m.repo.PutConversation(ctx, c); err != nil {
		return "", 0, err
	}

	m.wg.Add(1)
	go m.runInference(c.Owner, c.ID, pending.ID)

	return c.ID, pending.ID, nil
}

// runInference builds the prompt, calls the gateway and resolves the turn.
// It deliberately uses a fresh context: the submission request has already
// returned and its cancellation must not abort the turn.
func (m *Manager) runInference(owner entity.Identity, conversationID string, pendingID uint64) {
	defer m.wg.Done()
	ctx := context.Background()

	p, err := m.prompts.Build(ctx, owner, conversationID)
	if err != nil {
		m.logger.Error("prompt build failed", "conversation_id", conversationID, "error", err)
		m.ResolveTurn(ctx, conversationID, pendingID, "", errors.Join(err, inference.ErrUnavailable))
		return
	}

	reply, err := m.gateway.Infer(ctx, p)
	m.ResolveTurn(ctx, conversationID, pendingID, reply, err)
}

// ResolveTurn transitions the pending message to resolved (inferErr nil)
// or failed, with the inference error mapped to an error code. The
// transition happens at most once; a conversation deleted mid-flight is
// logged and dropped.
func (m *Manager) ResolveTurn(ctx context.Context, conversationID string, pendingID uint64, reply string, inferErr error) {
	l := m.lock(conversationID)
	l.Lock()
	defer l.Unlock()

	c, err := m.repo.Conversation(ctx, entity.SystemIdentity, conversationID)
	if err != nil {
		m.logger.Warn("resolve on missing conversation", "conversation_id", conversationID, "error", err)
		return
	}

	if inferErr == nil {
		if _, err := m.repo.UpdateMessageStatus(ctx, c, pendingID, entity.StatusResolved, reply, ""); err != nil {
			m.logger.Error("resolve turn failed", "conversation_id", conversationID, "message_id", pendingID, "error", err)
			return
		}
		m.events.TurnResolved(conversationID, pendingID)
		m.logger.Info("turn resolved", "conversation_id", conversationID, "message_id", pendingID)
		return
	}

	code := errorCode(inferErr)
	if _, err := m.repo.UpdateMessageStatus(ctx, c, pendingID, entity.StatusFailed, "", code); err != nil {
		m.logger.Error("fail turn failed", "conversation_id", conversationID, "message_id", pendingID, "error", err)
		return
	}
	m.events.TurnFailed(conversationID, pendingID, code)
	m.logger.Warn("turn failed",
		"conversation_id", conversationID,
		"message_id", pendingID,
		"error_code", code,
		"error", inferErr,
	)
}

// PollTurn returns the message, whatever its current status.
func (m *Manager) PollTurn(ctx context.Context, identity entity.Identity, conversationID string, messageID uint64) (*entity.Message, error) {
	return m.repo.GetMessage(ctx, identity, conversationID, messageID)
}

// ListMessages returns a newest-first page of the conversation history.
func (m *Manager) ListMessages(ctx context.Context, identity entity.Identity, conversationID string, cursor uint64, limit int) ([]*entity.Message, error) {
	return m.repo.ListMessagesPage(ctx, identity, conversationID, cursor, limit)
}

// DeleteConversation removes the conversation and all its messages.
func (m *Manager) DeleteConversation(ctx context.Context, identity entity.Identity, conversationID string) error {
	l := m.lock(conversationID)
	l.Lock()
	defer l.Unlock()

	if err := m.repo.DeleteConversation(ctx, identity, conversationID); err != nil {
		return err
	}
	m.events.ConversationDeleted(conversationID)
	return nil
}

// RecoverPending fails every pending message left behind by a previous
// process. The goroutine that would have resolved it died with that
// process, so the turn can never complete; failing it with "interrupted"
// lets the owner resubmit immediately. Must run after rehydration and
// before the manager serves requests.
func (m *Manager) RecoverPending(ctx context.Context) error {
	var dangling []*entity.Conversation
	err := m.repo.AllConversations(ctx, func(c *entity.Conversation) error {
		if c.PendingSeq != 0 {
			dangling = append(dangling, c)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, c := range dangling {
		pendingID := c.PendingSeq
		if _, err := m.repo.UpdateMessageStatus(ctx, c, pendingID, entity.StatusFailed, "", entity.ErrorCodeInterrupted); err != nil {
			return err
		}
		m.events.TurnFailed(c.ID, pendingID, entity.ErrorCodeInterrupted)
		m.logger.Warn("recovered interrupted turn", "conversation_id", c.ID, "message_id", pendingID)
	}
	return nil
}

// Wait blocks until all in-flight inference goroutines have resolved.
// Used by shutdown so the final snapshot reflects terminal turn states.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func errorCode(err error) string {
	if errors.Is(err, inference.ErrMalformedResponse) {
		return entity.ErrorCodeMalformed
	}
	return entity.ErrorCodeUnavailable
}

func deriveTitle(text string) string {
	t := strings.Join(strings.Fields(text), " ")
	if r := []rune(t); len(r) > maxDerivedTitle {
		t = strings.TrimSpace(string(r[:maxDerivedTitle]))
	}
	return t
}
