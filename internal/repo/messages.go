package repo

import (
	"context"
	"time"

	"github.com/coachvault/coachd/internal/entity"
)

const defaultPageLimit = 50

// AppendMessage assigns the next message id from the conversation's serial
// counter, persists the message and advances the conversation's UpdatedAt.
// The caller must hold the conversation's turn lock: the counter update is
// a read-modify-write and serializing it per conversation is what keeps
// ids strictly increasing under back-to-back turns.
func (r *Repo) AppendMessage(ctx context.Context, c *entity.Conversation, role entity.Role, content string, status entity.Status) (*entity.Message, error) {
	now := time.Now().UTC()
	m := &entity.Message{
		ID:             c.NextSeq,
		ConversationID: c.ID,
		Role:           role,
		Content:        content,
		Status:         status,
		CreatedAt:      now,
	}
	raw, err := entity.EncodeMessage(m)
	if err != nil {
		return nil, err
	}
	if err := r.store.Put(ctx, entity.MessageKey(c.ID, m.ID), raw); err != nil {
		return nil, err
	}

	c.NextSeq++
	c.UpdatedAt = now
	if err := r.PutConversation(ctx, c); err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage loads one message after verifying conversation ownership.
func (r *Repo) GetMessage(ctx context.Context, caller entity.Identity, conversationID string, id uint64) (*entity.Message, error) {
	c, err := r.Conversation(ctx, caller, conversationID)
	if err != nil {
		return nil, err
	}
	return r.message(ctx, c.ID, id)
}

// ListMessages returns the full history of a conversation in ascending id
// order.
func (r *Repo) ListMessages(ctx context.Context, caller entity.Identity, conversationID string) ([]*entity.Message, error) {
	c, err := r.Conversation(ctx, caller, conversationID)
	if err != nil {
		return nil, err
	}
	out := []*entity.Message{}
	err = r.store.ScanPrefix(ctx, entity.MessagePrefix(c.ID), func(_ string, value []byte) error {
		m, err := entity.DecodeMessage(value)
		if err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListMessagesPage returns up to limit messages newest-first, strictly
// older than cursor; cursor zero starts from the latest message. This is
// the scroll-back shape chat clients page with.
func (r *Repo) ListMessagesPage(ctx context.Context, caller entity.Identity, conversationID string, cursor uint64, limit int) ([]*entity.Message, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	all, err := r.ListMessages(ctx, caller, conversationID)
	if err != nil {
		return nil, err
	}

	out := []*entity.Message{}
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if cursor > 0 && all[i].ID >= cursor {
			continue
		}
		out = append(out, all[i])
	}
	return out, nil
}

// UpdateMessageStatus transitions a pending message to resolved or failed.
// The transition happens exactly once: a message already terminal returns
// ErrConflict. The conversation's pending marker is cleared and UpdatedAt
// advanced. The caller must hold the conversation's turn lock and have
// authorized the conversation.
func (r *Repo) UpdateMessageStatus(ctx context.Context, c *entity.Conversation, id uint64, status entity.Status, content, errorCode string) (*entity.Message, error) {
	m, err := r.message(ctx, c.ID, id)
	if err != nil {
		return nil, err
	}
	if m.Status != entity.StatusPending {
		return nil, ErrConflict
	}

	m.Status = status
	m.Content = content
	m.ErrorCode = errorCode
	raw, err := entity.EncodeMessage(m)
	if err != nil {
		return nil, err
	}
	if err := r.store.Put(ctx, entity.MessageKey(c.ID, m.ID), raw); err != nil {
		return nil, err
	}

	if c.PendingSeq == id {
		c.PendingSeq = 0
	}
	c.UpdatedAt = time.Now().UTC()
	if err := r.PutConversation(ctx, c); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Repo) message(ctx context.Context, conversationID string, id uint64) (*entity.Message, error) {
	raw, ok, err := r.store.Get(ctx, entity.MessageKey(conversationID, id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return entity.DecodeMessage(raw)
}
