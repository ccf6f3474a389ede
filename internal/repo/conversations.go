package repo

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/coachvault/coachd/internal/entity"
)

// CreateConversation allocates a new conversation owned by the caller.
// Message ids start at 1, matching the serial counters the store layout
// was migrated from.
func (r *Repo) CreateConversation(ctx context.Context, owner entity.Identity, title string) (*entity.Conversation, error) {
	now := time.Now().UTC()
	c := &entity.Conversation{
		ID:        uuid.NewString(),
		Owner:     owner,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		NextSeq:   1,
	}
	if err := r.PutConversation(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListConversations returns every conversation of the owner ordered by
// UpdatedAt descending. An owner with no conversations gets an empty
// slice, not an error.
func (r *Repo) ListConversations(ctx context.Context, owner entity.Identity) ([]*entity.Conversation, error) {
	out := []*entity.Conversation{}
	err := r.store.ScanPrefix(ctx, entity.ConversationPrefix(owner), func(_ string, value []byte) error {
		c, err := entity.DecodeConversation(value)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// AllConversations walks every conversation of every owner, for startup
// recovery. Not exposed at the API boundary.
func (r *Repo) AllConversations(ctx context.Context, fn func(*entity.Conversation) error) error {
	return r.store.ScanPrefix(ctx, entity.ConversationScanPrefix(), func(_ string, value []byte) error {
		c, err := entity.DecodeConversation(value)
		if err != nil {
			return err
		}
		return fn(c)
	})
}

// DeleteConversation removes the conversation and cascades to all of its
// messages; a message never outlives its conversation.
func (r *Repo) DeleteConversation(ctx context.Context, caller entity.Identity, id string) error {
	c, err := r.Conversation(ctx, caller, id)
	if err != nil {
		return err
	}

	var msgKeys []string
	err = r.store.ScanPrefix(ctx, entity.MessagePrefix(c.ID), func(key string, _ []byte) error {
		msgKeys = append(msgKeys, key)
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range msgKeys {
		if err := r.store.Delete(ctx, k); err != nil {
			return err
		}
	}

	if err := r.store.Delete(ctx, entity.ConversationKey(c.Owner, c.ID)); err != nil {
		return err
	}
	return r.store.Delete(ctx, entity.ConversationOwnerKey(c.ID))
}
