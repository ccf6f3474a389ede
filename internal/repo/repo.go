// Package repo is the typed access layer over the entity store for
// conversations and messages. It is the sole access-control boundary:
// every operation that targets a conversation first verifies the caller
// identity against the conversation's owner.
package repo

import (
	"context"
	"errors"

	"github.com/coachvault/coachd/internal/entity"
	"github.com/coachvault/coachd/internal/store"
)

var (
	// ErrNotFound means the conversation or message id is unknown.
	ErrNotFound = errors.New("repo: not found")
	// ErrForbidden means the caller identity does not own the conversation.
	ErrForbidden = errors.New("repo: forbidden")
	// ErrConflict means a lifecycle invariant would be violated, e.g. a
	// second status transition on an already terminal message.
	ErrConflict = errors.New("repo: conflict")
)

type Repo struct {
	store store.EntityStore
}

func New(s store.EntityStore) *Repo {
	return &Repo{store: s}
}

// Conversation loads a conversation by id after verifying the caller owns
// it. An unknown id is ErrNotFound; a known id owned by someone else is
// ErrForbidden, for reads as well as writes.
func (r *Repo) Conversation(ctx context.Context, caller entity.Identity, id string) (*entity.Conversation, error) {
	ownerRaw, ok, err := r.store.Get(ctx, entity.ConversationOwnerKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	owner := entity.Identity(ownerRaw)
	if caller != owner && caller != entity.SystemIdentity {
		return nil, ErrForbidden
	}

	raw, ok, err := r.store.Get(ctx, entity.ConversationKey(owner, id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return entity.DecodeConversation(raw)
}

// PutConversation persists the conversation record and its owner index.
func (r *Repo) PutConversation(ctx context.Context, c *entity.Conversation) error {
	raw, err := entity.EncodeConversation(c)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, entity.ConversationKey(c.Owner, c.ID), raw); err != nil {
		return err
	}
	return r.store.Put(ctx, entity.ConversationOwnerKey(c.ID), []byte(c.Owner))
}
