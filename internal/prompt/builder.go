// Package prompt assembles bounded-size inference requests from a
// conversation's message history.
package prompt

import (
	"context"

	"github.com/coachvault/coachd/internal/entity"
	"github.com/coachvault/coachd/internal/repo"
)

// Message is one history entry in the assembled prompt.
type Message struct {
	Role    entity.Role
	Content string
}

// Prompt is the request shape handed to the inference gateway: a fixed
// system preamble plus the trimmed history in ascending id order.
type Prompt struct {
	System   string
	Messages []Message
}

// Builder reads message history through the repository layer and trims it
// to a character budget.
type Builder struct {
	repo   *repo.Repo
	budget int // max total characters of included message content; 0 = unlimited
}

func NewBuilder(r *repo.Repo, budget int) *Builder {
	return &Builder{repo: r, budget: budget}
}

// Build assembles the prompt for a conversation. Only resolved messages
// are conversational content; pending and failed turns are skipped.
// Trimming is newest-first: walking back from the most recent resolved
// message, messages are included while the budget holds, so the oldest
// part of the history is dropped first. Given the same history and budget
// the result is identical every time.
func (b *Builder) Build(ctx context.Context, caller entity.Identity, conversationID string) (Prompt, error) {
	history, err := b.repo.ListMessages(ctx, caller, conversationID)
	if err != nil {
		return Prompt{}, err
	}

	var included []Message
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Status != entity.StatusResolved {
			continue
		}
		if b.budget > 0 && used+len(m.Content) > b.budget {
			break
		}
		used += len(m.Content)
		included = append(included, Message{Role: m.Role, Content: m.Content})
	}

	// Collected newest-first; restore ascending order.
	out := Prompt{System: Preamble, Messages: make([]Message, 0, len(included))}
	for i := len(included) - 1; i >= 0; i-- {
		out.Messages = append(out.Messages, included[i])
	}
	return out, nil
}
