package entity

import (
	"fmt"
	"strings"
	"time"
)

// Identity is an opaque, externally verified caller token. It is used only
// as a scoping key and never interpreted or validated here.
type Identity string

// SystemIdentity is the designated maintenance identity. It passes owner
// checks everywhere and is never handed out at the HTTP boundary.
const SystemIdentity Identity = "system"

// Role tags who produced a message. The set is closed so prompt assembly
// can switch over it exhaustively.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status is the lifecycle state of a message. Only assistant messages pass
// through pending; user messages are resolved on creation.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusFailed   Status = "failed"
)

// Error codes attached to failed assistant messages.
const (
	ErrorCodeUnavailable = "inference_unavailable"
	ErrorCodeMalformed   = "inference_malformed"
	ErrorCodeInterrupted = "interrupted"
)

// Conversation is one coaching dialogue thread owned by a single identity.
// NextSeq is the serial counter for message ids; PendingSeq is the id of
// the unresolved assistant message, or zero when no turn is in flight.
type Conversation struct {
	ID         string    `json:"id"`
	Owner      Identity  `json:"owner"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	NextSeq    uint64    `json:"next_seq"`
	PendingSeq uint64    `json:"pending_seq,omitempty"`
}

// Message is one turn within a conversation. IDs are strictly increasing
// within their conversation and never reused.
type Message struct {
	ID             uint64    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Status         Status    `json:"status"`
	ErrorCode      string    `json:"error_code,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Summary is the listing view of a conversation exposed upward.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Conversation) Summary() Summary {
	return Summary{ID: c.ID, Title: c.Title, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}

// Store keys are structured {entityType}:{scope}:{entityId} so prefix scans
// enumerate an owner's conversations or a conversation's messages without a
// secondary index. Message ids are zero-padded to keep lexicographic order
// equal to numeric order.

const (
	keyConversation = "conv"
	keyConvOwner    = "convown"
	keyMessage      = "msg"
)

func ConversationKey(owner Identity, id string) string {
	return fmt.Sprintf("%s:%s:%s", keyConversation, owner, id)
}

func ConversationPrefix(owner Identity) string {
	return fmt.Sprintf("%s:%s:", keyConversation, owner)
}

// ConversationScanPrefix covers conversations of every owner, used by
// startup recovery and snapshot inspection.
func ConversationScanPrefix() string {
	return keyConversation + ":"
}

// ConversationOwnerKey indexes conversation id to owner so that access by
// id alone can distinguish "not found" from "wrong identity".
func ConversationOwnerKey(id string) string {
	return keyConvOwner + ":" + id
}

func MessageKey(conversationID string, id uint64) string {
	return fmt.Sprintf("%s:%s:%020d", keyMessage, conversationID, id)
}

func MessagePrefix(conversationID string) string {
	return fmt.Sprintf("%s:%s:", keyMessage, conversationID)
}

// SplitKey returns the entity type and the remainder of a store key.
func SplitKey(key string) (entityType, rest string, ok bool) {
	entityType, rest, ok = strings.Cut(key, ":")
	return
}
