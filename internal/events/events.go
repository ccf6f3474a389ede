// Package events publishes turn lifecycle events to NATS so downstream
// consumers (analytics, notification fan-out) can react without polling.
// Publishing is best-effort: a nil Publisher is a no-op and publish
// failures are logged, never surfaced to the caller's turn.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectConversationCreated = "coach.conversation.created"
	SubjectConversationDeleted = "coach.conversation.deleted"
	SubjectTurnResolved        = "coach.turn.resolved"
	SubjectTurnFailed          = "coach.turn.failed"
)

// TurnEvent is emitted when a pending assistant message reaches a
// terminal state.
type TurnEvent struct {
	ConversationID string    `json:"conversation_id"`
	MessageID      uint64    `json:"message_id"`
	ErrorCode      string    `json:"error_code,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// ConversationEvent is emitted on conversation creation and deletion.
type ConversationEvent struct {
	ConversationID string    `json:"conversation_id"`
	Timestamp      time.Time `json:"timestamp"`
}

type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func Connect(url, token string, logger *slog.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Publisher{conn: nc, logger: logger}, nil
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.conn.Close()
}

func (p *Publisher) publish(subject string, data any) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		p.logger.Error("marshal event", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn("publish event", "subject", subject, "error", err)
	}
}

func (p *Publisher) ConversationCreated(conversationID string) {
	p.publish(SubjectConversationCreated, ConversationEvent{
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
	})
}

func (p *Publisher) ConversationDeleted(conversationID string) {
	p.publish(SubjectConversationDeleted, ConversationEvent{
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
	})
}

func (p *Publisher) TurnResolved(conversationID string, messageID uint64) {
	p.publish(SubjectTurnResolved, TurnEvent{
		ConversationID: conversationID,
		MessageID:      messageID,
		Timestamp:      time.Now().UTC(),
	})
}

func (p *Publisher) TurnFailed(conversationID string, messageID uint64, errorCode string) {
	p.publish(SubjectTurnFailed, TurnEvent{
		ConversationID: conversationID,
		MessageID:      messageID,
		ErrorCode:      errorCode,
		Timestamp:      time.Now().UTC(),
	})
}
