package contracts

import (
	"time"

	"github.com/google/uuid"
)

// BaseMessage carries the fields every Message implementation shares.
type BaseMessage struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Type          string    `json:"type"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

// NewBaseMessage stamps a fresh ID and timestamp for messageType.
func NewBaseMessage(messageType string) BaseMessage {
	return BaseMessage{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      messageType,
	}
}

func (m BaseMessage) GetID() string             { return m.ID }
func (m BaseMessage) GetTimestamp() time.Time   { return m.Timestamp }
func (m BaseMessage) GetType() string           { return m.Type }
func (m BaseMessage) GetCorrelationID() string  { return m.CorrelationID }
func (m *BaseMessage) SetCorrelationID(id string) { m.CorrelationID = id }

// BaseCommand implements Command.
type BaseCommand struct {
	BaseMessage
	TargetService string `json:"targetService"`
	ReplyTo       string `json:"replyTo,omitempty"`
}

func (c BaseCommand) GetTargetService() string { return c.TargetService }

// NewBaseCommand stamps a fresh command envelope.
func NewBaseCommand(messageType, targetService string) BaseCommand {
	return BaseCommand{BaseMessage: NewBaseMessage(messageType), TargetService: targetService}
}

// BaseEvent implements Event.
type BaseEvent struct {
	BaseMessage
	AggregateID string `json:"aggregateId"`
	Sequence    int64  `json:"sequence"`
	Source      string `json:"source,omitempty"`
}

func (e BaseEvent) GetAggregateID() string { return e.AggregateID }
func (e BaseEvent) GetSequence() int64     { return e.Sequence }

// NewBaseEvent stamps a fresh event envelope.
func NewBaseEvent(messageType, aggregateID string, sequence int64) BaseEvent {
	return BaseEvent{BaseMessage: NewBaseMessage(messageType), AggregateID: aggregateID, Sequence: sequence}
}

// BaseQuery implements Query.
type BaseQuery struct {
	BaseMessage
	ReplyTo string `json:"replyTo"`
}

func (q BaseQuery) GetReplyTo() string { return q.ReplyTo }

// BaseReply implements Reply for the success case; ErrorReply overrides
// IsSuccess/GetError for failures.
type BaseReply struct {
	BaseMessage
	Success bool `json:"success"`
}

func (r BaseReply) IsSuccess() bool { return r.Success }
func (r BaseReply) GetError() error { return nil }

// NewBaseReply stamps a successful reply correlated to correlationID.
func NewBaseReply(correlationID string) BaseReply {
	reply := BaseReply{BaseMessage: NewBaseMessage("Reply"), Success: true}
	reply.SetCorrelationID(correlationID)
	return reply
}
