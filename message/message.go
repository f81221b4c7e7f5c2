// Package message defines the addressed messages exchanged between the
// coordinator and its workers.
//
// Payloads form a closed set: NewTask and Direct are the only variants, and
// receivers switch on the concrete type.
package message

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind is the type tag carried on the wire.
type Kind string

const (
	KindNewTask Kind = "new_task"
	KindDirect  Kind = "direct"
)

// Payload is implemented only by the variants in this package.
type Payload interface {
	Kind() Kind
	sealed()
}

// NewTask notifies a worker that it has been assigned to a task.
type NewTask struct {
	TaskID         string     `json:"task_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	RequiredSkills []string   `json:"required_skills"`
	Priority       int        `json:"priority"`
	Deadline       *time.Time `json:"deadline,omitempty"`
	Strategy       string     `json:"strategy"`
	// Reassigned is set when the notification comes from a redistribution.
	Reassigned bool `json:"reassigned,omitempty"`
}

func (NewTask) Kind() Kind { return KindNewTask }
func (NewTask) sealed()    {}

// Direct is a free-form message between participants.
type Direct struct {
	Subject string         `json:"subject"`
	Body    map[string]any `json:"body,omitempty"`
}

func (Direct) Kind() Kind { return KindDirect }
func (Direct) sealed()    {}

// Message is an addressed envelope. Priority, RequiresResponse and
// ResponseDeadline are advisory for the receiver; the router ignores them.
type Message struct {
	ID               string     `json:"id"`
	Sender           string     `json:"sender"`
	Recipient        string     `json:"recipient"`
	Payload          Payload    `json:"payload"`
	Priority         int        `json:"priority"`
	RequiresResponse bool       `json:"requires_response"`
	ResponseDeadline *time.Time `json:"response_deadline,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Option customizes a Message built by New.
type Option func(*Message)

// WithPriority sets the advisory priority.
func WithPriority(priority int) Option {
	return func(m *Message) { m.Priority = priority }
}

// WithResponse marks the message as expecting an answer, optionally by deadline.
func WithResponse(deadline *time.Time) Option {
	return func(m *Message) {
		m.RequiresResponse = true
		m.ResponseDeadline = deadline
	}
}

// New builds a message with a fresh id. The default priority is 1.
func New(sender, recipient string, payload Payload, opts ...Option) Message {
	m := Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Recipient: recipient,
		Payload:   payload,
		Priority:  1,
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Kind returns the payload's type tag, or "" for an empty envelope.
func (m Message) Kind() Kind {
	if m.Payload == nil {
		return ""
	}
	return m.Payload.Kind()
}

// MarshalJSON adds the "type" tag next to the payload.
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	return json.Marshal(struct {
		plain
		Type Kind `json:"type"`
	}{plain: plain(m), Type: m.Kind()})
}
