package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageStatus is the lifecycle state of a scheduled message.
//
//	SCHEDULED -> LOCKED -> SENT | FAILED
//	SCHEDULED -> CANCELLED
//
// SENT and CANCELLED are terminal. A LOCKED row whose lease is older than
// LeaseTimeout is claimable again, so delivery is at-least-once.
type MessageStatus string

const (
	StatusScheduled MessageStatus = "SCHEDULED"
	StatusLocked    MessageStatus = "LOCKED"
	StatusSent      MessageStatus = "SENT"
	StatusCancelled MessageStatus = "CANCELLED"
	StatusFailed    MessageStatus = "FAILED"
)

// LeaseTimeout is how long a LOCKED row stays invisible to other workers.
const LeaseTimeout = 300 * time.Second

// ScheduledMessage is a single timed delivery.
type ScheduledMessage struct {
	ID                    uuid.UUID
	ChatID                string
	FromChatID            string
	Text                  string
	SendAt                time.Time
	Status                MessageStatus
	LockedAt              *time.Time
	SentAt                *time.Time
	AttemptCount          int
	LastError             string
	IdempotencyKey        string
	ConfirmationMessageID string
	Source                string
	Reason                string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ShortID is the 12-hex handle surfaced in confirmations and list replies.
func (m ScheduledMessage) ShortID() string {
	return strings.ReplaceAll(m.ID.String(), "-", "")[:12]
}

// IsTerminal reports whether the message can never be dispatched again.
func (m ScheduledMessage) IsTerminal() bool {
	return m.Status == StatusSent || m.Status == StatusCancelled
}

// IsDue reports whether the message should be delivered at now.
func (m ScheduledMessage) IsDue(now time.Time) bool {
	return !m.SendAt.After(now)
}

// Clock supplies the current instant, injected so tests can freeze time.
type Clock func() time.Time
