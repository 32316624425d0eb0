package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// IScheduledMessageRepository persists scheduled messages. Implementations
// must make LockForSending atomic: exactly one of N concurrent callers wins.
type IScheduledMessageRepository interface {
	Create(ctx context.Context, msg ScheduledMessage) error
	GetByID(ctx context.Context, id uuid.UUID) (ScheduledMessage, error)
	FindByIdempotencyKey(ctx context.Context, key string) (ScheduledMessage, error)

	// FindByIDPrefix matches the dash-stripped hex form of the id against
	// prefix across all senders.
	FindByIDPrefix(ctx context.Context, prefix string, limit int) ([]ScheduledMessage, error)

	// FindByIDPrefixForSender matches the dash-stripped hex form of the id
	// against prefix, restricted to records created by normalizedSender.
	FindByIDPrefixForSender(ctx context.Context, prefix, normalizedSender string, limit int) ([]ScheduledMessage, error)

	// ListScheduledForSender returns SCHEDULED records of normalizedSender
	// ordered by send_at ascending.
	ListScheduledForSender(ctx context.Context, normalizedSender string, limit int) ([]ScheduledMessage, error)

	// ListUpcoming returns due work: SCHEDULED rows past their send_at plus
	// LOCKED rows whose lease expired, ordered by send_at ascending.
	ListUpcoming(ctx context.Context, now time.Time, limit int) ([]ScheduledMessage, error)

	// LockForSending atomically claims a due record. It returns true only
	// when this caller performed the SCHEDULED/stale-LOCKED -> LOCKED
	// transition.
	LockForSending(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	MarkSent(ctx context.Context, id uuid.UUID, now time.Time) error

	// MarkFailed records the error and increments attempt_count.
	MarkFailed(ctx context.Context, id uuid.UUID, sendError string, now time.Time) error

	// Cancel is a no-op on SENT records; callers enforce the user-facing
	// guard by loading first.
	Cancel(ctx context.Context, id uuid.UUID, now time.Time) error

	SetConfirmationMessageID(ctx context.Context, id uuid.UUID, confirmationMessageID string, now time.Time) error

	// FindScheduledByConfirmationMessageIDForSender resolves a reply-to-
	// confirmation cancel. Only SCHEDULED and LOCKED records match.
	FindScheduledByConfirmationMessageIDForSender(ctx context.Context, confirmationMessageID, normalizedSender string) (ScheduledMessage, error)
}
