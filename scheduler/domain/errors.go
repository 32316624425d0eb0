package domain

import "errors"

var (
	// ErrMessageNotFound signals a lookup miss for single-record queries.
	ErrMessageNotFound = errors.New("scheduled message not found")

	// ErrIdempotencyConflict surfaces a unique-key collision on create.
	ErrIdempotencyConflict = errors.New("idempotency key already exists")

	// ErrAmbiguousPrefix means a short id matched more than one record.
	ErrAmbiguousPrefix = errors.New("cancel id is ambiguous; please paste the full ID")

	// ErrCancelSent guards the terminal SENT state against cancellation.
	ErrCancelSent = errors.New("cannot cancel a sent message")

	// ErrSendAtPast rejects scheduling at or before the current instant.
	ErrSendAtPast = errors.New("send_at must be in the future")

	// ErrSendAtMissing rejects a zero send instant.
	ErrSendAtMissing = errors.New("send_at is required")
)
