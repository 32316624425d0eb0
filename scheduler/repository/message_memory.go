package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yedidyatob/WhatsAppAssistant/scheduler/domain"
)

// ScheduledMessageMemoryRepository is a mutex-guarded in-memory store with
// the same locking semantics as the gorm repository. Used by tests and as a
// throwaway backend for local experiments.
type ScheduledMessageMemoryRepository struct {
	mu       sync.Mutex
	messages map[uuid.UUID]domain.ScheduledMessage
}

var _ domain.IScheduledMessageRepository = (*ScheduledMessageMemoryRepository)(nil)

func NewScheduledMessageMemoryRepository() *ScheduledMessageMemoryRepository {
	return &ScheduledMessageMemoryRepository{
		messages: make(map[uuid.UUID]domain.ScheduledMessage),
	}
}

func (r *ScheduledMessageMemoryRepository) Create(_ context.Context, msg domain.ScheduledMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.messages {
		if existing.IdempotencyKey == msg.IdempotencyKey {
			return domain.ErrIdempotencyConflict
		}
	}
	r.messages[msg.ID] = msg
	return nil
}

func (r *ScheduledMessageMemoryRepository) GetByID(_ context.Context, id uuid.UUID) (domain.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok {
		return domain.ScheduledMessage{}, domain.ErrMessageNotFound
	}
	return msg, nil
}

func (r *ScheduledMessageMemoryRepository) FindByIdempotencyKey(_ context.Context, key string) (domain.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, msg := range r.messages {
		if msg.IdempotencyKey == key {
			return msg, nil
		}
	}
	return domain.ScheduledMessage{}, domain.ErrMessageNotFound
}

func (r *ScheduledMessageMemoryRepository) FindByIDPrefix(_ context.Context, prefix string, limit int) ([]domain.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix = strings.ToLower(prefix)
	var matches []domain.ScheduledMessage
	for _, msg := range r.messages {
		compact := strings.ReplaceAll(msg.ID.String(), "-", "")
		if strings.HasPrefix(compact, prefix) {
			matches = append(matches, msg)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return clip(matches, limit), nil
}

func (r *ScheduledMessageMemoryRepository) FindByIDPrefixForSender(_ context.Context, prefix, normalizedSender string, limit int) ([]domain.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix = strings.ToLower(prefix)
	var matches []domain.ScheduledMessage
	for _, msg := range r.messages {
		compact := strings.ReplaceAll(msg.ID.String(), "-", "")
		if strings.HasPrefix(compact, prefix) && messageSenderDigits(msg) == normalizedSender {
			matches = append(matches, msg)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return clip(matches, limit), nil
}

func (r *ScheduledMessageMemoryRepository) ListScheduledForSender(_ context.Context, normalizedSender string, limit int) ([]domain.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matches []domain.ScheduledMessage
	for _, msg := range r.messages {
		if msg.Status == domain.StatusScheduled && messageSenderDigits(msg) == normalizedSender {
			matches = append(matches, msg)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].SendAt.Before(matches[j].SendAt)
	})
	return clip(matches, limit), nil
}

func (r *ScheduledMessageMemoryRepository) ListUpcoming(_ context.Context, now time.Time, limit int) ([]domain.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	staleBefore := now.Add(-domain.LeaseTimeout)
	var matches []domain.ScheduledMessage
	for _, msg := range r.messages {
		if msg.SendAt.After(now) {
			continue
		}
		switch msg.Status {
		case domain.StatusScheduled:
			matches = append(matches, msg)
		case domain.StatusLocked:
			if msg.LockedAt == nil || msg.LockedAt.Before(staleBefore) {
				matches = append(matches, msg)
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].SendAt.Before(matches[j].SendAt)
	})
	return clip(matches, limit), nil
}

func (r *ScheduledMessageMemoryRepository) LockForSending(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok {
		return false, nil
	}

	claimable := msg.Status == domain.StatusScheduled ||
		(msg.Status == domain.StatusLocked &&
			(msg.LockedAt == nil || msg.LockedAt.Before(now.Add(-domain.LeaseTimeout))))
	if !claimable {
		return false, nil
	}

	lockedAt := now
	msg.Status = domain.StatusLocked
	msg.LockedAt = &lockedAt
	msg.UpdatedAt = now
	r.messages[id] = msg
	return true, nil
}

func (r *ScheduledMessageMemoryRepository) MarkSent(_ context.Context, id uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok {
		return nil
	}
	sentAt := now
	msg.Status = domain.StatusSent
	msg.SentAt = &sentAt
	msg.UpdatedAt = now
	r.messages[id] = msg
	return nil
}

func (r *ScheduledMessageMemoryRepository) MarkFailed(_ context.Context, id uuid.UUID, sendError string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok {
		return nil
	}
	msg.Status = domain.StatusFailed
	msg.LastError = sendError
	msg.AttemptCount++
	msg.UpdatedAt = now
	r.messages[id] = msg
	return nil
}

func (r *ScheduledMessageMemoryRepository) Cancel(_ context.Context, id uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok || msg.Status == domain.StatusSent {
		return nil
	}
	msg.Status = domain.StatusCancelled
	msg.UpdatedAt = now
	r.messages[id] = msg
	return nil
}

func (r *ScheduledMessageMemoryRepository) SetConfirmationMessageID(_ context.Context, id uuid.UUID, confirmationMessageID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok {
		return nil
	}
	msg.ConfirmationMessageID = confirmationMessageID
	msg.UpdatedAt = now
	r.messages[id] = msg
	return nil
}

func (r *ScheduledMessageMemoryRepository) FindScheduledByConfirmationMessageIDForSender(_ context.Context, confirmationMessageID, normalizedSender string) (domain.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *domain.ScheduledMessage
	for _, msg := range r.messages {
		if msg.ConfirmationMessageID != confirmationMessageID {
			continue
		}
		if msg.Status != domain.StatusScheduled && msg.Status != domain.StatusLocked {
			continue
		}
		if messageSenderDigits(msg) != normalizedSender {
			continue
		}
		candidate := msg
		if best == nil || candidate.CreatedAt.After(best.CreatedAt) {
			best = &candidate
		}
	}
	if best == nil {
		return domain.ScheduledMessage{}, domain.ErrMessageNotFound
	}
	return *best, nil
}

func messageSenderDigits(msg domain.ScheduledMessage) string {
	return senderDigits(msg.FromChatID)
}

func clip(messages []domain.ScheduledMessage, limit int) []domain.ScheduledMessage {
	if limit > 0 && len(messages) > limit {
		return messages[:limit]
	}
	return messages
}
