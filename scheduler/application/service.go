package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yedidyatob/WhatsAppAssistant/pkg/whatsapp"
	"github.com/yedidyatob/WhatsAppAssistant/scheduler/domain"
)

const prefixLookupLimit = 2

// ScheduleRequest carries everything needed to persist a timed message.
type ScheduleRequest struct {
	ChatID         string
	FromChatID     string
	Text           string
	SendAt         time.Time
	IdempotencyKey string
	Source         string
	Reason         string
}

// TimedMessageService owns the scheduled-message lifecycle: validation,
// idempotent creation, cancellation, and lock-then-send dispatch.
type TimedMessageService struct {
	repo            domain.IScheduledMessageRepository
	clock           domain.Clock
	assistantMode   bool
	assistantWindow time.Duration
}

type ServiceOption func(*TimedMessageService)

func WithClock(clock domain.Clock) ServiceOption {
	return func(s *TimedMessageService) {
		s.clock = clock
	}
}

// WithAssistantMode reroutes deliveries to the scheduling owner and bounds
// how far ahead messages may be scheduled.
func WithAssistantMode(enabled bool, window time.Duration) ServiceOption {
	return func(s *TimedMessageService) {
		s.assistantMode = enabled
		if window > 0 {
			s.assistantWindow = window
		}
	}
}

func NewTimedMessageService(repo domain.IScheduledMessageRepository, opts ...ServiceOption) *TimedMessageService {
	s := &TimedMessageService{
		repo:            repo,
		clock:           func() time.Time { return time.Now().UTC() },
		assistantWindow: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now exposes the service clock so collaborators share one time source.
func (s *TimedMessageService) Now() time.Time {
	return s.clock()
}

func (s *TimedMessageService) AssistantMode() bool {
	return s.assistantMode
}

// ScheduleMessage validates and persists a new message. A resubmit with a
// known idempotency key returns the already stored record unchanged.
func (s *TimedMessageService) ScheduleMessage(ctx context.Context, req ScheduleRequest) (domain.ScheduledMessage, error) {
	now := s.clock()

	if req.SendAt.IsZero() {
		return domain.ScheduledMessage{}, domain.ErrSendAtMissing
	}
	if !req.SendAt.After(now) {
		return domain.ScheduledMessage{}, domain.ErrSendAtPast
	}
	if s.assistantMode && req.FromChatID == "" {
		return domain.ScheduledMessage{}, errors.New("from_chat_id required in assistant mode")
	}

	existing, err := s.repo.FindByIdempotencyKey(ctx, req.IdempotencyKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrMessageNotFound) {
		return domain.ScheduledMessage{}, err
	}

	msg := domain.ScheduledMessage{
		ID:             uuid.New(),
		ChatID:         req.ChatID,
		FromChatID:     req.FromChatID,
		Text:           req.Text,
		SendAt:         req.SendAt.UTC(),
		Status:         domain.StatusScheduled,
		IdempotencyKey: req.IdempotencyKey,
		Source:         req.Source,
		Reason:         req.Reason,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		// lost a race against a concurrent resubmit; the stored record wins
		if errors.Is(err, domain.ErrIdempotencyConflict) {
			return s.repo.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		}
		return domain.ScheduledMessage{}, err
	}
	return msg, nil
}

// ValidateAssistantScheduleWindow rejects instants beyond the assistant-mode
// horizon. A no-op when assistant mode is off.
func (s *TimedMessageService) ValidateAssistantScheduleWindow(sendAt time.Time, now time.Time) error {
	if !s.assistantMode {
		return nil
	}
	if now.IsZero() {
		now = s.clock()
	}
	if sendAt.Sub(now) <= s.assistantWindow {
		return nil
	}
	hours := int(s.assistantWindow.Hours())
	return fmt.Errorf("Free version limit: I can only schedule within %d hours in assistant mode. "+
		"Long-range scheduling uses paid Meta messaging, and I'm working for free :/", hours)
}

// CancelMessage moves a message to CANCELLED. SENT is terminal and errors,
// cancelling twice is a no-op, unknown ids are ignored.
func (s *TimedMessageService) CancelMessage(ctx context.Context, id uuid.UUID) error {
	msg, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrMessageNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if msg.Status == domain.StatusSent {
		return domain.ErrCancelSent
	}
	if msg.Status == domain.StatusCancelled {
		return nil
	}
	return s.repo.Cancel(ctx, id, s.clock())
}

func (s *TimedMessageService) GetMessage(ctx context.Context, id uuid.UUID) (domain.ScheduledMessage, error) {
	return s.repo.GetByID(ctx, id)
}

// FindByIDPrefix resolves a pasted 12-hex handle regardless of who created
// the record. Two matches within the lookup limit make the prefix ambiguous.
func (s *TimedMessageService) FindByIDPrefix(ctx context.Context, prefix string) (domain.ScheduledMessage, error) {
	matches, err := s.repo.FindByIDPrefix(ctx, prefix, prefixLookupLimit)
	if err != nil {
		return domain.ScheduledMessage{}, err
	}
	if len(matches) == 0 {
		return domain.ScheduledMessage{}, domain.ErrMessageNotFound
	}
	if len(matches) > 1 {
		return domain.ScheduledMessage{}, domain.ErrAmbiguousPrefix
	}
	return matches[0], nil
}

// FindByIDPrefixForSender resolves a pasted 12-hex handle for one sender.
// Two matches within the lookup limit make the prefix ambiguous.
func (s *TimedMessageService) FindByIDPrefixForSender(ctx context.Context, prefix, senderID string) (domain.ScheduledMessage, error) {
	normalized := whatsapp.NormalizeSenderID(senderID)
	if normalized == "" {
		return domain.ScheduledMessage{}, domain.ErrMessageNotFound
	}
	matches, err := s.repo.FindByIDPrefixForSender(ctx, prefix, normalized, prefixLookupLimit)
	if err != nil {
		return domain.ScheduledMessage{}, err
	}
	if len(matches) == 0 {
		return domain.ScheduledMessage{}, domain.ErrMessageNotFound
	}
	if len(matches) > 1 {
		return domain.ScheduledMessage{}, domain.ErrAmbiguousPrefix
	}
	return matches[0], nil
}

func (s *TimedMessageService) ListDueMessages(ctx context.Context, limit int) ([]domain.ScheduledMessage, error) {
	return s.repo.ListUpcoming(ctx, s.clock(), limit)
}

func (s *TimedMessageService) ListScheduledMessagesForSender(ctx context.Context, senderID string, limit int) ([]domain.ScheduledMessage, error) {
	normalized := whatsapp.NormalizeSenderID(senderID)
	if normalized == "" {
		return nil, nil
	}
	return s.repo.ListScheduledForSender(ctx, normalized, limit)
}

func (s *TimedMessageService) SetConfirmationMessageID(ctx context.Context, id uuid.UUID, confirmationMessageID string) error {
	if confirmationMessageID == "" {
		return nil
	}
	return s.repo.SetConfirmationMessageID(ctx, id, confirmationMessageID, s.clock())
}

func (s *TimedMessageService) FindScheduledByConfirmationMessageIDForSender(ctx context.Context, confirmationMessageID, senderID string) (domain.ScheduledMessage, error) {
	normalized := whatsapp.NormalizeSenderID(senderID)
	if normalized == "" || confirmationMessageID == "" {
		return domain.ScheduledMessage{}, domain.ErrMessageNotFound
	}
	return s.repo.FindScheduledByConfirmationMessageIDForSender(ctx, confirmationMessageID, normalized)
}

// SendMessageIfDue claims and delivers one message. Missing, terminal, or
// not-yet-due records are silent no-ops; losing the lock race is too. A
// transport failure marks the record FAILED and returns the error.
func (s *TimedMessageService) SendMessageIfDue(ctx context.Context, id uuid.UUID, transport domain.ITransport, quotedMessageID string) error {
	now := s.clock()

	msg, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrMessageNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	switch msg.Status {
	case domain.StatusCancelled, domain.StatusSent, domain.StatusFailed:
		return nil
	}
	if !msg.IsDue(now) {
		return nil
	}

	locked, err := s.repo.LockForSending(ctx, id, now)
	if err != nil {
		return err
	}
	if !locked {
		return nil
	}

	chatID := msg.ChatID
	text := msg.Text
	if s.assistantMode {
		if msg.FromChatID == "" {
			sendErr := errors.New("from_chat_id is required in assistant mode")
			if markErr := s.repo.MarkFailed(ctx, id, sendErr.Error(), now); markErr != nil {
				return markErr
			}
			return sendErr
		}
		chatID = msg.FromChatID
		text = whatsapp.FormatAssistantDelivery(msg.ChatID, msg.Text)
	}

	_, sendErr := transport.SendMessage(ctx, domain.SendRequest{
		ChatID:          chatID,
		Text:            text,
		QuotedMessageID: quotedMessageID,
		MessageID:       msg.ID.String(),
	})
	if sendErr != nil {
		if markErr := s.repo.MarkFailed(ctx, id, sendErr.Error(), now); markErr != nil {
			return markErr
		}
		return sendErr
	}

	return s.repo.MarkSent(ctx, id, now)
}
