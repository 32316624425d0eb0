package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	authApp "github.com/yedidyatob/WhatsAppAssistant/auth/application"
	"github.com/yedidyatob/WhatsAppAssistant/pkg/whatsapp"
	schedulerApp "github.com/yedidyatob/WhatsAppAssistant/scheduler/application"
	"github.com/yedidyatob/WhatsAppAssistant/scheduler/domain"
)

const (
	serviceName   = "timed_messages"
	listReplySize = 5
)

// InboundEvent is one normalized gateway webhook message.
type InboundEvent struct {
	MessageID       string
	ChatID          string
	SenderID        string
	Text            string
	QuotedText      string
	QuotedMessageID string
	ContactName     string
	ContactPhone    []string
	Timestamp       time.Time
	IsGroup         bool
	Raw             map[string]any
}

// Settings is the runtime config surface the event router needs on top of
// what the auth service already consumes.
type Settings interface {
	SchedulingGroup() string
	SetSchedulingGroup(groupID string) error
	ClearSchedulingGroup() error
	IsSenderApproved(senderID string) bool
	RecordUsage(serviceName string) error
}

// WhatsAppEventService routes inbound messages: auth commands, setup
// commands, the interactive add/list/cancel conversation, and the
// per-sender authorization gates around them.
type WhatsAppEventService struct {
	timed     *schedulerApp.TimedMessageService
	transport domain.ITransport
	auth      *authApp.AuthService
	settings  Settings
	flows     IFlowStore
	tzName    string
}

func NewWhatsAppEventService(
	timed *schedulerApp.TimedMessageService,
	transport domain.ITransport,
	auth *authApp.AuthService,
	settings Settings,
	flows IFlowStore,
	tzName string,
) *WhatsAppEventService {
	if flows == nil {
		flows = NewInMemoryFlowStore(FlowTTL)
	}
	return &WhatsAppEventService{
		timed:     timed,
		transport: transport,
		auth:      auth,
		settings:  settings,
		flows:     flows,
		tzName:    tzName,
	}
}

// HandleInboundEvent returns whether the message was acted on and, when it
// was not (or only partially), a machine-readable reason.
func (s *WhatsAppEventService) HandleInboundEvent(ctx context.Context, ev InboundEvent) (bool, string) {
	text := strings.TrimSpace(ev.Text)
	normalized := strings.ToLower(text)
	assistantMode := s.timed.AssistantMode()

	if strings.HasPrefix(normalized, "!whoami") {
		return s.auth.HandleWhoami(authApp.CommandContext{
			ChatID:    ev.ChatID,
			SenderID:  ev.SenderID,
			MessageID: ev.MessageID,
			Text:      text,
		})
	}

	if strings.HasPrefix(normalized, "!auth") {
		return s.auth.HandleAssistantAuth(authApp.AssistantAuthContext{
			CommandContext: authApp.CommandContext{
				ChatID:    ev.ChatID,
				SenderID:  ev.SenderID,
				MessageID: ev.MessageID,
				Text:      text,
			},
			IsGroup:      ev.IsGroup,
			ContactName:  ev.ContactName,
			ContactPhone: ev.ContactPhone,
			Raw:          ev.Raw,
		})
	}

	if normalized == "!setup timed messages" || normalized == "!stop timed messages" {
		if assistantMode {
			s.sendReply(ctx, ev.ChatID, "ℹ️ Setup commands are not needed in assistant mode.", ev.MessageID)
			return true, ""
		}
		return s.handleSetupCommand(ctx, ev, normalized)
	}

	if assistantMode && !s.settings.IsSenderApproved(ev.SenderID) {
		if !ev.IsGroup {
			s.sendReply(ctx, ev.ChatID, "❌ Unauthorized. Ask the admin for the auth code.", ev.MessageID)
		}
		return false, "unauthorized_sender"
	}

	if !assistantMode {
		allowedGroup := s.settings.SchedulingGroup()
		if allowedGroup == "" || ev.ChatID != allowedGroup {
			return false, "unauthorized_group"
		}
	}

	if flow, ok := s.flows.Get(FlowKey{ChatID: ev.ChatID, SenderID: ev.SenderID}, ev.Timestamp); ok {
		return s.handleFlowStep(ctx, flow, ev, text)
	}

	if text == "" {
		return false, "no_text"
	}

	command := strings.ToLower(strings.Fields(text)[0])
	switch command {
	case "add":
		s.startFlow(ev)
		s.sendReply(ctx, ev.ChatID, "*To Who?*\n(Phone number or contact)", ev.MessageID)
		return true, ""

	case "instructions":
		s.sendReply(ctx, ev.ChatID,
			"Options:\n*add* (interactive scheduling),\n*list* (show scheduled),\n*cancel* (reply 'cancel' to a scheduled message).",
			ev.MessageID)
		return true, ""

	case "cancel":
		return s.handleCancelCommand(ctx, ev, text)

	case "list":
		scheduled, err := s.timed.ListScheduledMessagesForSender(ctx, ev.SenderID, listReplySize)
		if err != nil {
			logrus.WithError(err).Error("[EVENT] Failed listing scheduled messages")
			return false, "list_failed"
		}
		s.sendReply(ctx, ev.ChatID, s.formatListReply(scheduled), ev.MessageID)
		return true, ""
	}

	return false, "not_actionable"
}

func (s *WhatsAppEventService) handleSetupCommand(ctx context.Context, ev InboundEvent, command string) (bool, string) {
	if ok, reason := s.auth.AuthorizeAdminCommand(ev.ChatID, ev.SenderID, ev.MessageID); !ok {
		return false, reason
	}

	if command == "!setup timed messages" {
		if err := s.settings.SetSchedulingGroup(ev.ChatID); err != nil {
			logrus.WithError(err).Error("[EVENT] Failed persisting scheduling group")
			return false, "setup_failed"
		}
		s.sendReply(ctx, ev.ChatID, "✅ Timed messages enabled for this group.", ev.MessageID)
		return true, ""
	}

	if err := s.settings.ClearSchedulingGroup(); err != nil {
		logrus.WithError(err).Error("[EVENT] Failed clearing scheduling group")
		return false, "setup_failed"
	}
	s.sendReply(ctx, ev.ChatID, "✅ Timed messages disabled for this group.", ev.MessageID)
	return true, ""
}

func (s *WhatsAppEventService) startFlow(ev InboundEvent) {
	s.flows.Set(FlowKey{ChatID: ev.ChatID, SenderID: ev.SenderID}, &FlowState{
		Step:      "to",
		RequestID: ev.MessageID,
		SenderID:  ev.SenderID,
		UpdatedAt: ev.Timestamp,
	})
}

func (s *WhatsAppEventService) handleFlowStep(ctx context.Context, flow *FlowState, ev InboundEvent, text string) (bool, string) {
	flow.UpdatedAt = ev.Timestamp

	if strings.EqualFold(text, "cancel") {
		s.flows.Clear(FlowKey{ChatID: ev.ChatID, SenderID: flow.SenderID})
		s.sendReply(ctx, ev.ChatID, "✅ Canceled scheduling.", ev.MessageID)
		return true, ""
	}

	switch flow.Step {
	case "to":
		contactPhone, issue := whatsapp.NormalizeContactPhone(ev.ContactPhone)
		if issue == "multiple_numbers" {
			s.sendReply(ctx, ev.ChatID,
				"❌ Can't send to multiple numbers. Please share one contact with one phone number.",
				ev.MessageID)
			return true, "multiple_recipient_numbers"
		}
		recipient := whatsapp.NormalizeRecipient(text, contactPhone)
		if recipient == "" {
			s.sendReply(ctx, ev.ChatID,
				"❌ Please reply with a phone number (digits, country code) or share a WhatsApp contact.",
				ev.MessageID)
			return true, ""
		}
		flow.ToChatID = recipient
		flow.Step = "when"
		s.sendReply(ctx, ev.ChatID, s.whenPrompt(), ev.MessageID)
		return true, ""

	case "when":
		sendAt, err := whatsapp.ParseSendAt(text, s.tzName, s.timed.Now())
		if err != nil {
			s.sendReply(ctx, ev.ChatID, "❌ Invalid time. "+s.whenPrompt(), ev.MessageID)
			return true, ""
		}
		if !sendAt.After(s.timed.Now()) {
			s.sendReply(ctx, ev.ChatID, "❌ Time must be in the future. "+s.whenPrompt(), ev.MessageID)
			return true, ""
		}
		if err := s.timed.ValidateAssistantScheduleWindow(sendAt, s.timed.Now()); err != nil {
			s.sendReply(ctx, ev.ChatID, "❌ "+err.Error(), ev.MessageID)
			return true, err.Error()
		}
		flow.SendAt = sendAt
		flow.Step = "text"
		s.sendReply(ctx, ev.ChatID, "*What should I say?*", ev.MessageID)
		return true, ""

	case "text":
		if text == "" {
			s.sendReply(ctx, ev.ChatID, "❌ Message text can't be empty. *What should I say?*", ev.MessageID)
			return true, ""
		}
		scheduled, err := s.timed.ScheduleMessage(ctx, schedulerApp.ScheduleRequest{
			ChatID:         flow.ToChatID,
			FromChatID:     flow.SenderID,
			Text:           text,
			SendAt:         flow.SendAt,
			IdempotencyKey: flow.RequestID,
			Source:         "whatsapp",
			Reason:         "whatsapp:" + flow.RequestID,
		})
		if err != nil {
			// a slow conversation can outlive its chosen instant
			if errors.Is(err, domain.ErrSendAtPast) {
				flow.Step = "when"
				s.sendReply(ctx, ev.ChatID, "❌ Time must be in the future. "+s.whenPrompt(), ev.MessageID)
				return true, err.Error()
			}
			s.sendReply(ctx, ev.ChatID, "❌ "+err.Error(), ev.MessageID)
			return true, err.Error()
		}

		reply := whatsapp.FormatScheduleReply(scheduled.ID.String(), flow.ToChatID, flow.SendAt, s.tzName)
		confirmationID := s.sendReply(ctx, ev.ChatID, reply, ev.MessageID)
		if confirmationID != "" {
			if err := s.timed.SetConfirmationMessageID(ctx, scheduled.ID, confirmationID); err != nil {
				logrus.WithError(err).Error("[EVENT] Failed storing confirmation message id")
			}
		}
		s.flows.Clear(FlowKey{ChatID: ev.ChatID, SenderID: flow.SenderID})
		if err := s.settings.RecordUsage(serviceName); err != nil {
			logrus.WithError(err).Debug("[EVENT] Failed recording usage")
		}
		return true, ""
	}

	return false, "not_actionable"
}

func (s *WhatsAppEventService) handleCancelCommand(ctx context.Context, ev InboundEvent, text string) (bool, string) {
	msgID, err := s.resolveCancelID(ctx, ev, text)
	if err != nil {
		s.sendReply(ctx, ev.ChatID, "❌ "+err.Error(), ev.MessageID)
		return false, err.Error()
	}
	if msgID == uuid.Nil {
		s.sendReply(ctx, ev.ChatID, "❌ invalid cancel id", ev.MessageID)
		return false, "invalid_cancel_id"
	}

	if err := s.timed.CancelMessage(ctx, msgID); err != nil {
		s.sendReply(ctx, ev.ChatID, "❌ "+err.Error(), ev.MessageID)
		return false, err.Error()
	}

	s.sendReply(ctx, ev.ChatID, "✅ Cancelled\nID: "+msgID.String(), ev.MessageID)
	return true, ""
}

// resolveCancelID finds the target of a cancel command: a pasted 12-hex
// handle in the message or quoted text first, the quoted confirmation
// message second.
func (s *WhatsAppEventService) resolveCancelID(ctx context.Context, ev InboundEvent, text string) (uuid.UUID, error) {
	prefix := whatsapp.ExtractIDPrefix(text)
	if prefix == "" {
		prefix = whatsapp.ExtractIDPrefix(ev.QuotedText)
	}
	if prefix != "" {
		match, err := s.timed.FindByIDPrefixForSender(ctx, prefix, ev.SenderID)
		if errors.Is(err, domain.ErrMessageNotFound) {
			return uuid.Nil, errors.New("could not find one of your scheduled messages with that ID")
		}
		if err != nil {
			return uuid.Nil, err
		}
		return match.ID, nil
	}

	if ev.QuotedMessageID != "" {
		match, err := s.timed.FindScheduledByConfirmationMessageIDForSender(ctx, ev.QuotedMessageID, ev.SenderID)
		if err == nil {
			return match.ID, nil
		}
		if !errors.Is(err, domain.ErrMessageNotFound) {
			return uuid.Nil, err
		}
	}

	return uuid.Nil, nil
}

func (s *WhatsAppEventService) whenPrompt() string {
	tzName := s.tzName
	if tzName == "" {
		tzName = "UTC"
	}
	return whatsapp.FormatWhenPrompt(tzName)
}

func (s *WhatsAppEventService) formatListReply(messages []domain.ScheduledMessage) string {
	entries := make([]whatsapp.ListEntry, 0, len(messages))
	for _, msg := range messages {
		entries = append(entries, whatsapp.ListEntry{
			ShortID: msg.ShortID(),
			SendAt:  msg.SendAt,
			Text:    msg.Text,
		})
	}
	return whatsapp.FormatListReply(entries, s.tzName)
}

// sendReply is best effort: a dead gateway must not fail event handling.
func (s *WhatsAppEventService) sendReply(ctx context.Context, chatID, text, quotedMessageID string) string {
	id, err := s.transport.SendMessage(ctx, domain.SendRequest{
		ChatID:          chatID,
		Text:            text,
		QuotedMessageID: quotedMessageID,
	})
	if err != nil {
		logrus.WithError(err).Warn("[EVENT] Failed sending reply")
		return ""
	}
	return id
}
