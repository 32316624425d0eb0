package application

import (
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yedidyatob/WhatsAppAssistant/pkg/utils"
	"github.com/yedidyatob/WhatsAppAssistant/pkg/whatsapp"
	"github.com/yedidyatob/WhatsAppAssistant/scheduler/domain"
)

// Settings is the slice of runtime config the auth flows need.
type Settings interface {
	AdminSenderID() string
	SetAdminSenderID(senderID string) error
	AdminSetupCode() (string, error)
	NormalizeSenderID(senderID string) string
	IsSenderApproved(senderID string) bool
	AddApprovedNumber(number string) error
	Instructions() map[string]string
}

// ReplyFunc sends a best-effort reply and returns the gateway message id,
// or "" when sending failed.
type ReplyFunc func(chatID, text, quotedMessageID string) string

// CommandContext identifies one inbound command message.
type CommandContext struct {
	ChatID    string
	SenderID  string
	MessageID string
	Text      string
}

// AssistantAuthContext adds the contact payload needed to introduce the
// requester to the admin.
type AssistantAuthContext struct {
	CommandContext
	IsGroup      bool
	ContactName  string
	ContactPhone []string
	Raw          map[string]any
}

// AuthService implements the two self-service auth commands: !whoami claims
// the admin slot with the setup code, !auth approves additional senders via
// an admin-mediated 6-digit code.
type AuthService struct {
	settings     Settings
	pending      IPendingAuthStore
	generateCode func() string
	sendReply    ReplyFunc
	clock        domain.Clock
}

func NewAuthService(settings Settings, pending IPendingAuthStore, sendReply ReplyFunc, opts ...AuthOption) *AuthService {
	s := &AuthService{
		settings:     settings,
		pending:      pending,
		generateCode: utils.SixDigitCode,
		sendReply:    sendReply,
		clock:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type AuthOption func(*AuthService)

func WithAuthClock(clock domain.Clock) AuthOption {
	return func(s *AuthService) {
		s.clock = clock
	}
}

func WithCodeGenerator(generate func() string) AuthOption {
	return func(s *AuthService) {
		s.generateCode = generate
	}
}

// HandleWhoami processes "!whoami [code]". Once an admin exists the command
// only reports that; until then a correct setup code claims the slot.
func (s *AuthService) HandleWhoami(ctx CommandContext) (bool, string) {
	if s.settings.AdminSenderID() != "" {
		s.sendReply(ctx.ChatID, "✅ Admin already set.", ctx.MessageID)
		return true, ""
	}

	parts := strings.Fields(ctx.Text)
	code := ""
	if len(parts) > 1 {
		code = parts[1]
	}
	setupCode, err := s.settings.AdminSetupCode()
	if err != nil {
		logrus.WithError(err).Error("[AUTH] Failed reading setup code")
		s.sendReply(ctx.ChatID, "❌ Invalid setup code.", ctx.MessageID)
		return false, "invalid_setup_code"
	}
	if code == "" || code != setupCode {
		s.sendReply(ctx.ChatID, "❌ Invalid setup code.", ctx.MessageID)
		return false, "invalid_setup_code"
	}

	if err := s.settings.SetAdminSenderID(ctx.SenderID); err != nil {
		logrus.WithError(err).Error("[AUTH] Failed persisting admin sender id")
		return false, "invalid_setup_code"
	}
	s.sendReply(ctx.ChatID, "✅ Admin set to "+ctx.SenderID+".", ctx.MessageID)
	return true, ""
}

// HandleAssistantAuth processes "!auth" and the follow-up code message.
func (s *AuthService) HandleAssistantAuth(ctx AssistantAuthContext) (bool, string) {
	if ctx.IsGroup {
		s.sendReply(ctx.ChatID, "❌ Please DM me to authenticate.", ctx.MessageID)
		return false, "auth_in_group"
	}

	normalized := s.settings.NormalizeSenderID(ctx.SenderID)
	if s.settings.IsSenderApproved(ctx.SenderID) {
		s.sendReply(ctx.ChatID, "✅ Already approved.", ctx.MessageID)
		return true, ""
	}

	text := strings.TrimSpace(ctx.Text)
	parts := strings.Fields(text)
	isAuthKeyword := strings.HasPrefix(strings.ToLower(text), "!auth")

	if isAuthKeyword && len(parts) == 1 {
		code := s.generateCode()
		s.pending.Set(normalized, code, s.clock())
		logrus.Warnf("[AUTH] Assistant auth code for %s: %s", normalized, code)
		s.notifyAdminAuthRequest(ctx, normalized, code)
		s.sendReply(ctx.ChatID, "✅ Auth code generated. Ask the admin for it, then reply with the 6-digit code.", ctx.MessageID)
		return true, ""
	}

	pending, ok := s.pending.Get(normalized, s.clock())
	if !ok {
		s.sendReply(ctx.ChatID, "❌ No pending auth request. Send !auth to generate a new code.", ctx.MessageID)
		return false, "auth_not_requested"
	}

	code := text
	if isAuthKeyword && len(parts) > 1 {
		code = parts[1]
	}
	if code != pending.Code {
		s.sendReply(ctx.ChatID, "❌ Invalid auth code. Send !auth to generate a new code.", ctx.MessageID)
		return false, "invalid_auth_code"
	}

	if err := s.settings.AddApprovedNumber(normalized); err != nil {
		logrus.WithError(err).Error("[AUTH] Failed persisting approved number")
		return false, "invalid_auth_code"
	}
	s.pending.Clear(normalized)
	s.sendReply(ctx.ChatID, "✅ Approved: "+normalized+".", ctx.MessageID)
	s.sendReply(ctx.ChatID, s.buildWelcomeMessage(), ctx.MessageID)
	return true, ""
}

// AuthorizeAdminCommand gates setup commands behind the configured admin.
func (s *AuthService) AuthorizeAdminCommand(chatID, senderID, messageID string) (bool, string) {
	adminID := s.settings.AdminSenderID()
	if adminID == "" {
		s.sendReply(chatID, "❌ Admin sender ID not configured.", messageID)
		return false, "admin_not_configured"
	}
	if senderID != adminID {
		s.sendReply(chatID, "❌ Unauthorized.", messageID)
		return false, "unauthorized_admin"
	}
	return true, ""
}

func (s *AuthService) notifyAdminAuthRequest(ctx AssistantAuthContext, normalized, code string) {
	adminID := s.settings.AdminSenderID()
	if adminID == "" {
		return
	}
	if normalized != "" && normalized == s.settings.NormalizeSenderID(adminID) {
		return
	}

	name, phone := extractRequesterIdentity(ctx, s.settings.NormalizeSenderID)
	s.sendReply(adminID, whatsapp.FormatAdminAuthRequest(code, ctx.SenderID, ctx.ChatID, normalized, name, phone), "")
}

func (s *AuthService) buildWelcomeMessage() string {
	var lines []string
	for _, instruction := range sortedInstructionValues(s.settings.Instructions()) {
		if trimmed := strings.TrimSpace(instruction); trimmed != "" {
			lines = append(lines, "- "+trimmed)
		}
	}
	if len(lines) == 0 {
		return "🎉 Welcome to the personal assistant bot."
	}
	return "🎉 Welcome to the personal assistant bot.\n\n" +
		"Here are the commands you can run:\n" +
		strings.Join(lines, "\n")
}

// sortedInstructionValues orders the welcome bullets by service name so the
// message is stable across runs.
func sortedInstructionValues(instructions map[string]string) []string {
	keys := make([]string, 0, len(instructions))
	for key := range instructions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	values := make([]string, 0, len(keys))
	for _, key := range keys {
		values = append(values, instructions[key])
	}
	return values
}

// extractRequesterIdentity builds the Name/Phone lines of the admin notice
// from whatever the gateway delivered: explicit contact fields first, the
// raw webhook contacts block next, the normalized sender as a last resort.
func extractRequesterIdentity(ctx AssistantAuthContext, normalize func(string) string) (string, string) {
	primary := primaryContact(ctx.Raw)

	name := strings.TrimSpace(ctx.ContactName)
	if name == "" {
		if profile, ok := primary["profile"].(map[string]any); ok {
			name, _ = profile["name"].(string)
		}
	}
	if name == "" {
		if nameObj, ok := primary["name"].(map[string]any); ok {
			name, _ = nameObj["formatted_name"].(string)
		}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "-"
	}

	var values []string
	for _, value := range ctx.ContactPhone {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	phone := strings.Join(values, ", ")
	if phone == "" {
		if waID, ok := primary["wa_id"].(string); ok {
			phone = strings.TrimSpace(waID)
		}
	}
	if phone == "" {
		phone = normalize(ctx.SenderID)
	}
	if phone == "" {
		phone = "-"
	}
	return name, phone
}

func primaryContact(raw map[string]any) map[string]any {
	contacts, ok := raw["contacts"].([]any)
	if !ok || len(contacts) == 0 {
		return map[string]any{}
	}
	contact, ok := contacts[0].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return contact
}
