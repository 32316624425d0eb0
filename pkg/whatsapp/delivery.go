package whatsapp

import (
	"fmt"
	"net/url"
	"strings"
)

// FormatAssistantDelivery builds the owner-facing notice used in assistant
// mode instead of messaging the recipient directly.
func FormatAssistantDelivery(chatID, text string) string {
	link := BuildWhatsAppLink(chatID, text)
	preview := strings.ReplaceAll(strings.TrimSpace(text), "\n", " ")
	if len(preview) > 160 {
		preview = preview[:157] + "..."
	}
	if link != "" {
		return fmt.Sprintf("⏰ Scheduled message ready\nTo: %s\nText: %s\nSend: %s",
			DisplayChatID(chatID), preview, link)
	}
	return fmt.Sprintf("⏰ Scheduled message ready\nTo: %s\nText: %s\nSend link unavailable for this recipient.",
		DisplayChatID(chatID), preview)
}

// BuildWhatsAppLink returns a wa.me click-to-send URL, or "" when the chat id
// carries no digits (group JIDs, broadcast lists).
func BuildWhatsAppLink(chatID, text string) string {
	digits := Digits(chatID)
	if digits == "" {
		return ""
	}
	encoded := strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	return fmt.Sprintf("https://wa.me/%s?text=%s", digits, encoded)
}

// DisplayChatID strips the JID server part.
func DisplayChatID(value string) string {
	if idx := strings.Index(value, "@"); idx >= 0 {
		return value[:idx]
	}
	return value
}
