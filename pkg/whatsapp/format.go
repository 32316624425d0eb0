package whatsapp

import (
	"fmt"
	"strings"
	"time"
)

// FormatWhenPrompt is the second question of the scheduling flow.
func FormatWhenPrompt(tzName string) string {
	return "*When?*\nUse YYYY-MM-DD HH:MM\n" +
		"Or use HH:MM / 'today HH:MM' / 'tomorrow HH:MM'.\n" +
		"For example: today 18:30\n" +
		fmt.Sprintf("(Current time zone: %s)", tzName)
}

// DisplayRecipient strips the JID server part for user-facing text.
func DisplayRecipient(value string) string {
	if idx := strings.Index(value, "@"); idx >= 0 {
		return value[:idx]
	}
	return value
}

// ShortID is the 12-hex-digit handle users see and paste back.
func ShortID(id string) string {
	compact := strings.ReplaceAll(id, "-", "")
	if len(compact) > 12 {
		compact = compact[:12]
	}
	return compact
}

// FormatScheduleReply confirms a freshly scheduled message.
func FormatScheduleReply(scheduledID, toValue string, sendAt time.Time, tzName string) string {
	return fmt.Sprintf("✅ Scheduled\nID: %s\nTo: %s\nAt: %s",
		ShortID(scheduledID),
		DisplayRecipient(toValue),
		FormatDateTime(sendAt, tzName),
	)
}

// ListEntry is one row of the "list" reply.
type ListEntry struct {
	ShortID string
	SendAt  time.Time
	Text    string
}

// FormatListReply renders the pending messages of a sender, one line each.
func FormatListReply(entries []ListEntry, tzName string) string {
	if len(entries) == 0 {
		return "✅ No scheduled messages"
	}

	lines := []string{"✅ Scheduled messages"}
	for _, entry := range entries {
		preview := strings.ReplaceAll(strings.TrimSpace(entry.Text), "\n", " ")
		if len(preview) > 40 {
			preview = preview[:37] + "..."
		}
		lines = append(lines, fmt.Sprintf("- %s | %s | %s",
			entry.ShortID, FormatDateTime(entry.SendAt, tzName), preview))
	}
	return strings.Join(lines, "\n")
}

// FormatAdminAuthRequest is the DM sent to the admin when someone runs !auth.
func FormatAdminAuthRequest(code, sender, chat, normalized, name, phone string) string {
	return "🔐 New assistant auth request\n" +
		fmt.Sprintf("Code: %s\n", code) +
		fmt.Sprintf("Sender: %s\n", sender) +
		fmt.Sprintf("Chat: %s\n", chat) +
		fmt.Sprintf("Normalized: %s\n", normalized) +
		fmt.Sprintf("Name: %s\n", name) +
		fmt.Sprintf("Phone: %s", phone)
}
