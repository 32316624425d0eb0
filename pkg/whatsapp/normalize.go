package whatsapp

import (
	"regexp"
	"strings"
)

const userSuffix = "@s.whatsapp.net"

var (
	nonDigitRegex = regexp.MustCompile(`\D`)
	idPrefixRegex = regexp.MustCompile(`\b([0-9a-fA-F]{12})\b`)
)

// Digits strips every non-digit rune.
func Digits(value string) string {
	return nonDigitRegex.ReplaceAllString(value, "")
}

// NormalizeSenderID reduces a sender JID to its digits. Senders without any
// digits fall back to the trimmed original so they still compare stably.
func NormalizeSenderID(senderID string) string {
	digits := Digits(senderID)
	if digits != "" {
		return digits
	}
	return strings.TrimSpace(senderID)
}

// NormalizeRecipient turns free-form user input (typed number or shared
// contact) into a routable JID. Values already carrying "@" pass through
// untouched. Returns "" when nothing usable was provided.
func NormalizeRecipient(value string, contactPhone string) string {
	value = strings.TrimSpace(value)
	if value != "" && strings.Contains(value, "@") {
		return value
	}

	if value != "" {
		digits := Digits(value)
		if len(digits) >= 8 {
			return digits + userSuffix
		}
	}

	if contactPhone != "" {
		digits := Digits(contactPhone)
		if len(digits) >= 8 {
			return digits + userSuffix
		}
	}

	return ""
}

// NormalizeContactPhone collapses the phone values of a shared contact into a
// single digit string. A contact carrying more than one distinct usable number
// is ambiguous and yields issue "multiple_numbers".
func NormalizeContactPhone(contactPhone []string) (string, string) {
	var normalized []string
	for _, value := range contactPhone {
		digits := Digits(value)
		if len(digits) < 8 {
			continue
		}
		seen := false
		for _, existing := range normalized {
			if existing == digits {
				seen = true
				break
			}
		}
		if !seen {
			normalized = append(normalized, digits)
		}
	}
	if len(normalized) > 1 {
		return "", "multiple_numbers"
	}
	if len(normalized) == 1 {
		return normalized[0], ""
	}
	return "", ""
}

// ExtractIDPrefix finds the first 12-hex-digit token in text, the short handle
// shown in confirmations and list replies.
func ExtractIDPrefix(text string) string {
	if text == "" {
		return ""
	}
	match := idPrefixRegex.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return match[1]
}
