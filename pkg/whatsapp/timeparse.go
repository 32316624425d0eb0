package whatsapp

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var clockRegex = regexp.MustCompile(`^\d{1,2}:\d{2}$`)

// LoadTimezone resolves an IANA timezone name. An empty name is an error so
// callers never schedule against an ambiguous wall clock.
func LoadTimezone(tzName string) (*time.Location, error) {
	if tzName == "" {
		return nil, errors.New("timezone required; set DEFAULT_TIMEZONE")
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s'", tzName)
	}
	return loc, nil
}

func parseClock(value string) (int, int, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, 0, errors.New("invalid time (use HH:MM)")
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, errors.New("invalid time (use HH:MM)")
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, errors.New("invalid time (use HH:MM)")
	}
	return hour, minute, nil
}

// ParseSendAt interprets user-entered schedule times in tzName:
//
//	"HH:MM"                today at that wall time, rolled to tomorrow if past
//	"today HH:MM"          today, even if already past (validated later)
//	"tomorrow HH:MM"       tomorrow
//	"YYYY-MM-DD HH:MM"     absolute wall time
func ParseSendAt(value, tzName string, nowUTC time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	lowered := strings.ToLower(value)

	loc, err := LoadTimezone(tzName)
	if err != nil {
		return time.Time{}, err
	}
	now := nowUTC.In(loc)

	if clockRegex.MatchString(value) {
		hour, minute, err := parseClock(value)
		if err != nil {
			return time.Time{}, err
		}
		sendAt := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
		if !sendAt.After(now) {
			sendAt = sendAt.AddDate(0, 0, 1)
		}
		return sendAt, nil
	}

	if strings.HasPrefix(lowered, "today") || strings.HasPrefix(lowered, "tomorrow") {
		parts := strings.Fields(lowered)
		if len(parts) < 2 {
			return time.Time{}, errors.New("time required (use 'today HH:MM' or 'tomorrow HH:MM')")
		}
		hour, minute, err := parseClock(parts[1])
		if err != nil {
			return time.Time{}, err
		}
		sendAt := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
		if parts[0] == "tomorrow" {
			sendAt = sendAt.AddDate(0, 0, 1)
		}
		return sendAt, nil
	}

	sendAt, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	if err != nil {
		return time.Time{}, errors.New("invalid 'at' format (use YYYY-MM-DD HH:MM)")
	}
	return sendAt, nil
}

// FormatDateTime renders an instant as "YYYY-MM-DD HH:MM" in tzName, falling
// back to the instant's own zone when the name does not resolve.
func FormatDateTime(value time.Time, tzName string) string {
	if tzName != "" {
		if loc, err := LoadTimezone(tzName); err == nil {
			value = value.In(loc)
		}
	}
	return value.Format("2006-01-02 15:04")
}
