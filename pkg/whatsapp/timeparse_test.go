package whatsapp

import (
	"strings"
	"testing"
	"time"
)

func mustUTC(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("bad fixture %q: %v", value, err)
	}
	return parsed.UTC()
}

func TestParseSendAt(t *testing.T) {
	now := mustUTC(t, "2024-01-01T12:00:00Z")

	cases := []struct {
		name  string
		value string
		want  string // RFC3339 in UTC
	}{
		{"clock later today", "13:00", "2024-01-01T13:00:00Z"},
		{"clock already past rolls over", "09:30", "2024-01-02T09:30:00Z"},
		{"clock exactly now rolls over", "12:00", "2024-01-02T12:00:00Z"},
		{"today keeps past instant", "today 09:30", "2024-01-01T09:30:00Z"},
		{"today future", "today 18:30", "2024-01-01T18:30:00Z"},
		{"tomorrow", "tomorrow 08:15", "2024-01-02T08:15:00Z"},
		{"absolute", "2024-02-29 06:45", "2024-02-29T06:45:00Z"},
		{"mixed case keyword", "Tomorrow 10:00", "2024-01-02T10:00:00Z"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseSendAt(tc.value, "UTC", now)
			if err != nil {
				t.Fatalf("ParseSendAt(%q): %v", tc.value, err)
			}
			if !got.Equal(mustUTC(t, tc.want)) {
				t.Fatalf("ParseSendAt(%q) = %s, want %s", tc.value, got.UTC().Format(time.RFC3339), tc.want)
			}
		})
	}
}

func TestParseSendAtZoned(t *testing.T) {
	now := mustUTC(t, "2024-06-01T12:00:00Z") // 09:00 in Sao Paulo (UTC-3)

	got, err := ParseSendAt("13:00", "America/Sao_Paulo", now)
	if err != nil {
		t.Fatal(err)
	}
	if want := mustUTC(t, "2024-06-01T16:00:00Z"); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got.UTC().Format(time.RFC3339), want.Format(time.RFC3339))
	}

	got, err = ParseSendAt("2024-06-02 08:00", "America/Sao_Paulo", now)
	if err != nil {
		t.Fatal(err)
	}
	if want := mustUTC(t, "2024-06-02T11:00:00Z"); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got.UTC().Format(time.RFC3339), want.Format(time.RFC3339))
	}
}

func TestParseSendAtRejects(t *testing.T) {
	now := mustUTC(t, "2024-01-01T12:00:00Z")

	cases := []struct {
		name    string
		value   string
		tz      string
		wantErr string
	}{
		{"empty timezone", "13:00", "", "timezone required"},
		{"bad timezone", "13:00", "Mars/Olympus", "invalid timezone"},
		{"hour out of range", "25:00", "UTC", "invalid time"},
		{"minute out of range", "12:60", "UTC", "invalid time"},
		{"keyword without time", "today", "UTC", "time required"},
		{"garbage", "next thursday", "UTC", "invalid 'at' format"},
		{"partial date", "2024-02-29", "UTC", "invalid 'at' format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSendAt(tc.value, tc.tz, now)
			if err == nil {
				t.Fatalf("ParseSendAt(%q) succeeded, want error", tc.value)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not contain %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestFormatDateTime(t *testing.T) {
	instant := mustUTC(t, "2024-01-01T16:00:00Z")
	if got := FormatDateTime(instant, "America/Sao_Paulo"); got != "2024-01-01 13:00" {
		t.Fatalf("got %q", got)
	}
	// unknown tz keeps the instant's own zone
	if got := FormatDateTime(instant, "Mars/Olympus"); got != "2024-01-01 16:00" {
		t.Fatalf("got %q", got)
	}
}
