package runtimecfg

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCommon(t *testing.T) (*CommonConfig, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "common_runtime.json")
	return NewCommonConfig(path), path
}

func TestCommonConfigDefaults(t *testing.T) {
	cfg, _ := newTestCommon(t)

	assert.Equal(t, "", cfg.AdminSenderID())
	assert.Empty(t, cfg.ApprovedNumbers())
	assert.False(t, cfg.IsSenderApproved("15551234567"))
}

func TestCommonConfigAdminRoundTrip(t *testing.T) {
	cfg, path := newTestCommon(t)

	require.NoError(t, cfg.SetAdminSenderID("15550001111@s.whatsapp.net"))
	assert.Equal(t, "15550001111@s.whatsapp.net", cfg.AdminSenderID())

	// persisted as JSON on disk
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var data map[string]any
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, "15550001111@s.whatsapp.net", data["admin_sender_id"])
}

func TestCommonConfigApprovedNumbers(t *testing.T) {
	cfg, _ := newTestCommon(t)

	require.NoError(t, cfg.AddApprovedNumber("15551234567"))
	require.NoError(t, cfg.AddApprovedNumber("15551234567")) // dedupe
	require.NoError(t, cfg.AddApprovedNumber("15559876543"))
	assert.Equal(t, []string{"15551234567", "15559876543"}, cfg.ApprovedNumbers())

	assert.True(t, cfg.IsSenderApproved("15551234567@s.whatsapp.net"))
	assert.False(t, cfg.IsSenderApproved("14440000000"))

	require.NoError(t, cfg.RemoveApprovedNumber("15551234567"))
	assert.Equal(t, []string{"15559876543"}, cfg.ApprovedNumbers())
	assert.False(t, cfg.IsSenderApproved("15551234567"))
}

func TestCommonConfigAdminAlwaysApproved(t *testing.T) {
	cfg, _ := newTestCommon(t)

	require.NoError(t, cfg.SetAdminSenderID("15550001111@s.whatsapp.net"))
	assert.True(t, cfg.IsSenderApproved("15550001111"))
	assert.True(t, cfg.IsSenderApproved("+1 (555) 000-1111"))
}

func TestCommonConfigSetAdminApprovesAdminNumber(t *testing.T) {
	cfg, path := newTestCommon(t)

	require.NoError(t, cfg.SetAdminSenderID("15550001111@s.whatsapp.net"))
	assert.Equal(t, []string{"15550001111"}, cfg.ApprovedNumbers())

	// re-announcing the admin does not duplicate the entry
	require.NoError(t, cfg.SetAdminSenderID("15550001111@s.whatsapp.net"))
	assert.Equal(t, []string{"15550001111"}, cfg.ApprovedNumbers())

	// the approved list on disk carries the admin too
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var data map[string]any
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, []any{"15550001111"}, data["approved_numbers"])
}

func TestCommonConfigReloadsExternalWrites(t *testing.T) {
	cfg, path := newTestCommon(t)
	assert.Equal(t, "", cfg.AdminSenderID())

	external := map[string]any{
		"admin_sender_id":  "19998887777",
		"approved_numbers": []string{"12223334444"},
	}
	raw, err := json.Marshal(external)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	// force a visible mtime change regardless of filesystem granularity
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Equal(t, "19998887777", cfg.AdminSenderID())
	assert.Equal(t, []string{"12223334444"}, cfg.ApprovedNumbers())
}

func TestCommonConfigCorruptedFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "common_runtime.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	cfg := NewCommonConfig(path)
	assert.Equal(t, "", cfg.AdminSenderID())
	assert.Empty(t, cfg.ApprovedNumbers())
}

func TestCommonConfigInstructionsAndUsage(t *testing.T) {
	cfg, _ := newTestCommon(t)

	require.NoError(t, cfg.SetInstruction("timed_messages", "send 'add' to schedule"))
	require.NoError(t, cfg.SetInstruction("summarizer", "send 'summarize'"))
	assert.Equal(t, map[string]string{
		"timed_messages": "send 'add' to schedule",
		"summarizer":     "send 'summarize'",
	}, cfg.Instructions())

	require.NoError(t, cfg.RecordUsage("timed_messages"))
	require.NoError(t, cfg.RecordUsage("timed_messages"))
	assert.Equal(t, 2, cfg.UsageCount("timed_messages"))
	assert.Equal(t, 0, cfg.UsageCount("summarizer"))
}

func newTestTimed(t *testing.T) *TimedMessagesConfig {
	t.Helper()
	dir := t.TempDir()
	common := NewCommonConfig(filepath.Join(dir, "common_runtime.json"))
	return NewTimedMessagesConfig(filepath.Join(dir, "timed_messages_runtime.json"), common)
}

func TestTimedMessagesSetupCode(t *testing.T) {
	cfg := newTestTimed(t)

	code, err := cfg.AdminSetupCode()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), code)

	// stable across reads
	again, err := cfg.AdminSetupCode()
	require.NoError(t, err)
	assert.Equal(t, code, again)
}

func TestTimedMessagesSetAdminBurnsSetupCode(t *testing.T) {
	cfg := newTestTimed(t)

	code, err := cfg.AdminSetupCode()
	require.NoError(t, err)

	require.NoError(t, cfg.SetAdminSenderID("15550001111@s.whatsapp.net"))
	assert.Equal(t, "15550001111@s.whatsapp.net", cfg.AdminSenderID())

	// the old code is gone; a fresh one is generated on demand
	fresh, err := cfg.AdminSetupCode()
	require.NoError(t, err)
	assert.NotEqual(t, code, fresh)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), fresh)
}

func TestTimedMessagesSchedulingGroup(t *testing.T) {
	cfg := newTestTimed(t)

	assert.Equal(t, "", cfg.SchedulingGroup())
	require.NoError(t, cfg.SetSchedulingGroup("123456-7890@g.us"))
	assert.Equal(t, "123456-7890@g.us", cfg.SchedulingGroup())
	require.NoError(t, cfg.ClearSchedulingGroup())
	assert.Equal(t, "", cfg.SchedulingGroup())
}

func TestTimedMessagesDelegatesApprovalsToCommon(t *testing.T) {
	dir := t.TempDir()
	common := NewCommonConfig(filepath.Join(dir, "common_runtime.json"))
	cfg := NewTimedMessagesConfig(filepath.Join(dir, "timed_messages_runtime.json"), common)

	require.NoError(t, cfg.AddApprovedNumber("15551234567"))
	assert.True(t, common.IsSenderApproved("15551234567"))
	assert.True(t, cfg.IsSenderApproved("15551234567"))
}
