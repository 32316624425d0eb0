package runtimecfg

import (
	"os"

	"github.com/yedidyatob/WhatsAppAssistant/pkg/utils"
)

// DefaultTimedMessagesConfigPath can be overridden with
// WHATSAPP_TIMED_MESSAGES_CONFIG_PATH.
const DefaultTimedMessagesConfigPath = "config/timed_messages_runtime.json"

// TimedMessagesConfigPath resolves the timed-messages config location.
func TimedMessagesConfigPath() string {
	if v := os.Getenv("WHATSAPP_TIMED_MESSAGES_CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultTimedMessagesConfigPath
}

// TimedMessagesConfig layers scheduler-specific state (scheduling group,
// admin setup code) over the shared CommonConfig, which keeps owning the
// admin identity and approvals.
type TimedMessagesConfig struct {
	file   *jsonFile
	common *CommonConfig
}

func NewTimedMessagesConfig(path string, common *CommonConfig) *TimedMessagesConfig {
	return &TimedMessagesConfig{
		file: newJSONFile(path, "timed_messages_config", func() map[string]any {
			return map[string]any{
				"group_id":         "",
				"admin_setup_code": "",
			}
		}),
		common: common,
	}
}

func (c *TimedMessagesConfig) AdminSenderID() string {
	return c.common.AdminSenderID()
}

// SetAdminSenderID claims the admin slot and burns the setup code.
func (c *TimedMessagesConfig) SetAdminSenderID(senderID string) error {
	if err := c.common.SetAdminSenderID(senderID); err != nil {
		return err
	}
	return c.file.update(func(data map[string]any) {
		data["admin_setup_code"] = ""
	})
}

// AdminSetupCode returns the persisted one-time setup code, generating and
// storing a fresh 6-digit code on first use.
func (c *TimedMessagesConfig) AdminSetupCode() (string, error) {
	if code := asString(c.file.get("admin_setup_code")); code != "" {
		return code, nil
	}
	code := utils.SixDigitCode()
	err := c.file.update(func(data map[string]any) {
		// a concurrent writer may have won; keep the stored code
		if existing := asString(data["admin_setup_code"]); existing != "" {
			code = existing
			return
		}
		data["admin_setup_code"] = code
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

func (c *TimedMessagesConfig) ApprovedNumbers() []string {
	return c.common.ApprovedNumbers()
}

func (c *TimedMessagesConfig) AddApprovedNumber(number string) error {
	return c.common.AddApprovedNumber(number)
}

func (c *TimedMessagesConfig) RemoveApprovedNumber(number string) error {
	return c.common.RemoveApprovedNumber(number)
}

func (c *TimedMessagesConfig) NormalizeSenderID(senderID string) string {
	return c.common.NormalizeSenderID(senderID)
}

func (c *TimedMessagesConfig) IsSenderApproved(senderID string) bool {
	return c.common.IsSenderApproved(senderID)
}

func (c *TimedMessagesConfig) Instructions() map[string]string {
	return c.common.Instructions()
}

func (c *TimedMessagesConfig) SetInstruction(serviceName, instruction string) error {
	return c.common.SetInstruction(serviceName, instruction)
}

func (c *TimedMessagesConfig) RecordUsage(serviceName string) error {
	return c.common.RecordUsage(serviceName)
}

// SchedulingGroup is the group restricted to timed-message commands in
// non-assistant deployments. Empty means any chat.
func (c *TimedMessagesConfig) SchedulingGroup() string {
	return asString(c.file.get("group_id"))
}

func (c *TimedMessagesConfig) SetSchedulingGroup(groupID string) error {
	return c.file.update(func(data map[string]any) {
		data["group_id"] = groupID
	})
}

func (c *TimedMessagesConfig) ClearSchedulingGroup() error {
	return c.file.update(func(data map[string]any) {
		data["group_id"] = ""
	})
}
