package runtimecfg

import (
	"os"

	"github.com/yedidyatob/WhatsAppAssistant/pkg/whatsapp"
)

// DefaultCommonConfigPath can be overridden with WHATSAPP_COMMON_CONFIG_PATH.
const DefaultCommonConfigPath = "config/common_runtime.json"

// CommonConfigPath resolves the common runtime config location.
func CommonConfigPath() string {
	if v := os.Getenv("WHATSAPP_COMMON_CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultCommonConfigPath
}

// CommonConfig is runtime state shared by every assistant service: who the
// admin is, which numbers are approved, the per-service instruction blurbs,
// and usage counters.
type CommonConfig struct {
	file *jsonFile
}

func NewCommonConfig(path string) *CommonConfig {
	return &CommonConfig{
		file: newJSONFile(path, "common_config", func() map[string]any {
			return map[string]any{
				"admin_sender_id":  "",
				"approved_numbers": []any{},
			}
		}),
	}
}

func (c *CommonConfig) AdminSenderID() string {
	return asString(c.file.get("admin_sender_id"))
}

// SetAdminSenderID stores the admin and adds its normalized number to the
// approved list.
func (c *CommonConfig) SetAdminSenderID(senderID string) error {
	normalized := c.NormalizeSenderID(senderID)
	return c.file.update(func(data map[string]any) {
		data["admin_sender_id"] = senderID
		if normalized == "" {
			return
		}
		approved := asStringSlice(data["approved_numbers"])
		for _, existing := range approved {
			if existing == normalized {
				return
			}
		}
		data["approved_numbers"] = append(approved, normalized)
	})
}

func (c *CommonConfig) ApprovedNumbers() []string {
	return asStringSlice(c.file.get("approved_numbers"))
}

func (c *CommonConfig) AddApprovedNumber(number string) error {
	if number == "" {
		return nil
	}
	return c.file.update(func(data map[string]any) {
		approved := asStringSlice(data["approved_numbers"])
		for _, existing := range approved {
			if existing == number {
				return
			}
		}
		data["approved_numbers"] = append(approved, number)
	})
}

func (c *CommonConfig) RemoveApprovedNumber(number string) error {
	if number == "" {
		return nil
	}
	return c.file.update(func(data map[string]any) {
		approved := asStringSlice(data["approved_numbers"])
		kept := make([]string, 0, len(approved))
		for _, existing := range approved {
			if existing != number {
				kept = append(kept, existing)
			}
		}
		data["approved_numbers"] = kept
	})
}

func (c *CommonConfig) NormalizeSenderID(senderID string) string {
	return whatsapp.NormalizeSenderID(senderID)
}

// IsSenderApproved checks the digit-normalized sender against the approved
// list. The admin is always approved.
func (c *CommonConfig) IsSenderApproved(senderID string) bool {
	normalized := c.NormalizeSenderID(senderID)
	if normalized == "" {
		return false
	}
	if admin := c.NormalizeSenderID(c.AdminSenderID()); admin != "" && normalized == admin {
		return true
	}
	for _, approved := range c.ApprovedNumbers() {
		if normalized == c.NormalizeSenderID(approved) {
			return true
		}
	}
	return false
}

// Instructions are the per-service command blurbs shown in the welcome
// message after approval.
func (c *CommonConfig) Instructions() map[string]string {
	return asStringMap(c.file.get("instructions"))
}

func (c *CommonConfig) SetInstruction(serviceName, instruction string) error {
	return c.file.update(func(data map[string]any) {
		instructions, ok := data["instructions"].(map[string]any)
		if !ok {
			instructions = map[string]any{}
		}
		instructions[serviceName] = instruction
		data["instructions"] = instructions
	})
}

// RecordUsage bumps the handled-command counter of a service.
func (c *CommonConfig) RecordUsage(serviceName string) error {
	return c.file.update(func(data map[string]any) {
		counters, ok := data["usage_counters"].(map[string]any)
		if !ok {
			counters = map[string]any{}
		}
		counters[serviceName] = asInt(counters[serviceName]) + 1
		data["usage_counters"] = counters
	})
}

func (c *CommonConfig) UsageCount(serviceName string) int {
	counters, ok := c.file.get("usage_counters").(map[string]any)
	if !ok {
		return 0
	}
	return asInt(counters[serviceName])
}
