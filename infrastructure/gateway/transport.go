package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yedidyatob/WhatsAppAssistant/scheduler/domain"
)

const (
	// DefaultBaseURL matches the docker-compose service name of the gateway.
	DefaultBaseURL = "http://whatsapp_gateway:3000"

	httpTimeout = 5 * time.Second
)

var httpClient = &http.Client{Timeout: httpTimeout}

type sendPayload struct {
	To              string `json:"to"`
	Text            string `json:"text"`
	QuotedMessageID string `json:"quoted_message_id,omitempty"`
	MessageID       string `json:"message_id,omitempty"`
}

type sendResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// Transport delivers messages through the HTTP sidecar that owns the actual
// WhatsApp session.
type Transport struct {
	baseURL string
}

var _ domain.ITransport = (*Transport)(nil)

func NewTransport(baseURL string) *Transport {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Transport{baseURL: strings.TrimRight(baseURL, "/")}
}

// SendMessage posts one message to the gateway and returns the gateway
// message id when it reports one.
func (t *Transport) SendMessage(ctx context.Context, req domain.SendRequest) (string, error) {
	body, err := json.Marshal(sendPayload{
		To:              req.ChatID,
		Text:            req.Text,
		QuotedMessageID: req.QuotedMessageID,
		MessageID:       req.MessageID,
	})
	if err != nil {
		return "", fmt.Errorf("gateway: encode send payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gateway: build send request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gateway: send: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("gateway: read send response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("gateway: send returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed sendResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("gateway: decode send response: %w", err)
	}
	if parsed.Status != "ok" {
		if parsed.Error != "" {
			return "", fmt.Errorf("gateway: send rejected: %s", parsed.Error)
		}
		return "", fmt.Errorf("gateway: send rejected: status %q", parsed.Status)
	}
	return parsed.MessageID, nil
}
