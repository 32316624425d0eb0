package domain

import "context"

// SendRequest is one outbound WhatsApp message.
type SendRequest struct {
	ChatID          string
	Text            string
	QuotedMessageID string
	MessageID       string
}

// ITransport delivers messages through the external WhatsApp gateway and
// returns the gateway's outbound message id when it reports one.
type ITransport interface {
	SendMessage(ctx context.Context, req SendRequest) (string, error)
}
