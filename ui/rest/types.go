package rest

import (
	"encoding/json"
	"time"

	eventsApp "github.com/yedidyatob/WhatsAppAssistant/events/application"
)

// StringList accepts a JSON string, an array of strings, or null. Gateways
// disagree on whether a single contact phone arrives as a scalar.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*l = nil
		} else {
			*l = StringList{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = StringList(many)
	return nil
}

// EventTime accepts either an RFC 3339 string or epoch seconds; gateways
// emit both.
type EventTime struct {
	time.Time
}

func (t *EventTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var epoch float64
	if err := json.Unmarshal(data, &epoch); err == nil {
		sec := int64(epoch)
		nsec := int64((epoch - float64(sec)) * float64(time.Second))
		t.Time = time.Unix(sec, nsec).UTC()
		return nil
	}
	return t.Time.UnmarshalJSON(data)
}

// InboundEventRequest is the webhook payload the gateway posts for each
// incoming message.
type InboundEventRequest struct {
	MessageID       string         `json:"message_id"`
	ChatID          string         `json:"chat_id"`
	SenderID        string         `json:"sender_id"`
	Text            string         `json:"text"`
	QuotedText      string         `json:"quoted_text"`
	QuotedMessageID string         `json:"quoted_message_id"`
	ContactName     string         `json:"contact_name"`
	ContactPhone    StringList     `json:"contact_phone"`
	Timestamp       EventTime      `json:"timestamp"`
	IsGroup         bool           `json:"is_group"`
	Raw             map[string]any `json:"raw"`
}

func (r InboundEventRequest) toEvent() eventsApp.InboundEvent {
	return eventsApp.InboundEvent{
		MessageID:       r.MessageID,
		ChatID:          r.ChatID,
		SenderID:        r.SenderID,
		Text:            r.Text,
		QuotedText:      r.QuotedText,
		QuotedMessageID: r.QuotedMessageID,
		ContactName:     r.ContactName,
		ContactPhone:    r.ContactPhone,
		Timestamp:       r.Timestamp.Time.UTC(),
		IsGroup:         r.IsGroup,
		Raw:             r.Raw,
	}
}

// EventResponse reports whether the message was acted on and why not.
type EventResponse struct {
	Status   string  `json:"status"`
	Accepted bool    `json:"accepted"`
	Reason   *string `json:"reason,omitempty"`
}
