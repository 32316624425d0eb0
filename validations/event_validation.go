package validations

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	eventsApp "github.com/yedidyatob/WhatsAppAssistant/events/application"
	pkgError "github.com/yedidyatob/WhatsAppAssistant/pkg/error"
)

func ValidateInboundEvent(ctx context.Context, request eventsApp.InboundEvent) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.MessageID, validation.Required),
		validation.Field(&request.ChatID, validation.Required),
		validation.Field(&request.SenderID, validation.Required),
		validation.Field(&request.Timestamp, validation.Required),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
