package rest

import (
	"github.com/gofiber/fiber/v2"

	eventsApp "github.com/yedidyatob/WhatsAppAssistant/events/application"
	"github.com/yedidyatob/WhatsAppAssistant/pkg/utils"
	"github.com/yedidyatob/WhatsAppAssistant/validations"
)

type Event struct {
	Service *eventsApp.WhatsAppEventService
}

func InitRestEvents(app fiber.Router, service *eventsApp.WhatsAppEventService) Event {
	rest := Event{Service: service}
	app.Post("/whatsapp/events", rest.HandleEvent)
	app.Get("/health", rest.Health)
	return rest
}

func (controller *Event) HandleEvent(c *fiber.Ctx) error {
	var request InboundEventRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	event := request.toEvent()
	err = validations.ValidateInboundEvent(c.UserContext(), event)
	utils.PanicIfNeeded(err)

	accepted, reason := controller.Service.HandleInboundEvent(c.UserContext(), event)

	response := EventResponse{Status: "ok", Accepted: accepted}
	if reason != "" {
		response.Reason = &reason
	}
	return c.JSON(response)
}

func (controller *Event) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
