package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	pkgError "github.com/yedidyatob/WhatsAppAssistant/pkg/error"
	"github.com/yedidyatob/WhatsAppAssistant/pkg/utils"
)

func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			err := recover()
			if err != nil {
				// Log the panic using logrus
				logrus.Errorf("Panic recovered in middleware: %v", err)

				generic, ok := err.(pkgError.GenericError)
				if !ok {
					generic = pkgError.InternalServerError(fmt.Sprintf("%v", err))
				}

				res := utils.ResponseData{
					Status:  generic.StatusCode(),
					Code:    generic.ErrCode(),
					Message: generic.Error(),
				}
				_ = ctx.Status(res.Status).JSON(res)
			}
		}()

		return ctx.Next()
	}
}
