package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	coreconfig "github.com/yedidyatob/WhatsAppAssistant/core/config"
	"github.com/yedidyatob/WhatsAppAssistant/ui/rest"
	"github.com/yedidyatob/WhatsAppAssistant/ui/rest/middleware"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Receive gateway webhooks over http",
	Long:  `Runs the webhook server the WhatsApp gateway posts inbound messages to.`,
	Run:   restServer,
}

var withWorker bool

func init() {
	restCmd.Flags().BoolVar(&withWorker, "with-worker", true, "run the delivery worker in-process")
	rootCmd.AddCommand(restCmd)
}

func restServer(_ *cobra.Command, _ []string) {
	app := fiber.New(fiber.Config{
		Network:               "tcp",
		AppName:               "WhatsApp Assistant",
		DisableStartupMessage: false,
		ServerHeader:          "Hidden",
	})

	app.Use(requestid.New())
	app.Use(middleware.Recovery())

	if coreconfig.Global.App.Debug {
		app.Use(logger.New())
	}

	group := app.Group(coreconfig.Global.App.BasePath)
	rest.InitRestEvents(group, eventService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if withWorker {
		go worker.Run(ctx)
	}

	// Graceful shutdown handler
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		cancel()
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
	}()

	if err := app.Listen(":" + coreconfig.Global.App.Port); err != nil {
		logrus.Fatalln("Failed to start: ", err.Error())
	}
}
