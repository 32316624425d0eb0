package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	authApp "github.com/yedidyatob/WhatsAppAssistant/auth/application"
	coreconfig "github.com/yedidyatob/WhatsAppAssistant/core/config"
	coreDB "github.com/yedidyatob/WhatsAppAssistant/core/database"
	"github.com/yedidyatob/WhatsAppAssistant/core/runtimecfg"
	eventsApp "github.com/yedidyatob/WhatsAppAssistant/events/application"
	"github.com/yedidyatob/WhatsAppAssistant/infrastructure/gateway"
	"github.com/yedidyatob/WhatsAppAssistant/pkg/utils"
	schedulerApp "github.com/yedidyatob/WhatsAppAssistant/scheduler/application"
	"github.com/yedidyatob/WhatsAppAssistant/scheduler/domain"
	"github.com/yedidyatob/WhatsAppAssistant/scheduler/repository"
)

var (
	serverID string

	// Runtime config
	commonCfg *runtimecfg.CommonConfig
	timedCfg  *runtimecfg.TimedMessagesConfig

	// Services
	transport    domain.ITransport
	timedService *schedulerApp.TimedMessageService
	authService  *authApp.AuthService
	eventService *eventsApp.WhatsAppEventService
	worker       *schedulerApp.DeliveryWorker

	// Flag overrides
	flagPort          string
	flagDebug         bool
	flagAssistantMode bool
	flagGatewayURL    string
	flagTimezone      string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Short: "WhatsApp timed message assistant",
	Long: `Schedules WhatsApp messages through a gateway sidecar: an interactive
conversation collects recipient, time, and text, and a background worker
delivers each message when it comes due.`,
}

func init() {
	// Load environment variables first
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()

	cobra.OnInitialize(initApp)
}

func initFlags() {
	rootCmd.PersistentFlags().StringVarP(
		&flagPort,
		"port", "p",
		"",
		"change port number with --port <number> | example: --port=8080",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&flagDebug,
		"debug", "d",
		false,
		"hide or displaying log with --debug <true/false> | example: --debug=true",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&flagAssistantMode,
		"assistant-mode", "",
		false,
		"reroute deliveries to the scheduling owner --assistant-mode <true/false> | example: --assistant-mode=true",
	)
	rootCmd.PersistentFlags().StringVarP(
		&flagGatewayURL,
		"gateway-url", "",
		"",
		`gateway base url --gateway-url <string> | example: --gateway-url="http://localhost:3000"`,
	)
	rootCmd.PersistentFlags().StringVarP(
		&flagTimezone,
		"timezone", "",
		"",
		`default timezone for user-entered times --timezone <string> | example: --timezone="America/Sao_Paulo"`,
	)
}

func initApp() {
	cfg, err := coreconfig.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	// Flags win over environment
	if flagPort != "" {
		cfg.App.Port = flagPort
	}
	if flagDebug || viper.GetBool("app_debug") {
		cfg.App.Debug = true
	}
	if flagAssistantMode {
		cfg.Whatsapp.AssistantMode = true
	}
	if flagGatewayURL != "" {
		cfg.Whatsapp.GatewayURL = flagGatewayURL
	}
	if flagTimezone != "" {
		cfg.Whatsapp.DefaultTimezone = flagTimezone
	}

	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	storageDir := filepath.Dir(cfg.Database.Name)
	if err := utils.CreateFolder(storageDir, filepath.Dir(cfg.Runtime.CommonConfigPath)); err != nil {
		logrus.Errorln(err)
	}

	serverID = utils.GetPersistentServerID(os.Getenv("SERVER_ID"), storageDir)
	logrus.Infof("[APP] Server ID: %s", serverID)

	db, err := coreDB.NewDatabase(cfg)
	if err != nil {
		logrus.Fatalf("failed to open database: %v", err)
	}

	repo := repository.NewScheduledMessageGormRepository(db)
	if err := repo.Init(context.Background()); err != nil {
		logrus.Fatalf("failed to migrate scheduled messages: %v", err)
	}

	commonCfg = runtimecfg.NewCommonConfig(cfg.Runtime.CommonConfigPath)
	timedCfg = runtimecfg.NewTimedMessagesConfig(cfg.Runtime.TimedMessagesConfigPath, commonCfg)

	if err := timedCfg.SetInstruction("timed_messages",
		"Timed messages: send 'add' to schedule, 'list' to review, reply 'cancel' to a confirmation to cancel."); err != nil {
		logrus.WithError(err).Warn("[APP] Failed registering instructions")
	}

	transport = gateway.NewTransport(cfg.Whatsapp.GatewayURL)

	timedService = schedulerApp.NewTimedMessageService(repo,
		schedulerApp.WithAssistantMode(cfg.Whatsapp.AssistantMode,
			time.Duration(cfg.Whatsapp.AssistantMaxScheduleHours)*time.Hour))

	sendReply := func(chatID, text, quotedMessageID string) string {
		id, err := transport.SendMessage(context.Background(), domain.SendRequest{
			ChatID:          chatID,
			Text:            text,
			QuotedMessageID: quotedMessageID,
		})
		if err != nil {
			logrus.WithError(err).Warn("[APP] Failed sending reply")
			return ""
		}
		return id
	}
	authService = authApp.NewAuthService(timedCfg,
		authApp.NewInMemoryPendingAuthStore(authApp.PendingAuthTTL), sendReply)

	eventService = eventsApp.NewWhatsAppEventService(timedService, transport, authService, timedCfg,
		eventsApp.NewInMemoryFlowStore(eventsApp.FlowTTL), cfg.Whatsapp.DefaultTimezone)

	worker = schedulerApp.NewDeliveryWorker(timedService, transport,
		cfg.Worker.PollInterval, cfg.Worker.BatchSize)

	printAdminSetupBanner()
}

// printAdminSetupBanner tells the operator how to claim the admin slot on a
// fresh install.
func printAdminSetupBanner() {
	if timedCfg.AdminSenderID() != "" {
		return
	}
	code, err := timedCfg.AdminSetupCode()
	if err != nil {
		logrus.WithError(err).Error("[APP] Failed reading admin setup code")
		return
	}
	fmt.Println("=== Admin Setup Required ===")
	fmt.Printf("No admin sender is configured. Send the bot this message from your own WhatsApp:\n")
	fmt.Printf("  !whoami %s\n", code)
	fmt.Println("============================")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
