package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pedidobot/pedidobot/internal/api"
	"github.com/pedidobot/pedidobot/internal/erp"
	"github.com/pedidobot/pedidobot/internal/flow"
	"github.com/pedidobot/pedidobot/internal/genai"
	"github.com/pedidobot/pedidobot/internal/scheduler"
	"github.com/pedidobot/pedidobot/internal/store"
	"github.com/pedidobot/pedidobot/internal/twiliowhatsapp"
	"github.com/pedidobot/pedidobot/internal/util"
	"github.com/pedidobot/pedidobot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for pedidobot state data
	DefaultStateDir = "/var/lib/pedidobot"
	// DefaultDBFileName is the default SQLite database filename for
	// conversation memory
	DefaultDBFileName = "pedidobot.db"
	// DefaultERPDBFileName is the default SQLite database filename for the
	// reference ERP backend
	DefaultERPDBFileName = "pedidobot_erp.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Build module options
	waOpts := buildWhatsAppOptions(flags)
	storeOpts := buildStoreOptions(flags)
	erpOpts := buildERPOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	twilioOpts := buildTwilioOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping pedidobot with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr, "transport", *flags.transport)
	if err := api.Run(waOpts, storeOpts, erpOpts, genaiOpts, twilioOpts, apiOpts); err != nil {
		slog.Error("pedidobot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("pedidobot exited successfully")
}

// Config holds environment configuration
type Config struct {
	WhatsAppDSN  string
	DatabaseURL  string
	ERPDSN       string
	StateDir     string
	OpenAIKey    string
	APIAddr      string
	Transport    string
	WebStoreURL  string
	InvoiceSID   string
	DebugLogging bool
}

// Flags holds command line flag values
type Flags struct {
	qrOutput    *string
	numeric     *bool
	stateDir    *string
	dbDSN       *string
	erpDSN      *string
	openaiKey   *string
	apiAddr     *string
	transport   *string
	webStoreURL *string
	invoiceSID  *string
}

// initializeLogger sets up structured logging
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("PEDIDOBOT_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		WhatsAppDSN: os.Getenv("PEDIDOBOT_DB_DSN"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		ERPDSN:      os.Getenv("PEDIDOBOT_ERP_DSN"),
		StateDir:    os.Getenv("PEDIDOBOT_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		Transport:   os.Getenv("PEDIDOBOT_TRANSPORT"),
		WebStoreURL: os.Getenv("PEDIDOBOT_WEB_STORE_URL"),
		InvoiceSID:  os.Getenv("TWILIO_INVOICE_TEMPLATE_SID"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No PEDIDOBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// Default to the shared database URL if no specific DSN is set
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = config.DatabaseURL
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDSN)
	}
	if config.ERPDSN == "" {
		config.ERPDSN = filepath.Join(config.StateDir, DefaultERPDBFileName)
	}

	slog.Debug("environment variables loaded",
		"PEDIDOBOT_DB_DSN_SET", config.WhatsAppDSN != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"PEDIDOBOT_ERP_DSN_SET", config.ERPDSN != "",
		"PEDIDOBOT_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"PEDIDOBOT_TRANSPORT", config.Transport)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:    flag.String("qr-output", "", "path to write login QR code"),
		numeric:     flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for pedidobot data (overrides $PEDIDOBOT_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.WhatsAppDSN, "database DSN for conversation memory (overrides $PEDIDOBOT_DB_DSN or $DATABASE_URL)"),
		erpDSN:      flag.String("erp-dsn", config.ERPDSN, "SQLite path for the reference ERP backend (overrides $PEDIDOBOT_ERP_DSN)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		transport:   flag.String("transport", config.Transport, "messaging transport, whatsmeow or twilio (overrides $PEDIDOBOT_TRANSPORT)"),
		webStoreURL: flag.String("web-store-url", config.WebStoreURL, "web store address for walk-in redirects (overrides $PEDIDOBOT_WEB_STORE_URL)"),
		invoiceSID:  flag.String("invoice-template-sid", config.InvoiceSID, "Twilio content SID for the invoice template (overrides $TWILIO_INVOICE_TEMPLATE_SID)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"erpDSN_set", *flags.erpDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"transport", *flags.transport)

	// Follow a moved state directory when the DSNs still point at defaults
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		}
		if *flags.erpDSN == filepath.Join(config.StateDir, DefaultERPDBFileName) {
			*flags.erpDSN = filepath.Join(*flags.stateDir, DefaultERPDBFileName)
		}
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
		return err
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp client configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.dbDSN != "" {
		// whatsmeow shares the conversation database file
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.dbDSN))
	}
	return waOpts
}

// buildStoreOptions constructs conversation store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildERPOptions constructs ERP backend configuration options
func buildERPOptions(flags Flags) []erp.Option {
	var erpOpts []erp.Option
	if *flags.erpDSN != "" {
		erpOpts = append(erpOpts, erp.WithSQLiteDSN(*flags.erpDSN))
	}
	return erpOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	return genaiOpts
}

// buildTwilioOptions constructs Twilio client configuration options.
// Credentials come from the environment inside the Twilio client itself.
func buildTwilioOptions(flags Flags) []twiliowhatsapp.Option {
	var twilioOpts []twiliowhatsapp.Option
	if *flags.invoiceSID != "" {
		twilioOpts = append(twilioOpts, twiliowhatsapp.WithTemplateSID(flow.TemplateInvoiceDelivery, *flags.invoiceSID))
	}
	return twilioOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.transport != "" {
		apiOpts = append(apiOpts, api.WithTransport(strings.ToLower(strings.TrimSpace(*flags.transport))))
	}
	if *flags.webStoreURL != "" {
		apiOpts = append(apiOpts, api.WithWebStoreURL(*flags.webStoreURL))
	}
	if ttl := util.ParseDurationEnv("PEDIDOBOT_IDLE_TTL", scheduler.DefaultIdleTTL); ttl != scheduler.DefaultIdleTTL {
		apiOpts = append(apiOpts, api.WithIdleTTL(ttl))
	}
	return apiOpts
}
