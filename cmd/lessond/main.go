package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/lessons/internal/httpapi"
	"github.com/MarkoPoloResearchLab/lessons/internal/notify"
	"github.com/MarkoPoloResearchLab/lessons/internal/observability"
	"github.com/MarkoPoloResearchLab/lessons/internal/store/database"
	"github.com/MarkoPoloResearchLab/lessons/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/lessons/pkg/booking"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagDatabaseURL     = "database-url"
	flagListenAddr      = "listen-addr"
	flagAllowedOrigins  = "allowed-origins"
	flagJWTSigningKey   = "jwt-signing-key"
	flagJWTIssuer       = "jwt-issuer"
	flagJWTCookieName   = "jwt-cookie-name"
	flagRequestTimeout  = "request-timeout"
	flagEnvironment     = "environment"
	flagNotifier        = "notifier"
	flagSendgridAPIKey  = "sendgrid-api-key"
	flagMailFrom        = "mail-from"
	flagMailFromName    = "mail-from-name"
	flagNotifyQueueSize = "notify-queue-size"
	envPrefix           = "LESSOND"
	defaultDatabaseURL  = "sqlite:///tmp/lessons.db"
	defaultEnvironment  = "development"
)

type runtimeConfig struct {
	DatabaseURL string
	Environment string
	HTTP        httpapi.Config
	Notify      notify.Config
}

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lessond: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "lessond",
		Short:         "Lesson booking HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL URL or SQLite path (sqlite:// URLs accepted)")
	flags.String(flagEnvironment, defaultEnvironment, "runtime environment (production enables JSON logs)")
	cmd.Flags().String(flagListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagJWTSigningKey, "", "TAuth JWT signing key (required)")
	cmd.Flags().String(flagJWTIssuer, "", "expected JWT issuer")
	cmd.Flags().String(flagJWTCookieName, "", "JWT cookie name")
	cmd.Flags().Duration(flagRequestTimeout, 0, "per-request timeout (e.g. 5s)")
	cmd.Flags().String(flagNotifier, notify.ModeLog, "notification transport: log or sendgrid")
	cmd.Flags().String(flagSendgridAPIKey, "", "SendGrid API key")
	cmd.Flags().String(flagMailFrom, "", "notification sender address")
	cmd.Flags().String(flagMailFromName, "", "notification sender name")
	cmd.Flags().Int(flagNotifyQueueSize, 0, "pending notification capacity")

	cmd.AddCommand(newMigrateCommand(cfg))
	return cmd
}

func newMigrateCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:           "migrate",
		Short:         "Apply schema migrations and exit",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadStorageConfig(cmd, newViper(), cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), cfg)
		},
	}
}

func newViper() *viper.Viper {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func bindFlags(cmd *cobra.Command, v *viper.Viper, names ...string) error {
	for _, name := range names {
		if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

func loadStorageConfig(cmd *cobra.Command, v *viper.Viper, cfg *runtimeConfig) error {
	if err := bindFlags(cmd, v, flagDatabaseURL, flagEnvironment); err != nil {
		return err
	}
	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("%s is required", flagDatabaseURL)
	}
	cfg.Environment = strings.TrimSpace(v.GetString(flagEnvironment))
	return nil
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := newViper()
	if err := loadStorageConfig(cmd, v, cfg); err != nil {
		return err
	}
	if err := bindFlags(cmd, v,
		flagListenAddr, flagAllowedOrigins, flagJWTSigningKey, flagJWTIssuer, flagJWTCookieName,
		flagRequestTimeout, flagNotifier, flagSendgridAPIKey, flagMailFrom, flagMailFromName, flagNotifyQueueSize,
	); err != nil {
		return err
	}

	cfg.HTTP = httpapi.Config{
		ListenAddr:        strings.TrimSpace(v.GetString(flagListenAddr)),
		AllowedOrigins:    httpapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins)),
		SessionSigningKey: v.GetString(flagJWTSigningKey),
		SessionIssuer:     strings.TrimSpace(v.GetString(flagJWTIssuer)),
		SessionCookieName: strings.TrimSpace(v.GetString(flagJWTCookieName)),
		RequestTimeout:    v.GetDuration(flagRequestTimeout),
	}
	if err := cfg.HTTP.Validate(); err != nil {
		return err
	}

	cfg.Notify = notify.Config{
		Mode:           v.GetString(flagNotifier),
		SendgridAPIKey: v.GetString(flagSendgridAPIKey),
		FromAddress:    strings.TrimSpace(v.GetString(flagMailFrom)),
		FromName:       strings.TrimSpace(v.GetString(flagMailFromName)),
		QueueSize:      v.GetInt(flagNotifyQueueSize),
	}
	return cfg.Notify.Validate()
}

func openPreparedDatabase(ctx context.Context, databaseURL string, logger *zap.Logger) (*database.Handle, error) {
	handle, err := database.Open(ctx, databaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	if err := database.Prepare(ctx, handle); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("prepare schema: %w", err)
	}
	return handle, nil
}

func runMigrations(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := observability.NewLogger(cfg.Environment)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	handle, err := openPreparedDatabase(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer func() { _ = handle.Close() }()

	version, err := database.SchemaVersion(ctx, handle)
	if err != nil {
		return err
	}
	logger.Info("schema ready", zap.String("driver", handle.Driver), zap.Int64("version", version))
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := observability.NewLogger(cfg.Environment)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	handle, err := openPreparedDatabase(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := handle.Close(); closeErr != nil {
			logger.Warn("database close failed", zap.Error(closeErr))
		}
	}()

	sender, err := notify.NewSender(cfg.Notify, logger)
	if err != nil {
		return fmt.Errorf("notifier init: %w", err)
	}
	dispatcher, err := notify.NewDispatcher(sender, logger, cfg.Notify)
	if err != nil {
		return fmt.Errorf("notifier init: %w", err)
	}
	defer dispatcher.Close()

	service, err := booking.NewService(
		gormstore.New(handle.DB),
		func() time.Time { return time.Now().UTC() },
		booking.WithNotifier(dispatcher),
		booking.WithOperationLogger(observability.NewOperationLogger(logger)),
	)
	if err != nil {
		return fmt.Errorf("booking service init: %w", err)
	}

	logger.Info("lessond starting",
		zap.String("driver", handle.Driver),
		zap.String("notifier", cfg.Notify.Mode),
		zap.String("environment", cfg.Environment),
	)
	return httpapi.Run(ctx, cfg.HTTP, service, logger)
}
