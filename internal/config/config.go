package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/frappe/press-billing/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Billing    BillingConfig    `validate:"required"`
	Webhook    Webhook
	Scheduler  SchedulerConfig
	Stripe     StripeConfig
	Email      EmailConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// BillingConfig holds money-handling policy knobs
type BillingConfig struct {
	// GSTRate applies to INR subscription invoices not settled by prepaid credits
	GSTRate decimal.Decimal
	// WriteOffThreshold is the residual amount_due written off after credits
	WriteOffThreshold decimal.Decimal
	// BudgetAlertThreshold triggers the daily month-to-date alert sweep
	BudgetAlertThreshold decimal.Decimal
	// FinalizeBatchSize bounds draft invoices finalized per scheduler tick
	FinalizeBatchSize int
}

// SchedulerConfig holds the cron expressions for the periodic drivers.
// Expressions use the seconds-granularity cron format.
type SchedulerConfig struct {
	Enabled           bool
	FinalizeDrafts    string
	FinalizeUnpaid    string
	LinkUnlinkedUsage string
	WebhookDispatch   string
	PruneWebhookLogs  string
	BudgetAlerts      string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type EmailConfig struct {
	Enabled     bool
	APIKey      string
	FromAddress string
	ReplyTo     string
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/press-billing")

	v.SetEnvPrefix("PRESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", string(types.ModeLocal))
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", string(types.LogLevelInfo))
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("billing.gstrate", "0.18")
	v.SetDefault("billing.writeoffthreshold", "0.1")
	v.SetDefault("billing.budgetalertthreshold", "0")
	v.SetDefault("billing.finalizebatchsize", 500)
	v.SetDefault("webhook.enabled", true)
	v.SetDefault("webhook.topic", "webhooks")
	v.SetDefault("webhook.deliverytimeout", 5*time.Second)
	v.SetDefault("webhook.dispatchbatchsize", 100)
	v.SetDefault("webhook.logretention", 24*time.Hour)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.finalizedrafts", "0 0 * * * *")
	v.SetDefault("scheduler.finalizeunpaid", "0 30 1 * * *")
	v.SetDefault("scheduler.linkunlinkedusage", "0 15 * * * *")
	v.SetDefault("scheduler.webhookdispatch", "*/5 * * * * *")
	v.SetDefault("scheduler.prunewebhooklogs", "0 0 2 * * *")
	v.SetDefault("scheduler.budgetalerts", "0 0 8 * * *")
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// and tests. Scheduler and outbound integrations stay disabled.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Billing: BillingConfig{
			GSTRate:           decimal.NewFromFloat(0.18),
			WriteOffThreshold: types.DefaultWriteOffThreshold,
			FinalizeBatchSize: 500,
		},
		Webhook: Webhook{
			Enabled:           true,
			Topic:             "webhooks",
			DeliveryTimeout:   5 * time.Second,
			DispatchBatchSize: 100,
			LogRetention:      24 * time.Hour,
		},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
