package config

import "time"

// Webhook represents the configuration for the webhook delivery system
type Webhook struct {
	Enabled bool   `mapstructure:"enabled"`
	Topic   string `mapstructure:"topic"`
	// DeliveryTimeout bounds one POST to one subscriber endpoint
	DeliveryTimeout time.Duration `mapstructure:"deliverytimeout"`
	// DispatchBatchSize bounds logs claimed per dispatch tick
	DispatchBatchSize int `mapstructure:"dispatchbatchsize"`
	// LogRetention is how long delivered and abandoned logs are kept
	LogRetention time.Duration `mapstructure:"logretention"`

	// In-process message bus retry settings
	MaxRetries      int           `mapstructure:"maxretries"`
	InitialInterval time.Duration `mapstructure:"initialinterval"`
	MaxInterval     time.Duration `mapstructure:"maxinterval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"maxelapsedtime"`
}
