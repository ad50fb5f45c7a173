/**
 * @description
 * Configuration management for the booking service. Values come from the
 * environment, with an optional .env file, and are loaded through Viper.
 */
package config

import (
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const (
	FeeModeFlat    = "flat"
	FeeModePercent = "percent"
)

// Config holds all configuration for the booking service.
type Config struct {
	ServerPort                string  `mapstructure:"SERVER_PORT"`
	DatabaseURL               string  `mapstructure:"DATABASE_URL"`
	RedisURL                  string  `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix      string  `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL               string  `mapstructure:"RABBITMQ_URL"`
	EventsExchange            string  `mapstructure:"EVENTS_EXCHANGE"`
	BookingLifecycleQueue     string  `mapstructure:"BOOKING_LIFECYCLE_QUEUE"`
	StripeSecretKey           string  `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret       string  `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	PaymentCurrency           string  `mapstructure:"PAYMENT_CURRENCY"`
	SupabaseJWTSecret         string  `mapstructure:"SUPABASE_JWT_SECRET"`
	InternalAPIKey            string  `mapstructure:"INTERNAL_API_KEY"`
	PlatformFeeMode           string  `mapstructure:"PLATFORM_FEE_MODE"`
	PlatformFeeCents          int64   `mapstructure:"PLATFORM_FEE_CENTS"`
	PlatformFeePercent        float64 `mapstructure:"PLATFORM_FEE_PERCENT"`
	PayeeFeeShare             float64 `mapstructure:"PAYEE_FEE_SHARE"`
	ReconcilePollSchedule     string  `mapstructure:"RECONCILE_POLL_SCHEDULE"`
	ReconcilePollWindowMin    int     `mapstructure:"RECONCILE_POLL_WINDOW_MINUTES"`
	BookingRateLimitPerMinute int     `mapstructure:"BOOKING_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables and an optional
// .env file under path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "cutline:rate_limit")
	viper.SetDefault("EVENTS_EXCHANGE", "cutline.events")
	viper.SetDefault("BOOKING_LIFECYCLE_QUEUE", "booking_service.lifecycle")
	viper.SetDefault("PAYMENT_CURRENCY", "usd")
	viper.SetDefault("PLATFORM_FEE_MODE", FeeModeFlat)
	viper.SetDefault("PLATFORM_FEE_CENTS", 338)
	viper.SetDefault("PLATFORM_FEE_PERCENT", 20.0)
	viper.SetDefault("PAYEE_FEE_SHARE", 0.40)
	viper.SetDefault("RECONCILE_POLL_SCHEDULE", "@every 5m")
	viper.SetDefault("RECONCILE_POLL_WINDOW_MINUTES", 60)
	viper.SetDefault("BOOKING_RATE_LIMIT_PER_MINUTE", 10)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("BOOKING_LIFECYCLE_QUEUE")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("STRIPE_WEBHOOK_SECRET")
	_ = viper.BindEnv("PAYMENT_CURRENCY")
	_ = viper.BindEnv("SUPABASE_JWT_SECRET")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "BOOKING_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("PLATFORM_FEE_MODE")
	_ = viper.BindEnv("PLATFORM_FEE_CENTS")
	_ = viper.BindEnv("PLATFORM_FEE")
	_ = viper.BindEnv("PLATFORM_FEE_PERCENT")
	_ = viper.BindEnv("PAYEE_FEE_SHARE")
	_ = viper.BindEnv("RECONCILE_POLL_SCHEDULE")
	_ = viper.BindEnv("RECONCILE_POLL_WINDOW_MINUTES")
	_ = viper.BindEnv("BOOKING_RATE_LIMIT_PER_MINUTE")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "cutline:rate_limit"
	}
	config.PaymentCurrency = strings.ToLower(strings.TrimSpace(config.PaymentCurrency))
	if config.PaymentCurrency == "" {
		config.PaymentCurrency = "usd"
	}

	// PLATFORM_FEE is the same fee in whole dollars.
	if viper.IsSet("PLATFORM_FEE") {
		feeStr := strings.TrimSpace(viper.GetString("PLATFORM_FEE"))
		if feeStr != "" {
			feeValue, parseErr := strconv.ParseFloat(feeStr, 64)
			if parseErr != nil {
				log.Printf("level=warn component=config msg=\"invalid PLATFORM_FEE\" value=%q err=%v", feeStr, parseErr)
			} else {
				config.PlatformFeeCents = int64(math.Round(feeValue * 100))
			}
		}
	}
	if config.PlatformFeeCents < 0 {
		log.Printf("level=warn component=config msg=\"negative platform fee configured; coercing to zero\" fee_cents=%d", config.PlatformFeeCents)
		config.PlatformFeeCents = 0
	}

	config.PlatformFeeMode = strings.ToLower(strings.TrimSpace(config.PlatformFeeMode))
	if config.PlatformFeeMode != FeeModeFlat && config.PlatformFeeMode != FeeModePercent {
		log.Printf("level=warn component=config msg=\"unknown platform fee mode; using flat\" mode=%q", config.PlatformFeeMode)
		config.PlatformFeeMode = FeeModeFlat
	}

	if config.PlatformFeePercent < 0 {
		log.Printf("level=warn component=config msg=\"negative platform fee percent configured; coercing to zero\" percent=%f", config.PlatformFeePercent)
		config.PlatformFeePercent = 0
	}
	if config.PlatformFeePercent > 100 {
		log.Printf("level=warn component=config msg=\"platform fee percent above 100; clamping\" percent=%f", config.PlatformFeePercent)
		config.PlatformFeePercent = 100
	}

	if config.PayeeFeeShare < 0 {
		log.Printf("level=warn component=config msg=\"negative payee fee share configured; coercing to zero\" share=%f", config.PayeeFeeShare)
		config.PayeeFeeShare = 0
	}
	if config.PayeeFeeShare > 1 {
		log.Printf("level=warn component=config msg=\"payee fee share above 1; clamping\" share=%f", config.PayeeFeeShare)
		config.PayeeFeeShare = 1
	}

	if config.ReconcilePollWindowMin <= 0 {
		config.ReconcilePollWindowMin = 60
	}
	return
}
