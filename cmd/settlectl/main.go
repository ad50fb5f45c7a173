/**
 * @description
 * settlectl runs settlement maintenance against the booking database:
 * a one-off reconcile sweep or the replay of a single payment intent.
 */
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cutline/booking-service/internal/app"
	"github.com/cutline/booking-service/internal/config"
	"github.com/cutline/booking-service/internal/store"
	bookingrabbit "github.com/cutline/booking-service/pkg/rabbitmq"
	"github.com/cutline/booking-service/pkg/stripeclient"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "settlectl",
		Short:        "Booking settlement maintenance",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", ".", "directory holding an optional .env file")

	var window time.Duration
	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Settle succeeded payment intents created within --window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), configPath, func(ctx context.Context, svc app.Service) error {
				result, err := svc.ReconcileRecent(ctx, window, nil)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
	reconcileCmd.Flags().DurationVar(&window, "window", time.Hour, "how far back to scan")

	replayCmd := &cobra.Command{
		Use:   "replay <payment_intent_id>",
		Short: "Create or settle the booking for one payment intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), configPath, func(ctx context.Context, svc app.Service) error {
				booking, outcome, err := svc.ReplayPaymentIntent(ctx, args[0])
				if err != nil {
					if stripeclient.IsNotFound(err) {
						return fmt.Errorf("payment intent %s does not exist", args[0])
					}
					return err
				}
				return printJSON(cmd, map[string]interface{}{"outcome": outcome, "booking": booking})
			})
		},
	}

	root.AddCommand(reconcileCmd, replayCmd)
	return root
}

func withService(ctx context.Context, configPath string, fn func(context.Context, app.Service) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is not set")
	}

	dbpool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbpool.Close()

	var publisher app.EventPublisher = &bookingrabbit.EventProducerFallback{}
	if cfg.RabbitMQURL != "" {
		if producer, err := bookingrabbit.NewEventProducer(cfg.RabbitMQURL); err == nil {
			publisher = producer
			defer producer.Close()
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	svc := app.NewService(store.NewRepository(dbpool), stripeclient.NewClient(cfg.StripeSecretKey), publisher, cfg, logger)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	return fn(ctx, svc)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
