package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/zerorich/rating-bot/handler"
	"github.com/zerorich/rating-bot/internal/config"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "ratebot",
	Short:         "Telegram bot for anonymous messages and ratings",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPoll,
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Receive updates by long polling",
	RunE:  runPoll,
}

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Serve the Telegram webhook as an AWS Lambda function",
	RunE:  runLambda,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before the environment is read")
	rootCmd.AddCommand(pollCmd, lambdaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("ratebot failed", "err", err)
		os.Exit(1)
	}
}

func runPoll(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	go a.sweep(ctx)
	return a.dispatcher.Run(ctx)
}

func runLambda(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}

	h, err := handler.NewHandler(a.dispatcher,
		handler.WithSecret(a.cfg.WebhookSecret),
		handler.WithLogger(a.log),
	)
	if err != nil {
		a.close()
		return fmt.Errorf("create handler: %w", err)
	}

	go a.sweep(context.WithoutCancel(ctx))
	// StartWithOptions never returns; the runtime's SIGTERM is the only
	// chance to disconnect storage and flush the log file.
	lambda.StartWithOptions(h.Handle, lambdaOptions(a)...)
	return nil
}

func lambdaOptions(a *app) []lambda.Option {
	return []lambda.Option{lambda.WithEnableSIGTERM(a.close)}
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	log, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	slog.SetDefault(log)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	// The log file closes last so shutdown steps can still log.
	a.closers = append([]func(context.Context) error{func(context.Context) error { return closeLog() }}, a.closers...)
	return a, nil
}
