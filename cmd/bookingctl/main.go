package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mozila9822/website-VOY-sub000/internal/app"
	"github.com/mozila9822/website-VOY-sub000/internal/common/config"
	"github.com/mozila9822/website-VOY-sub000/internal/common/logging"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bookingctl",
		Short:         "bookingctl - 予約台帳と決済設定の管理ツール",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(bookingsCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(checkoutCmd())

	return rootCmd
}

// withApp は設定を読み込んでサービスを初期化し、fn の終了後に解放します
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, logger *logrus.Logger) error) error {
	cfg, err := config.LoadConfig("")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.IsLocal())
	logger.SetOutput(cmd.ErrOrStderr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a, logger)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
