package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mozila9822/website-VOY-sub000/internal/app"
	"github.com/mozila9822/website-VOY-sub000/internal/model"
)

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "決済プロバイダ設定の参照と切り替え",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show [provider]",
		Short: "プロバイダ設定を表示します。シークレットキーはマスクします",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := model.ParseProvider(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App, _ *logrus.Logger) error {
				s, err := a.Registry.Get(ctx, provider)
				if err != nil {
					return err
				}
				return printJSON(cmd, s.Admin())
			})
		},
	})
	cmd.AddCommand(toggleCmd("enable", true))
	cmd.AddCommand(toggleCmd("disable", false))

	return cmd
}

func toggleCmd(use string, enabled bool) *cobra.Command {
	short := "プロバイダを無効にします"
	if enabled {
		short = "プロバイダを有効にします"
	}

	return &cobra.Command{
		Use:   use + " [provider]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := model.ParseProvider(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App, _ *logrus.Logger) error {
				s, err := a.Registry.Update(ctx, provider, model.PaymentSettingsPatch{Enabled: &enabled})
				if err != nil {
					return err
				}
				return printJSON(cmd, s.Admin())
			})
		},
	}
}
