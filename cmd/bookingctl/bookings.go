package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mozila9822/website-VOY-sub000/internal/app"
	"github.com/mozila9822/website-VOY-sub000/internal/model"
)

func bookingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookings",
		Short: "予約台帳の参照と変更",
	}

	cmd.AddCommand(bookingsListCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "get [id]",
		Short: "予約を1件表示します",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App, _ *logrus.Logger) error {
				b, err := a.Ledger.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, b)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "cancel [id]",
		Short: "予約をキャンセルします",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App, _ *logrus.Logger) error {
				b, err := a.Ledger.UpdateStatus(ctx, args[0], model.BookingStatusCancelled)
				if err != nil {
					return err
				}
				return printJSON(cmd, b)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "revenue",
		Short: "確定済み予約の売上を集計します",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App, _ *logrus.Logger) error {
				r, err := a.Ledger.Revenue(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, r)
			})
		},
	})

	return cmd
}

func bookingsListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "予約を一覧表示します",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter model.BookingStatus
			if status != "" {
				s, err := model.ParseBookingStatus(status)
				if err != nil {
					return err
				}
				filter = s
			}

			return withApp(cmd, func(ctx context.Context, a *app.App, _ *logrus.Logger) error {
				var (
					bookings []model.Booking
					err      error
				)
				if filter != "" {
					bookings, err = a.Ledger.ListByStatus(ctx, filter)
				} else {
					bookings, err = a.Ledger.List(ctx)
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for _, b := range bookings {
					fmt.Fprintf(out, "%s  %-10s %-12s %-24s %-20s %s\n", b.ID, b.Status, b.Date, b.Customer, b.Item, b.Amount)
				}
				fmt.Fprintf(out, "%d booking(s)\n", len(bookings))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "ステータスで絞り込み (confirmed, pending, cancelled)")

	return cmd
}
