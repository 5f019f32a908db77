package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mozila9822/website-VOY-sub000/internal/app"
	"github.com/mozila9822/website-VOY-sub000/internal/model"
	"github.com/mozila9822/website-VOY-sub000/internal/service/checkout"
)

type checkoutFlags struct {
	name          string
	email         string
	date          string
	item          string
	amount        string
	method        string
	savedCardID   string
	paymentMethod string
}

func checkoutCmd() *cobra.Command {
	var f checkoutFlags

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "顧客に代わってチェックアウトを実行します",
		Long: `予約情報と支払い方法を指定してチェックアウトを最後まで進めます。
新規カードの場合は --payment-method にトークン化済みの支払い手段ID (例: pm_card_visa) を指定します。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			method, err := parseMethod(f.method)
			if err != nil {
				return err
			}
			if method == model.PaymentMethodNewCard && f.paymentMethod == "" {
				return fmt.Errorf("%w: --payment-method is required for new_card", model.ErrValidationFailed)
			}

			return withApp(cmd, func(ctx context.Context, a *app.App, logger *logrus.Logger) error {
				return runCheckout(ctx, cmd, a.CheckoutDependencies(logger), a.Broker, f, method)
			})
		},
	}

	cmd.Flags().StringVar(&f.name, "name", "", "顧客名")
	cmd.Flags().StringVar(&f.email, "email", "", "顧客のメールアドレス")
	cmd.Flags().StringVar(&f.date, "date", "", "予約日 (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.item, "item", "", "商品名")
	cmd.Flags().StringVar(&f.amount, "amount", "", "金額 (例: $1,234.50)")
	cmd.Flags().StringVarP(&f.method, "method", "m", "", "支払い方法 (stored_card, new_card, bank_transfer)")
	cmd.Flags().StringVar(&f.savedCardID, "card-id", "", "保存済みカードのID。省略時は最初のカード")
	cmd.Flags().StringVar(&f.paymentMethod, "payment-method", "", "新規カードの支払い手段ID")
	for _, name := range []string{"name", "email", "item", "amount", "method"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func parseMethod(s string) (model.PaymentMethod, error) {
	switch m := model.PaymentMethod(s); m {
	case model.PaymentMethodStoredCard, model.PaymentMethodNewCard, model.PaymentMethodBankTransfer:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown payment method %q", model.ErrValidationFailed, s)
}

func runCheckout(ctx context.Context, cmd *cobra.Command, deps checkout.Dependencies, charger checkout.IntentCharger, f checkoutFlags, method model.PaymentMethod) error {
	flow := checkout.NewFlow(deps, checkout.Item{Title: f.item, Amount: f.amount})
	out := cmd.OutOrStdout()

	opts, err := flow.Open(ctx, checkout.Details{Name: f.name, Email: f.email, Date: f.date})
	if err != nil {
		if errors.Is(err, model.ErrNoPaymentMethods) {
			return fmt.Errorf("%w: %s", err, opts.Message)
		}
		return err
	}
	fmt.Fprintf(out, "Available methods: %v\n", opts.Methods)

	if err := flow.SelectMethod(ctx, checkout.Selection{Method: method, SavedCardID: f.savedCardID}); err != nil {
		return err
	}

	var entry checkout.CardEntry
	if method == model.PaymentMethodNewCard {
		entry = checkout.NewGatewayCardEntry(charger, f.paymentMethod)
	}

	outcome, err := flow.Submit(ctx, entry)
	if err != nil {
		var cardErr *checkout.CardError
		switch {
		case errors.As(err, &cardErr):
			return fmt.Errorf("%s: %w", cardErr.Message, err)
		case errors.Is(err, checkout.ErrPaymentPending):
			fmt.Fprintf(out, "Payment %s requires further action by the customer\n", flow.Intent().ReferenceID)
			return nil
		}
		return fmt.Errorf("checkout ended in state %s: %w", flow.State(), err)
	}

	fmt.Fprintln(out, outcome.Message)
	return printJSON(cmd, outcome)
}
