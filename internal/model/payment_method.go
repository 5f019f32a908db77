package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Provider は決済プロバイダの種類です。プロバイダの集合はデプロイ時に固定されます
type Provider string

const (
	ProviderStripe       Provider = "stripe"
	ProviderStoredCard   Provider = "stored_card"
	ProviderBankTransfer Provider = "bank_transfer"
)

// Providers は利用可能な全プロバイダです
var Providers = []Provider{ProviderStripe, ProviderStoredCard, ProviderBankTransfer}

var validate = validator.New()

// ParseProvider はパスなどから受け取ったプロバイダ名を解釈します
func ParseProvider(s string) (Provider, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _, p := range Providers {
		if string(p) == normalized {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrProviderNotFound, s)
}

// ProviderConfig はプロバイダごとの追加設定です
// プロバイダ名をタグとした直和型として扱い、各バリアントが自身のフィールドを持ちます
type ProviderConfig interface {
	Provider() Provider
}

// StripeConfig は決済ゲートウェイの追加設定です
type StripeConfig struct {
	Currency            string `json:"currency,omitempty" validate:"omitempty,len=3,lowercase"`
	StatementDescriptor string `json:"statementDescriptor,omitempty" validate:"max=22"`
}

func (*StripeConfig) Provider() Provider { return ProviderStripe }

// StoredCardConfig は保存済みカード決済の追加設定です
type StoredCardConfig struct {
	Label string `json:"label,omitempty" validate:"max=64"`
}

func (*StoredCardConfig) Provider() Provider { return ProviderStoredCard }

// BankTransferConfig は銀行振込の口座情報と振込案内です
type BankTransferConfig struct {
	BankName      string `json:"bankName" validate:"required"`
	AccountName   string `json:"accountName" validate:"required"`
	AccountNumber string `json:"accountNumber" validate:"required"`
	RoutingNumber string `json:"routingNumber,omitempty"`
	SWIFT         string `json:"swift,omitempty" validate:"omitempty,min=8,max=11"`
	Instructions  string `json:"instructions,omitempty"`
}

func (*BankTransferConfig) Provider() Provider { return ProviderBankTransfer }

// PaymentSettings はプロバイダごとの設定です
type PaymentSettings struct {
	Provider       Provider
	Enabled        bool
	PublishableKey string
	SecretKey      string
	Config         ProviderConfig
	UpdatedAt      time.Time
}

// PaymentSettingsPatch は設定の部分更新です。未指定のフィールドは変更しません
type PaymentSettingsPatch struct {
	Enabled          *bool           `json:"enabled"`
	PublishableKey   *string         `json:"publishableKey"`
	SecretKey        *string         `json:"secretKey"`
	AdditionalConfig json.RawMessage `json:"additionalConfig"`
}

// PublicPaymentSettings は顧客に返してよい項目のみを持つ設定です
type PublicPaymentSettings struct {
	Enabled          bool           `json:"enabled"`
	PublishableKey   string         `json:"publishableKey,omitempty"`
	AdditionalConfig ProviderConfig `json:"additionalConfig,omitempty"`
}

// AdminPaymentSettings は管理画面向けの設定です。シークレットキーはマスクします
type AdminPaymentSettings struct {
	Provider         Provider       `json:"provider"`
	Enabled          bool           `json:"enabled"`
	PublishableKey   string         `json:"publishableKey,omitempty"`
	SecretKey        string         `json:"secretKey,omitempty"`
	AdditionalConfig ProviderConfig `json:"additionalConfig,omitempty"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// NewProviderConfig はプロバイダに対応する空の設定を返します
func NewProviderConfig(p Provider) (ProviderConfig, error) {
	switch p {
	case ProviderStripe:
		return &StripeConfig{}, nil
	case ProviderStoredCard:
		return &StoredCardConfig{}, nil
	case ProviderBankTransfer:
		return &BankTransferConfig{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, p)
}

// DecodeProviderConfig は current を基にして raw のフィールドを上書きした設定を返します
// 未知のフィールドは設定ミスとして拒否します。current は変更しません
func DecodeProviderConfig(p Provider, current ProviderConfig, raw []byte) (ProviderConfig, error) {
	var cfg ProviderConfig
	switch p {
	case ProviderStripe:
		c := StripeConfig{}
		if cur, ok := current.(*StripeConfig); ok && cur != nil {
			c = *cur
		}
		cfg = &c
	case ProviderStoredCard:
		c := StoredCardConfig{}
		if cur, ok := current.(*StoredCardConfig); ok && cur != nil {
			c = *cur
		}
		cfg = &c
	case ProviderBankTransfer:
		c := BankTransferConfig{}
		if cur, ok := current.(*BankTransferConfig); ok && cur != nil {
			c = *cur
		}
		cfg = &c
	default:
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, p)
	}

	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return cfg, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: additionalConfig for %s: %v", ErrValidationFailed, p, err)
	}
	return cfg, nil
}

// Validate は有効化されているプロバイダの設定を検証します
func (s *PaymentSettings) Validate() error {
	if s.Config == nil || s.Config.Provider() != s.Provider {
		return fmt.Errorf("%w: additionalConfig does not belong to %s", ErrValidationFailed, s.Provider)
	}
	if !s.Enabled {
		return nil
	}
	if s.Provider == ProviderStripe && s.SecretKey == "" {
		return fmt.Errorf("%w: stripe requires a secret key when enabled", ErrValidationFailed)
	}
	if err := validate.Struct(s.Config); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrValidationFailed, s.Provider, err)
	}
	return nil
}

// Public は顧客向けの設定を返します
func (s *PaymentSettings) Public() PublicPaymentSettings {
	return PublicPaymentSettings{
		Enabled:          s.Enabled,
		PublishableKey:   s.PublishableKey,
		AdditionalConfig: s.Config,
	}
}

// Admin は管理画面向けの設定を返します
func (s *PaymentSettings) Admin() AdminPaymentSettings {
	return AdminPaymentSettings{
		Provider:         s.Provider,
		Enabled:          s.Enabled,
		PublishableKey:   s.PublishableKey,
		SecretKey:        MaskSecret(s.SecretKey),
		AdditionalConfig: s.Config,
		UpdatedAt:        s.UpdatedAt,
	}
}

// MaskSecret はシークレットの末尾4文字以外を伏せます
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
