package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseAmount は "$3,200" のような通貨表記の金額を最小通貨単位(セント)に変換します
// 数字とドット以外の文字を取り除いてから最も近いセントに丸めるため、丸め誤差は許容します
func ParseAmount(s string) (int64, error) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, fmt.Errorf("%w: %q has no digits", ErrInvalidAmount, s)
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	scaled := math.Round(value * 100)
	if scaled >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q is too large", ErrInvalidAmount, s)
	}
	minor := int64(scaled)
	if minor <= 0 {
		return 0, fmt.Errorf("%w: %q must be positive", ErrInvalidAmount, s)
	}
	return minor, nil
}

// FormatAmount は最小通貨単位の金額を "$1,200.50" 形式に整形します
// 端数がない場合は "$3,200" のようにセントを省略します
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}

	whole := strconv.FormatInt(minor/100, 10)
	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}

	if cents := minor % 100; cents != 0 {
		return fmt.Sprintf("%s$%s.%02d", sign, grouped.String(), cents)
	}
	return fmt.Sprintf("%s$%s", sign, grouped.String())
}

// AmountInput は通貨表記の文字列、または最小通貨単位の整数として渡される金額です
type AmountInput struct {
	Formatted  string
	MinorUnits int64
}

// UnmarshalJSON は文字列と整数の両方を受け付けます
func (a *AmountInput) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		a.Formatted = s
		a.MinorUnits = 0
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: amount must be a string or an integer", ErrInvalidAmount)
	}
	minor, err := n.Int64()
	if err != nil {
		return fmt.Errorf("%w: integer amounts are minor units", ErrInvalidAmount)
	}
	a.Formatted = ""
	a.MinorUnits = minor
	return nil
}

// MarshalJSON は受け取った形式のまま出力します
func (a AmountInput) MarshalJSON() ([]byte, error) {
	if a.Formatted != "" {
		return json.Marshal(a.Formatted)
	}
	return json.Marshal(a.MinorUnits)
}

// Minor は金額を最小通貨単位で返します
func (a AmountInput) Minor() (int64, error) {
	if a.Formatted != "" {
		return ParseAmount(a.Formatted)
	}
	if a.MinorUnits <= 0 {
		return 0, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	return a.MinorUnits, nil
}
