package model

// IntentStatusSucceeded はゲートウェイ側で決済が完了したことを示すステータスです
const IntentStatusSucceeded = "succeeded"

// IntentMetadata は決済インテントに付与する顧客・商品情報です
type IntentMetadata struct {
	CustomerName  string `json:"customerName"`
	CustomerEmail string `json:"customerEmail"`
	ItemTitle     string `json:"itemTitle"`
}

// Map はゲートウェイに渡すメタデータのキーと値を返します
func (m IntentMetadata) Map() map[string]string {
	out := make(map[string]string, 3)
	if m.CustomerName != "" {
		out["customer_name"] = m.CustomerName
	}
	if m.CustomerEmail != "" {
		out["customer_email"] = m.CustomerEmail
	}
	if m.ItemTitle != "" {
		out["item_title"] = m.ItemTitle
	}
	return out
}

// PaymentIntent はゲートウェイが保持する決済インテントのうちクライアントに渡す部分です
// ClientSecret はログやDBに残してはいけません
type PaymentIntent struct {
	ReferenceID  string `json:"paymentIntentId"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"-"`
	Currency     string `json:"-"`
}

// IntentStatus はゲートウェイに問い合わせた決済インテントの状態です
type IntentStatus struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Succeeded は決済が完了しているかを返します
func (s IntentStatus) Succeeded() bool {
	return s.Status == IntentStatusSucceeded
}

// SavedCard は顧客が保存済みのカードです。この系では参照のみ行います
type SavedCard struct {
	ID            string `json:"id" db:"id"`
	CustomerEmail string `json:"-" db:"customer_email"`
	Brand         string `json:"brand" db:"brand"`
	Last4         string `json:"last4" db:"last4"`
	ExpMonth      int    `json:"expMonth" db:"exp_month"`
	ExpYear       int    `json:"expYear" db:"exp_year"`
}
