// Package model はドメインモデルを定義する。
package model

import "time"

// SaleStatus は売上レコードの状態を表す。
type SaleStatus string

const (
	// SaleStatusPending は決済処理中の状態。
	SaleStatusPending SaleStatus = "PENDING"
	// SaleStatusPaid は決済完了の状態。
	SaleStatusPaid SaleStatus = "PAID"
	// SaleStatusFailed は決済失敗・キャンセルの状態。
	SaleStatusFailed SaleStatus = "FAILED"
	// SaleStatusRefunded は返金済みの状態。
	SaleStatusRefunded SaleStatus = "REFUNDED"
)

// ItemType は販売商品の種別を表す。
type ItemType string

const (
	// ItemTypeTicket はチケット商品（product_idが "ticket-" で始まる）。
	ItemTypeTicket ItemType = "ticket"
	// ItemTypeMerch はグッズ商品。
	ItemTypeMerch ItemType = "merch"
)

// Sale は決済プロバイダーのイベントから取り込んだ購入記録を表す。
// payment_intent_idまたはstripe_session_idの少なくとも一方を持ち、
// それぞれが自然な重複排除キーになる（同じ外部IDのイベント再取り込みは
// 既存行の更新になる）。
// PaidAtは最初にPAIDへ遷移した時刻で、以後のステータス変化で消されない。
type Sale struct {
	ID              string
	CreatedAt       time.Time
	PaidAt          *time.Time
	UserEmail       string
	CustomerEmail   string
	CustomerName    string
	ProductID       string
	ProductName     string
	ItemType        ItemType
	AmountEur       float64
	Status          SaleStatus
	StripeSessionID string
	PaymentIntentID string
}

// RegistrationStatus はコンサート参加登録の状態を表す。
type RegistrationStatus string

const (
	// RegistrationStatusPurchased はチケット購入による登録完了状態。
	RegistrationStatusPurchased RegistrationStatus = "PURCHASED"
)

// RegistrationSource は参加登録の発生源を表す。
type RegistrationSource string

const (
	// RegistrationSourcePurchase はチケット購入由来の登録。
	RegistrationSourcePurchase RegistrationSource = "PURCHASE"
)

// ConcertRegistration はコンサートへの参加登録を表す。
// (concert_id, user_email)で一意。チケット売上がPAIDへ遷移し、
// 参照先コンサートが存在する場合に作成または更新される。
type ConcertRegistration struct {
	ID        string
	CreatedAt time.Time
	UserEmail string
	UserName  string
	Status    RegistrationStatus
	Source    RegistrationSource
	ConcertID string
	SaleID    string
}

// PaymentEvent は決済プロバイダーから受け取った正規化前のイベントを表す。
// Sale Reconcilerの入力。ステータスはプロバイダーの語彙のまま保持し、
// 取り込み時に内部のSaleStatusへマッピングされる。
type PaymentEvent struct {
	BuyerEmail      string
	CustomerEmail   string
	CustomerName    string
	ProductID       string
	ProductName     string
	AmountEur       float64
	PaymentIntentID string
	SessionID       string
	ProviderStatus  string
	CreatedAt       time.Time
}
