// Package model はドメインモデルを定義する。
package model

import "time"

// StoreItem はバンド運営が管理するグッズ商品を表す。
// DescriptionはサニタイズされたHTML。
type StoreItem struct {
	ID          string
	Name        string
	Description string
	PriceEur    float64
	ImageURL    string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Concert はコンサート公演を表す。
// チケット商品のproduct_idは "ticket-<ConcertID>" 形式でこのレコードを参照する。
type Concert struct {
	ID          string
	Title       string
	Description string
	Venue       string
	StartsAt    time.Time
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Live は配信ライブを表す。
// livesyncワーカーがバンドの公開フィードから取り込む場合、
// FeedGUIDに動画のGUIDが入り、同一GUIDの再取り込みは更新になる。
type Live struct {
	ID          string
	Title       string
	Description string
	VideoURL    string
	FeedGUID    string
	StartsAt    *time.Time
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
