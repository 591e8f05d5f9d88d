// Package model はドメインモデルを定義する。
package model

import "time"

// Rarity はNFTアセットのレアリティを表す。
type Rarity string

const (
	// RarityFan は通常レアリティ。
	RarityFan Rarity = "fan"
	// RarityPremium はプレミアムレアリティ。
	RarityPremium Rarity = "premium"
	// RarityLegendary は最高レアリティ。
	RarityLegendary Rarity = "legendary"
)

// NftAsset はミント可能なアセットテンプレートの静的カタログエントリを表す。
// TierLevelが設定されている場合、該当ティア到達時のグラント対象になる。
type NftAsset struct {
	ID          string
	Code        string // 一意のコード（"tier-1", "superfan-pass" 等）
	Name        string
	Description string
	ImageURL    string
	Rarity      Rarity
	TierLevel   *int
	Active      bool
	CreatedAt   time.Time
}

// GrantOrigin はグラントの発生起源の種別を表す。
type GrantOrigin string

const (
	// GrantOriginTier はティア到達によるグラント。
	GrantOriginTier GrantOrigin = "TIER"
	// GrantOriginFullLive はライブ完走視聴によるグラント。
	GrantOriginFullLive GrantOrigin = "FULL_LIVE"
	// GrantOriginCampaign は運営キャンペーンによるグラント。
	GrantOriginCampaign GrantOrigin = "CAMPAIGN"
)

// GrantStatus はグラントの状態を表す。
type GrantStatus string

const (
	// GrantStatusPending はミント待ちの状態。
	GrantStatusPending GrantStatus = "PENDING"
	// GrantStatusMinted はミント完了の状態。
	GrantStatusMinted GrantStatus = "MINTED"
	// GrantStatusFailed はミント失敗の状態。再グラントをブロックしない。
	GrantStatusFailed GrantStatus = "FAILED"
)

// NftGrant はユーザーへの1件のミント権を表す。
// (user_id, asset_id, origin_type, origin_ref)の組に対して
// FAILED以外のグラントは同時に1件しか存在しない（冪等な作成）。
type NftGrant struct {
	ID          string
	UserID      string
	AssetID     string
	OriginType  GrantOrigin
	OriginRef   string // 起源イベントの参照（ティアIDやライブID等の不透明な文字列）
	Status      GrantStatus
	ErrorReason string
	CreatedAt   time.Time
	MintedAt    *time.Time
}

// MintStatus はコレクティブルのミント状態を表す。
type MintStatus string

const (
	// MintStatusMinted はミント済みの状態。
	MintStatusMinted MintStatus = "MINTED"
)

// NftCollectible はクレーム成功によって実現したミント結果を表す。
// TokenIDは単調増加カウンターから採番される。GrantIDは由来グラントへの参照で、
// 同一グラントの再クレームが元のコレクティブルを一意に解決するために使う。
type NftCollectible struct {
	ID            string
	UserID        string
	WalletAddress string
	AssetID       string
	GrantID       string
	TokenID       int64
	TxHash        string
	ChainID       int64
	MintStatus    MintStatus
	MintedAt      time.Time
}

// CustodialWallet はユーザーごとに1つ生成されるカストディアルウォレットを表す。
// 初回のグラントクレーム時に遅延生成される。
type CustodialWallet struct {
	ID        string
	UserID    string
	Address   string
	CreatedAt time.Time
}
