// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの役割を表す。
type Role string

const (
	// RoleFan は一般ファンユーザー。
	RoleFan Role = "fan"
	// RoleArtist はバンド運営スタッフ。カタログと特典設定を編集できる。
	RoleArtist Role = "artist"
)

// User はサービス利用ユーザーを表す。
// メールアドレスは正規化（trim + 小文字化）した値を保持する。
// 初回ログインまたは決済イベントで初めてメールアドレスを観測した時点で作成され、
// ログインのたびに表示名・アイコンが更新される。コアロジックからは削除されない。
type User struct {
	ID         string
	Email      string
	Name       string
	PictureURL string
	Role       Role
	Provider   string // 認証プロバイダー（"google" 等）。決済イベント由来の場合は "stripe"
	Onboarded  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
// 将来的に複数のIdP（Google, GitHub等）に対応可能な構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
