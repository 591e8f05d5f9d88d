// Package model はドメインモデルを定義する。
package model

import "time"

// AccessStatus はミート&グリートアクセス記録の状態を表す。
type AccessStatus string

const (
	// AccessStatusValid はQRコード発行可能な有効状態。
	AccessStatusValid AccessStatus = "VALID"
	// AccessStatusUsed は入場済みの状態。一度設定されたら戻らない。
	AccessStatusUsed AccessStatus = "USED"
	// AccessStatusExpired は対象イベントの日時経過による失効状態。
	AccessStatusExpired AccessStatus = "EXPIRED"
)

// PassStatus はgetPassクエリが返す導出状態を表す。
// LOCKEDは永続化されない導出ゲートで、対象コレクティブル未所持・
// 有効イベント不在・アセット無効のいずれかで毎回再計算される。
type PassStatus string

const (
	// PassStatusLocked は資格なしの導出状態。
	PassStatusLocked PassStatus = "LOCKED"
	// PassStatusValid はQRコード発行可能な状態。
	PassStatusValid PassStatus = "VALID"
	// PassStatusUsed は入場済みの状態。
	PassStatusUsed PassStatus = "USED"
	// PassStatusExpired はイベント終了による失効状態。
	PassStatusExpired PassStatus = "EXPIRED"
)

// MeetGreetEvent はミート&グリートイベントを表す。
// 同時に有効（active）なイベントは1件のみ運用される。
type MeetGreetEvent struct {
	ID        string
	Title     string
	EventDate time.Time
	Active    bool
	CreatedAt time.Time
}

// MeetGreetAccess はユーザーごとのミート&グリート入場権を表す。
// 対象コレクティブル（スーパーファンパス）所持者の初回状態照会時に
// 現在有効なイベントへ紐付けて遅延生成される。ユーザーごとに1件。
type MeetGreetAccess struct {
	ID        string
	UserID    string
	EventID   string
	Status    AccessStatus
	IssuedAt  time.Time
	UsedAt    *time.Time
}
