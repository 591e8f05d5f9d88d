// Package model はドメインモデルを定義する。
package model

import "time"

// TierProgress はユーザーごとのティア進捗を表す。Userと1対1。
// attendanceはライブ視聴・チェックインなどの対象イベント数、
// spendEurは対象購入金額の累計。
// tierは到達した最高ティア番号で、ライフタイムを通じて単調非減少
// （再計算で下がる値が出ても過去の最大値を維持する）。
type TierProgress struct {
	ID         string
	UserID     string
	Attendance int
	SpendEur   float64
	Tier       int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TierStatus はTier Evaluatorが返すティアごとの判定結果を表す。
type TierStatus struct {
	Tier     int    // ティア番号（1始まり）
	Name     string // 表示名
	Unlocked bool
	Reason   string // 閾値に対する進捗の説明文
}
