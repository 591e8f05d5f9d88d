// Package tier はファンのティア進捗判定と進捗イベントの適用を提供する。
package tier

import (
	"fmt"

	"github.com/hitoshi/encore/internal/model"
)

// Threshold は1ティア分の到達条件を表す。
// 上位ティアは視聴回数・累計購入額の両方で下位ティア以上の値を要求する。
type Threshold struct {
	Tier       int
	Name       string
	Attendance int
	SpendEur   float64
}

// DefaultThresholds は既定の3段階ティア構成。
var DefaultThresholds = []Threshold{
	{Tier: 1, Name: "ファン", Attendance: 3, SpendEur: 0},
	{Tier: 2, Name: "コアファン", Attendance: 10, SpendEur: 50},
	{Tier: 3, Name: "レジェンド", Attendance: 20, SpendEur: 150},
}

// Evaluate は(視聴回数, 累計購入額)から各ティアの判定結果を昇順で返す。
// 純粋関数で副作用はなく、失敗しない。ティアの条件はすべてAND判定で、
// いずれかの条件を満たさない場合そのティアは未到達になる。
func Evaluate(attendance int, spendEur float64) []model.TierStatus {
	return EvaluateWith(DefaultThresholds, attendance, spendEur)
}

// EvaluateWith は指定した閾値構成で判定する。
func EvaluateWith(thresholds []Threshold, attendance int, spendEur float64) []model.TierStatus {
	results := make([]model.TierStatus, len(thresholds))
	for i, th := range thresholds {
		unlocked := attendance >= th.Attendance && spendEur >= th.SpendEur
		results[i] = model.TierStatus{
			Tier:     th.Tier,
			Name:     th.Name,
			Unlocked: unlocked,
			Reason:   reason(th, attendance, spendEur),
		}
	}
	return results
}

// HighestUnlocked は判定結果から到達済みの最高ティア番号を返す。
// どのティアにも到達していない場合は0を返す。
func HighestUnlocked(statuses []model.TierStatus) int {
	highest := 0
	for _, st := range statuses {
		if st.Unlocked && st.Tier > highest {
			highest = st.Tier
		}
	}
	return highest
}

// reason は閾値に対する進捗の説明文を生成する。
func reason(th Threshold, attendance int, spendEur float64) string {
	if th.SpendEur > 0 {
		return fmt.Sprintf("視聴 %d/%d 回、購入 €%.2f/€%.2f", attendance, th.Attendance, spendEur, th.SpendEur)
	}
	return fmt.Sprintf("視聴 %d/%d 回", attendance, th.Attendance)
}
