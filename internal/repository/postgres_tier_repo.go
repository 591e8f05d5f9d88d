package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/encore/internal/model"
)

// PostgresTierProgressRepo はPostgreSQLを使用したティア進捗リポジトリ。
type PostgresTierProgressRepo struct {
	db *sql.DB
}

// NewPostgresTierProgressRepo はPostgresTierProgressRepoを生成する。
func NewPostgresTierProgressRepo(db *sql.DB) *PostgresTierProgressRepo {
	return &PostgresTierProgressRepo{db: db}
}

const tierProgressColumns = `id, user_id, attendance, spend_eur, tier, created_at, updated_at`

// scanTierProgress は1行分のティア進捗をスキャンする。
func scanTierProgress(row *sql.Row) (*model.TierProgress, error) {
	p := &model.TierProgress{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.Attendance, &p.SpendEur, &p.Tier,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ティア進捗の取得に失敗しました: %w", err)
	}
	return p, nil
}

// FindByUserID は指定ユーザーのティア進捗を取得する。見つからない場合はnilを返す。
func (r *PostgresTierProgressRepo) FindByUserID(ctx context.Context, userID string) (*model.TierProgress, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tierProgressColumns+` FROM tier_progress WHERE user_id = $1`, userID)
	return scanTierProgress(row)
}

// EnsureForUser はユーザーのティア進捗行がなければゼロ値で作成し、現在の進捗を返す。
// ON CONFLICT DO NOTHINGの後に再取得することで、並行作成でも単一行に収束する。
func (r *PostgresTierProgressRepo) EnsureForUser(ctx context.Context, userID string) (*model.TierProgress, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tier_progress (id, user_id, attendance, spend_eur, tier, created_at, updated_at)
		 VALUES ($1, $2, 0, 0, 0, $3, $3)
		 ON CONFLICT (user_id) DO NOTHING`,
		uuid.New().String(), userID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("ティア進捗の初期化に失敗しました: %w", err)
	}
	return r.FindByUserID(ctx, userID)
}

// AddProgress は視聴回数と累計購入額を加算し、更新後の進捗を返す。
// 行が存在しない場合はゼロ値から作成して加算する。
func (r *PostgresTierProgressRepo) AddProgress(ctx context.Context, userID string, attendanceDelta int, spendDelta float64) (*model.TierProgress, error) {
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO tier_progress (id, user_id, attendance, spend_eur, tier, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 0, $5, $5)
		 ON CONFLICT (user_id) DO UPDATE SET
		     attendance = tier_progress.attendance + EXCLUDED.attendance,
		     spend_eur = tier_progress.spend_eur + EXCLUDED.spend_eur,
		     updated_at = EXCLUDED.updated_at
		 RETURNING `+tierProgressColumns,
		uuid.New().String(), userID, attendanceDelta, spendDelta, now,
	)
	p, err := scanTierProgress(row)
	if err != nil {
		return nil, fmt.Errorf("ティア進捗の加算に失敗しました: %w", err)
	}
	return p, nil
}

// RaiseTier はtierを単調に引き上げる。保存されるのはmax(現在値, newTier)で、
// 並行した再計算があってもtierが下がることはない。
func (r *PostgresTierProgressRepo) RaiseTier(ctx context.Context, userID string, newTier int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tier_progress
		 SET tier = GREATEST(tier, $2), updated_at = now()
		 WHERE user_id = $1`,
		userID, newTier,
	)
	if err != nil {
		return fmt.Errorf("ティアの更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TierProgressRepository = (*PostgresTierProgressRepo)(nil)
