package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/encore/internal/model"
)

// PostgresNftGrantRepo はPostgreSQLを使用したNFTグラントリポジトリ。
// 同一起源タプルの冪等性は部分ユニークインデックスが担保し、
// Createのユニーク制約違反は呼び出し元が既存グラントへのフォールバックに使う。
type PostgresNftGrantRepo struct {
	db *sql.DB
}

// NewPostgresNftGrantRepo はPostgresNftGrantRepoを生成する。
func NewPostgresNftGrantRepo(db *sql.DB) *PostgresNftGrantRepo {
	return &PostgresNftGrantRepo{db: db}
}

const nftGrantColumns = `id, user_id, asset_id, origin_type, origin_ref, status, error_reason, created_at, minted_at`

func scanNftGrant(row rowScanner) (*model.NftGrant, error) {
	grant := &model.NftGrant{}
	var mintedAt sql.NullTime
	err := row.Scan(
		&grant.ID, &grant.UserID, &grant.AssetID,
		&grant.OriginType, &grant.OriginRef, &grant.Status,
		&grant.ErrorReason, &grant.CreatedAt, &mintedAt,
	)
	if err != nil {
		return nil, err
	}
	if mintedAt.Valid {
		grant.MintedAt = &mintedAt.Time
	}
	return grant, nil
}

// FindByID は指定IDのグラントを取得する。見つからない場合はnilを返す。
// URLパラメータ経由の不正な形式のIDはエラーではなくnot-found扱いになる。
func (r *PostgresNftGrantRepo) FindByID(ctx context.Context, id string) (*model.NftGrant, error) {
	if !isUUID(id) {
		return nil, nil
	}
	grant, err := scanNftGrant(r.db.QueryRowContext(ctx,
		`SELECT `+nftGrantColumns+` FROM nft_grants WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("グラントの取得に失敗しました: %w", err)
	}
	return grant, nil
}

// FindActiveByTuple は(user_id, asset_id, origin_type, origin_ref)に一致する
// FAILED以外のグラントを検索する。見つからない場合はnilを返す。
func (r *PostgresNftGrantRepo) FindActiveByTuple(ctx context.Context, userID, assetID string, originType model.GrantOrigin, originRef string) (*model.NftGrant, error) {
	grant, err := scanNftGrant(r.db.QueryRowContext(ctx,
		`SELECT `+nftGrantColumns+` FROM nft_grants
		 WHERE user_id = $1 AND asset_id = $2 AND origin_type = $3 AND origin_ref = $4
		   AND status <> 'FAILED'`,
		userID, assetID, originType, originRef))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("グラントの検索に失敗しました: %w", err)
	}
	return grant, nil
}

// Create はグラントを作成する。
func (r *PostgresNftGrantRepo) Create(ctx context.Context, grant *model.NftGrant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO nft_grants (id, user_id, asset_id, origin_type, origin_ref, status, error_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		grant.ID, grant.UserID, grant.AssetID,
		grant.OriginType, grant.OriginRef, grant.Status,
		grant.ErrorReason, grant.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("グラントの作成に失敗しました: %w", err)
	}
	return nil
}

// ListByUser は指定ユーザーのグラント一覧を作成日時降順で返す。
func (r *PostgresNftGrantRepo) ListByUser(ctx context.Context, userID string) ([]*model.NftGrant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+nftGrantColumns+` FROM nft_grants
		 WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("グラント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var grants []*model.NftGrant
	for rows.Next() {
		grant, err := scanNftGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("グラントのスキャンに失敗しました: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("グラント一覧の読み取りに失敗しました: %w", err)
	}
	return grants, nil
}

// MarkMinted はグラントをMINTEDへ遷移させ、minted_atを刻み、error_reasonを消去する。
func (r *PostgresNftGrantRepo) MarkMinted(ctx context.Context, id string, mintedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE nft_grants SET status = 'MINTED', minted_at = $2, error_reason = '' WHERE id = $1`,
		id, mintedAt,
	)
	if err != nil {
		return fmt.Errorf("グラントのMINTED遷移に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("grant not found: %s", id)
	}
	return nil
}

// MarkFailed はグラントをFAILEDへ遷移させ、失敗理由を記録する。
func (r *PostgresNftGrantRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE nft_grants SET status = 'FAILED', error_reason = $2 WHERE id = $1`,
		id, reason,
	)
	if err != nil {
		return fmt.Errorf("グラントのFAILED遷移に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("grant not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ NftGrantRepository = (*PostgresNftGrantRepo)(nil)
