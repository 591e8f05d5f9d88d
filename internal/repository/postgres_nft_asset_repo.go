package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/encore/internal/model"
)

// PostgresNftAssetRepo はPostgreSQLを使用したNFTアセットカタログリポジトリ。
type PostgresNftAssetRepo struct {
	db *sql.DB
}

// NewPostgresNftAssetRepo はPostgresNftAssetRepoを生成する。
func NewPostgresNftAssetRepo(db *sql.DB) *PostgresNftAssetRepo {
	return &PostgresNftAssetRepo{db: db}
}

const nftAssetColumns = `id, code, name, description, image_url, rarity, tier_level, active, created_at`

func scanNftAsset(row rowScanner) (*model.NftAsset, error) {
	asset := &model.NftAsset{}
	var tierLevel sql.NullInt64
	err := row.Scan(
		&asset.ID, &asset.Code, &asset.Name, &asset.Description,
		&asset.ImageURL, &asset.Rarity, &tierLevel, &asset.Active, &asset.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tierLevel.Valid {
		level := int(tierLevel.Int64)
		asset.TierLevel = &level
	}
	return asset, nil
}

// FindByID は指定IDのアセットを取得する。見つからない場合はnilを返す。
func (r *PostgresNftAssetRepo) FindByID(ctx context.Context, id string) (*model.NftAsset, error) {
	asset, err := scanNftAsset(r.db.QueryRowContext(ctx,
		`SELECT `+nftAssetColumns+` FROM nft_assets WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アセットの取得に失敗しました: %w", err)
	}
	return asset, nil
}

// FindByCode はコードでアセットを検索する。見つからない場合はnilを返す。
func (r *PostgresNftAssetRepo) FindByCode(ctx context.Context, code string) (*model.NftAsset, error) {
	asset, err := scanNftAsset(r.db.QueryRowContext(ctx,
		`SELECT `+nftAssetColumns+` FROM nft_assets WHERE code = $1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アセットの取得に失敗しました: %w", err)
	}
	return asset, nil
}

// FindActiveByTierLevel は指定ティアに紐付く有効なアセットを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresNftAssetRepo) FindActiveByTierLevel(ctx context.Context, tierLevel int) (*model.NftAsset, error) {
	asset, err := scanNftAsset(r.db.QueryRowContext(ctx,
		`SELECT `+nftAssetColumns+` FROM nft_assets
		 WHERE tier_level = $1 AND active = TRUE
		 ORDER BY created_at ASC LIMIT 1`,
		tierLevel))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ティア対応アセットの取得に失敗しました: %w", err)
	}
	return asset, nil
}

// List はアセット一覧を作成日時昇順で返す。
func (r *PostgresNftAssetRepo) List(ctx context.Context, activeOnly bool) ([]*model.NftAsset, error) {
	query := `SELECT ` + nftAssetColumns + ` FROM nft_assets`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("アセット一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var assets []*model.NftAsset
	for rows.Next() {
		asset, err := scanNftAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("アセットのスキャンに失敗しました: %w", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アセット一覧の読み取りに失敗しました: %w", err)
	}
	return assets, nil
}

// compile-time interface check
var _ NftAssetRepository = (*PostgresNftAssetRepo)(nil)
