package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/encore/internal/model"
)

// PostgresCollectibleRepo はPostgreSQLを使用したNFTコレクティブルリポジトリ。
type PostgresCollectibleRepo struct {
	db *sql.DB
}

// NewPostgresCollectibleRepo はPostgresCollectibleRepoを生成する。
func NewPostgresCollectibleRepo(db *sql.DB) *PostgresCollectibleRepo {
	return &PostgresCollectibleRepo{db: db}
}

const collectibleColumns = `id, user_id, wallet_address, asset_id, grant_id, token_id, tx_hash, chain_id, mint_status, minted_at`

func scanCollectible(row rowScanner) (*model.NftCollectible, error) {
	c := &model.NftCollectible{}
	err := row.Scan(
		&c.ID, &c.UserID, &c.WalletAddress, &c.AssetID, &c.GrantID,
		&c.TokenID, &c.TxHash, &c.ChainID, &c.MintStatus, &c.MintedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create はコレクティブルを作成する。
func (r *PostgresCollectibleRepo) Create(ctx context.Context, c *model.NftCollectible) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO nft_collectibles (id, user_id, wallet_address, asset_id, grant_id, token_id, tx_hash, chain_id, mint_status, minted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.UserID, c.WalletAddress, c.AssetID, c.GrantID,
		c.TokenID, c.TxHash, c.ChainID, c.MintStatus, c.MintedAt,
	)
	if err != nil {
		return fmt.Errorf("コレクティブルの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByGrantID は由来グラントIDでコレクティブルを検索する。見つからない場合はnilを返す。
func (r *PostgresCollectibleRepo) FindByGrantID(ctx context.Context, grantID string) (*model.NftCollectible, error) {
	c, err := scanCollectible(r.db.QueryRowContext(ctx,
		`SELECT `+collectibleColumns+` FROM nft_collectibles WHERE grant_id = $1`, grantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コレクティブルの取得に失敗しました: %w", err)
	}
	return c, nil
}

// ListByUser は指定ユーザーのコレクティブル一覧をミント日時降順で返す。
func (r *PostgresCollectibleRepo) ListByUser(ctx context.Context, userID string) ([]*model.NftCollectible, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+collectibleColumns+` FROM nft_collectibles
		 WHERE user_id = $1 ORDER BY minted_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("コレクティブル一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var collectibles []*model.NftCollectible
	for rows.Next() {
		c, err := scanCollectible(rows)
		if err != nil {
			return nil, fmt.Errorf("コレクティブルのスキャンに失敗しました: %w", err)
		}
		collectibles = append(collectibles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コレクティブル一覧の読み取りに失敗しました: %w", err)
	}
	return collectibles, nil
}

// ExistsByUserAndAsset は指定ユーザーが指定アセットのコレクティブルを
// 1件以上保有しているかを返す。
func (r *PostgresCollectibleRepo) ExistsByUserAndAsset(ctx context.Context, userID, assetID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM nft_collectibles WHERE user_id = $1 AND asset_id = $2)`,
		userID, assetID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("コレクティブルの存在確認に失敗しました: %w", err)
	}
	return exists, nil
}

// NextTokenID はシーケンスから次のトークンIDを採番する。
// プロセス再起動をまたいで単調増加し、並行採番でも重複しない。
func (r *PostgresCollectibleRepo) NextTokenID(ctx context.Context) (int64, error) {
	var tokenID int64
	err := r.db.QueryRowContext(ctx, `SELECT nextval('nft_token_id_seq')`).Scan(&tokenID)
	if err != nil {
		return 0, fmt.Errorf("トークンIDの採番に失敗しました: %w", err)
	}
	return tokenID, nil
}

// compile-time interface check
var _ CollectibleRepository = (*PostgresCollectibleRepo)(nil)
