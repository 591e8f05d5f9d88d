package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/encore/internal/model"
)

// PostgresWalletRepo はPostgreSQLを使用したカストディアルウォレットリポジトリ。
type PostgresWalletRepo struct {
	db *sql.DB
}

// NewPostgresWalletRepo はPostgresWalletRepoを生成する。
func NewPostgresWalletRepo(db *sql.DB) *PostgresWalletRepo {
	return &PostgresWalletRepo{db: db}
}

// FindByUserID は指定ユーザーのウォレットを取得する。見つからない場合はnilを返す。
func (r *PostgresWalletRepo) FindByUserID(ctx context.Context, userID string) (*model.CustodialWallet, error) {
	wallet := &model.CustodialWallet{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, address, created_at FROM custodial_wallets WHERE user_id = $1`,
		userID,
	).Scan(&wallet.ID, &wallet.UserID, &wallet.Address, &wallet.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ウォレットの取得に失敗しました: %w", err)
	}
	return wallet, nil
}

// Create はウォレットを作成する。user_idのユニーク制約により1ユーザー1件に収束する。
func (r *PostgresWalletRepo) Create(ctx context.Context, wallet *model.CustodialWallet) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO custodial_wallets (id, user_id, address, created_at)
		 VALUES ($1, $2, $3, $4)`,
		wallet.ID, wallet.UserID, wallet.Address, wallet.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ウォレットの作成に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ WalletRepository = (*PostgresWalletRepo)(nil)
