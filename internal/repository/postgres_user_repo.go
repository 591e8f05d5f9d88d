package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/encore/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, email, name, picture_url, role, provider, onboarded, created_at, updated_at`

// scanUser は1行分のユーザーをスキャンする。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.PictureURL,
		&user.Role, &user.Provider, &user.Onboarded,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// FindByEmail は正規化済みメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
// tier_progressの初期行（ゼロ値）も同時に作成する。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// ユーザーを作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, name, picture_url, role, provider, onboarded, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Email, user.Name, user.PictureURL,
		user.Role, user.Provider, user.Onboarded,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	// identityを作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}

	// ティア進捗の初期行を作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO tier_progress (id, user_id, attendance, spend_eur, tier, created_at, updated_at)
		 VALUES ($1, $2, 0, 0, 0, $3, $3)`,
		uuid.New().String(), user.ID, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tier progress: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// UpsertByEmail は正規化済みメールアドレスをキーにユーザーを作成または更新する。
// 既存ユーザーの場合は表示名・アイコンを空でない値でのみ上書きする。
func (r *PostgresUserRepo) UpsertByEmail(ctx context.Context, email, name, pictureURL, provider string) (*model.User, error) {
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, email, name, picture_url, role, provider, onboarded, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'fan', $5, FALSE, $6, $6)
		 ON CONFLICT (email) DO UPDATE SET
		     name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END,
		     picture_url = CASE WHEN EXCLUDED.picture_url <> '' THEN EXCLUDED.picture_url ELSE users.picture_url END,
		     updated_at = EXCLUDED.updated_at
		 RETURNING `+userColumns,
		uuid.New().String(), email, name, pictureURL, provider, now,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("ユーザーのアップサートに失敗しました: %w", err)
	}
	return user, nil
}

// SetOnboarded はオンボーディング完了フラグを設定する。
func (r *PostgresUserRepo) SetOnboarded(ctx context.Context, id string, onboarded bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET onboarded = $2, updated_at = now() WHERE id = $1`,
		id, onboarded,
	)
	if err != nil {
		return fmt.Errorf("オンボーディングフラグの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
