package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/encore/internal/model"
)

// PostgresRegistrationRepo はPostgreSQLを使用した参加登録リポジトリ。
// 書き込みは売上取り込みトランザクションの一部として行われるため、
// このリポジトリは参照系のみを提供する。
type PostgresRegistrationRepo struct {
	db *sql.DB
}

// NewPostgresRegistrationRepo はPostgresRegistrationRepoを生成する。
func NewPostgresRegistrationRepo(db *sql.DB) *PostgresRegistrationRepo {
	return &PostgresRegistrationRepo{db: db}
}

const registrationColumns = `id, created_at, user_email, user_name, status, source, concert_id, sale_id`

// scanRegistration は1行分の参加登録をスキャンする。
func scanRegistration(row rowScanner) (*model.ConcertRegistration, error) {
	reg := &model.ConcertRegistration{}
	var saleID sql.NullString
	err := row.Scan(
		&reg.ID, &reg.CreatedAt, &reg.UserEmail, &reg.UserName,
		&reg.Status, &reg.Source, &reg.ConcertID, &saleID,
	)
	if err != nil {
		return nil, err
	}
	reg.SaleID = saleID.String
	return reg, nil
}

// FindByConcertAndEmail は(concert_id, user_email)で参加登録を検索する。
// 見つからない場合はnilを返す。
func (r *PostgresRegistrationRepo) FindByConcertAndEmail(ctx context.Context, concertID, email string) (*model.ConcertRegistration, error) {
	reg, err := scanRegistration(r.db.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM concert_registrations
		 WHERE concert_id = $1 AND user_email = $2`,
		concertID, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("参加登録の取得に失敗しました: %w", err)
	}
	return reg, nil
}

// ListByConcert は指定コンサートの参加登録一覧を作成日時昇順で返す。
func (r *PostgresRegistrationRepo) ListByConcert(ctx context.Context, concertID string) ([]*model.ConcertRegistration, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+registrationColumns+` FROM concert_registrations
		 WHERE concert_id = $1 ORDER BY created_at ASC`,
		concertID,
	)
	if err != nil {
		return nil, fmt.Errorf("参加登録一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var regs []*model.ConcertRegistration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("参加登録のスキャンに失敗しました: %w", err)
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("参加登録一覧の読み取りに失敗しました: %w", err)
	}
	return regs, nil
}

// compile-time interface check
var _ RegistrationRepository = (*PostgresRegistrationRepo)(nil)
