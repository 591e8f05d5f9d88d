package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/encore/internal/model"
	"github.com/lib/pq"
)

// PostgresSaleRepo はPostgreSQLを使用した売上リポジトリ。
// 外部ID（payment_intent_id / stripe_session_id）ごとのユニーク制約が
// 重複排除の最終的な担保で、同時取り込みは制約違反後の1回のリトライで
// 単一行に収束する。
type PostgresSaleRepo struct {
	db *sql.DB
}

// NewPostgresSaleRepo はPostgresSaleRepoを生成する。
func NewPostgresSaleRepo(db *sql.DB) *PostgresSaleRepo {
	return &PostgresSaleRepo{db: db}
}

const saleColumns = `id, created_at, paid_at, user_email, customer_email, customer_name,
	product_id, product_name, item_type, amount_eur, status, stripe_session_id, payment_intent_id`

// rowScanner は*sql.Rowと*sql.Rowsの共通スキャンインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSale は1行分のSaleをスキャンする。
func scanSale(row rowScanner) (*model.Sale, error) {
	sale := &model.Sale{}
	var paidAt sql.NullTime
	var sessionID, intentID sql.NullString

	err := row.Scan(
		&sale.ID, &sale.CreatedAt, &paidAt,
		&sale.UserEmail, &sale.CustomerEmail, &sale.CustomerName,
		&sale.ProductID, &sale.ProductName, &sale.ItemType,
		&sale.AmountEur, &sale.Status, &sessionID, &intentID,
	)
	if err != nil {
		return nil, err
	}

	if paidAt.Valid {
		sale.PaidAt = &paidAt.Time
	}
	sale.StripeSessionID = sessionID.String
	sale.PaymentIntentID = intentID.String

	return sale, nil
}

// nullIfEmpty は空文字列をNULLとして保存するための変換。
// 部分ユニークインデックスは非NULL値にのみ適用される。
func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// FindByPaymentIntentID はpayment_intent_idでSaleを検索する。見つからない場合はnilを返す。
func (r *PostgresSaleRepo) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*model.Sale, error) {
	sale, err := scanSale(r.db.QueryRowContext(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE payment_intent_id = $1`, paymentIntentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("売上の取得に失敗しました: %w", err)
	}
	return sale, nil
}

// FindBySessionID はstripe_session_idでSaleを検索する。見つからない場合はnilを返す。
func (r *PostgresSaleRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.Sale, error) {
	sale, err := scanSale(r.db.QueryRowContext(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE stripe_session_id = $1`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("売上の取得に失敗しました: %w", err)
	}
	return sale, nil
}

// ListByUserEmail は指定メールアドレスの売上一覧を作成日時降順で返す。
func (r *PostgresSaleRepo) ListByUserEmail(ctx context.Context, email string, limit int) ([]*model.Sale, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE user_email = $1 ORDER BY created_at DESC LIMIT $2`,
		email, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("売上一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sales []*model.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("売上のスキャンに失敗しました: %w", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("売上一覧の読み取りに失敗しました: %w", err)
	}
	return sales, nil
}

// UpsertWithRegistration はSaleを外部IDでアップサートし、必要なら参加登録も
// 同一トランザクションでアップサートする。
// 既存行のpaid_atは保持し、初めてPAIDへ遷移した場合のみ現在時刻を刻む。
func (r *PostgresSaleRepo) UpsertWithRegistration(ctx context.Context, sale *model.Sale, reg *model.ConcertRegistration) (*SaleUpsertResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := r.upsertSaleInTx(ctx, tx, sale)
	if err != nil {
		return nil, err
	}

	// 参加登録のアップサートはSaleがPAIDの場合のみ実行する
	if reg != nil && result.Sale.Status == model.SaleStatusPaid {
		if err := r.upsertRegistrationInTx(ctx, tx, reg, result.Sale.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

// upsertSaleInTx はトランザクション内でSaleをアップサートする。
// 挿入時のユニーク制約違反（並行取り込み）は1回だけ検索・更新にフォールバックする。
func (r *PostgresSaleRepo) upsertSaleInTx(ctx context.Context, tx *sql.Tx, sale *model.Sale) (*SaleUpsertResult, error) {
	existing, err := r.findForUpdateInTx(ctx, tx, sale.PaymentIntentID, sale.StripeSessionID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		result, insertErr := r.insertSaleInTx(ctx, tx, sale)
		if insertErr == nil {
			return result, nil
		}

		// 並行挿入との競合: ユニーク制約違反なら既存行の更新にフォールバック
		var pqErr *pq.Error
		if !errors.As(insertErr, &pqErr) || pqErr.Code != "23505" {
			return nil, insertErr
		}
		existing, err = r.findForUpdateInTx(ctx, tx, sale.PaymentIntentID, sale.StripeSessionID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("売上のアップサートが収束しませんでした: %w", insertErr)
		}
	}

	return r.updateSaleInTx(ctx, tx, existing, sale)
}

// saleExternalKey は売上の外部IDカラムと照合値の組。
type saleExternalKey struct {
	column string
	value  string
}

// saleLookupKeys は外部IDの照合順序を組み立てる。payment_intent_idを優先し、
// 両方が揃っている場合はstripe_session_idへもフォールバックする。
// セッション行が先に作られ、後続の完了イベントで初めてintentが確定する
// ケースを同一行に合流させるため。
func saleLookupKeys(paymentIntentID, sessionID string) []saleExternalKey {
	var keys []saleExternalKey
	if paymentIntentID != "" {
		keys = append(keys, saleExternalKey{column: "payment_intent_id", value: paymentIntentID})
	}
	if sessionID != "" {
		keys = append(keys, saleExternalKey{column: "stripe_session_id", value: sessionID})
	}
	return keys
}

// findForUpdateInTx は外部IDでSaleを排他ロック付きで検索する。
// saleLookupKeysの順に照合し、最初に見つかった行を返す。
func (r *PostgresSaleRepo) findForUpdateInTx(ctx context.Context, tx *sql.Tx, paymentIntentID, sessionID string) (*model.Sale, error) {
	keys := saleLookupKeys(paymentIntentID, sessionID)
	if len(keys) == 0 {
		return nil, fmt.Errorf("外部IDが指定されていません")
	}

	for _, key := range keys {
		sale, err := scanSale(tx.QueryRowContext(ctx,
			`SELECT `+saleColumns+` FROM sales WHERE `+key.column+` = $1 FOR UPDATE`, key.value))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("売上の検索に失敗しました: %w", err)
		}
		return sale, nil
	}
	return nil, nil
}

// insertSaleInTx は新規Saleを挿入する。PAIDの場合はpaid_atを刻む。
func (r *PostgresSaleRepo) insertSaleInTx(ctx context.Context, tx *sql.Tx, sale *model.Sale) (*SaleUpsertResult, error) {
	now := time.Now().UTC()
	inserted := *sale
	inserted.ID = uuid.New().String()
	if inserted.CreatedAt.IsZero() {
		inserted.CreatedAt = now
	}

	firstPaid := inserted.Status == model.SaleStatusPaid
	if firstPaid {
		inserted.PaidAt = &now
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO sales (id, created_at, paid_at, user_email, customer_email, customer_name,
		     product_id, product_name, item_type, amount_eur, status, stripe_session_id, payment_intent_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		inserted.ID, inserted.CreatedAt, inserted.PaidAt,
		inserted.UserEmail, inserted.CustomerEmail, inserted.CustomerName,
		inserted.ProductID, inserted.ProductName, inserted.ItemType,
		inserted.AmountEur, inserted.Status,
		nullIfEmpty(inserted.StripeSessionID), nullIfEmpty(inserted.PaymentIntentID),
	)
	if err != nil {
		return nil, err
	}

	return &SaleUpsertResult{Sale: &inserted, Created: true, FirstPaid: firstPaid}, nil
}

// updateSaleInTx は既存Saleの可変フィールドを上書き更新する。
// paid_atは既存値を保持し、初めてPAIDへ遷移した場合のみ現在時刻を刻む。
func (r *PostgresSaleRepo) updateSaleInTx(ctx context.Context, tx *sql.Tx, existing *model.Sale, incoming *model.Sale) (*SaleUpsertResult, error) {
	now := time.Now().UTC()

	firstPaid := incoming.Status == model.SaleStatusPaid && existing.PaidAt == nil
	paidAt := existing.PaidAt
	if firstPaid {
		paidAt = &now
	}

	// 外部IDは後から届いたイベントで補完されることがある（session発行後にintent確定等）
	sessionID := existing.StripeSessionID
	if incoming.StripeSessionID != "" {
		sessionID = incoming.StripeSessionID
	}
	intentID := existing.PaymentIntentID
	if incoming.PaymentIntentID != "" {
		intentID = incoming.PaymentIntentID
	}

	updated := *existing
	updated.PaidAt = paidAt
	updated.UserEmail = incoming.UserEmail
	updated.CustomerEmail = incoming.CustomerEmail
	updated.CustomerName = incoming.CustomerName
	updated.ProductID = incoming.ProductID
	updated.ProductName = incoming.ProductName
	updated.ItemType = incoming.ItemType
	updated.AmountEur = incoming.AmountEur
	updated.Status = incoming.Status
	updated.StripeSessionID = sessionID
	updated.PaymentIntentID = intentID

	_, err := tx.ExecContext(ctx,
		`UPDATE sales SET
		     paid_at = $2, user_email = $3, customer_email = $4, customer_name = $5,
		     product_id = $6, product_name = $7, item_type = $8, amount_eur = $9,
		     status = $10, stripe_session_id = $11, payment_intent_id = $12
		 WHERE id = $1`,
		updated.ID, updated.PaidAt,
		updated.UserEmail, updated.CustomerEmail, updated.CustomerName,
		updated.ProductID, updated.ProductName, updated.ItemType, updated.AmountEur,
		updated.Status, nullIfEmpty(updated.StripeSessionID), nullIfEmpty(updated.PaymentIntentID),
	)
	if err != nil {
		return nil, fmt.Errorf("売上の更新に失敗しました: %w", err)
	}

	return &SaleUpsertResult{Sale: &updated, Created: false, FirstPaid: firstPaid}, nil
}

// upsertRegistrationInTx は参加登録を(concert_id, user_email)でアップサートする。
func (r *PostgresSaleRepo) upsertRegistrationInTx(ctx context.Context, tx *sql.Tx, reg *model.ConcertRegistration, saleID string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO concert_registrations (id, created_at, user_email, user_name, status, source, concert_id, sale_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (concert_id, user_email) DO UPDATE SET
		     user_name = EXCLUDED.user_name,
		     status = EXCLUDED.status,
		     source = EXCLUDED.source,
		     sale_id = EXCLUDED.sale_id`,
		uuid.New().String(), time.Now().UTC(),
		reg.UserEmail, reg.UserName, reg.Status, reg.Source, reg.ConcertID, saleID,
	)
	if err != nil {
		return fmt.Errorf("参加登録のアップサートに失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SaleRepository = (*PostgresSaleRepo)(nil)
