package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/encore/internal/model"
)

// isUUID は文字列がUUIDとして解釈可能かを判定する。
// UUID主キーのカラムに不正な形式の外部入力を束縛するとPostgresが
// 型エラー(22P02)を返すため、照合前にnot-found扱いへ落とすのに使う。
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// PostgresStoreItemRepo はPostgreSQLを使用したグッズ商品リポジトリ。
type PostgresStoreItemRepo struct {
	db *sql.DB
}

// NewPostgresStoreItemRepo はPostgresStoreItemRepoを生成する。
func NewPostgresStoreItemRepo(db *sql.DB) *PostgresStoreItemRepo {
	return &PostgresStoreItemRepo{db: db}
}

const storeItemColumns = `id, name, description, price_eur, image_url, active, created_at, updated_at`

func scanStoreItem(row rowScanner) (*model.StoreItem, error) {
	item := &model.StoreItem{}
	err := row.Scan(
		&item.ID, &item.Name, &item.Description, &item.PriceEur,
		&item.ImageURL, &item.Active, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
// UUID形式でないIDはnot-found扱いになる。
func (r *PostgresStoreItemRepo) FindByID(ctx context.Context, id string) (*model.StoreItem, error) {
	if !isUUID(id) {
		return nil, nil
	}
	item, err := scanStoreItem(r.db.QueryRowContext(ctx,
		`SELECT `+storeItemColumns+` FROM store_items WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("商品の取得に失敗しました: %w", err)
	}
	return item, nil
}

// List は商品一覧を作成日時降順で返す。
func (r *PostgresStoreItemRepo) List(ctx context.Context, activeOnly bool) ([]*model.StoreItem, error) {
	query := `SELECT ` + storeItemColumns + ` FROM store_items`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("商品一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []*model.StoreItem
	for rows.Next() {
		item, err := scanStoreItem(rows)
		if err != nil {
			return nil, fmt.Errorf("商品のスキャンに失敗しました: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("商品一覧の読み取りに失敗しました: %w", err)
	}
	return items, nil
}

// Create は商品を作成する。IDが未設定の場合は採番する。
func (r *PostgresStoreItemRepo) Create(ctx context.Context, item *model.StoreItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO store_items (id, name, description, price_eur, image_url, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		item.ID, item.Name, item.Description, item.PriceEur,
		item.ImageURL, item.Active, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("商品の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は商品を更新する。
func (r *PostgresStoreItemRepo) Update(ctx context.Context, item *model.StoreItem) error {
	item.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE store_items SET name = $2, description = $3, price_eur = $4,
		     image_url = $5, active = $6, updated_at = $7
		 WHERE id = $1`,
		item.ID, item.Name, item.Description, item.PriceEur,
		item.ImageURL, item.Active, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("商品の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("store item not found: %s", item.ID)
	}
	return nil
}

// compile-time interface check
var _ StoreItemRepository = (*PostgresStoreItemRepo)(nil)

// PostgresConcertRepo はPostgreSQLを使用したコンサートリポジトリ。
type PostgresConcertRepo struct {
	db *sql.DB
}

// NewPostgresConcertRepo はPostgresConcertRepoを生成する。
func NewPostgresConcertRepo(db *sql.DB) *PostgresConcertRepo {
	return &PostgresConcertRepo{db: db}
}

const concertColumns = `id, title, description, venue, starts_at, active, created_at, updated_at`

func scanConcert(row rowScanner) (*model.Concert, error) {
	c := &model.Concert{}
	err := row.Scan(
		&c.ID, &c.Title, &c.Description, &c.Venue,
		&c.StartsAt, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindByID は指定IDのコンサートを取得する。見つからない場合はnilを返す。
// product id "ticket-<concertId>" のサフィックスが渡ってくるため、
// UUID形式でないIDはエラーではなくnot-found扱いになる。
func (r *PostgresConcertRepo) FindByID(ctx context.Context, id string) (*model.Concert, error) {
	if !isUUID(id) {
		return nil, nil
	}
	c, err := scanConcert(r.db.QueryRowContext(ctx,
		`SELECT `+concertColumns+` FROM concerts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コンサートの取得に失敗しました: %w", err)
	}
	return c, nil
}

// List はコンサート一覧を開催日時昇順で返す。
func (r *PostgresConcertRepo) List(ctx context.Context, activeOnly bool) ([]*model.Concert, error) {
	query := `SELECT ` + concertColumns + ` FROM concerts`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY starts_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("コンサート一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var concerts []*model.Concert
	for rows.Next() {
		c, err := scanConcert(rows)
		if err != nil {
			return nil, fmt.Errorf("コンサートのスキャンに失敗しました: %w", err)
		}
		concerts = append(concerts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コンサート一覧の読み取りに失敗しました: %w", err)
	}
	return concerts, nil
}

// Create はコンサートを作成する。IDが未設定の場合は採番する。
func (r *PostgresConcertRepo) Create(ctx context.Context, concert *model.Concert) error {
	if concert.ID == "" {
		concert.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	concert.CreatedAt = now
	concert.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO concerts (id, title, description, venue, starts_at, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		concert.ID, concert.Title, concert.Description, concert.Venue,
		concert.StartsAt, concert.Active, concert.CreatedAt, concert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("コンサートの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はコンサートを更新する。
func (r *PostgresConcertRepo) Update(ctx context.Context, concert *model.Concert) error {
	concert.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE concerts SET title = $2, description = $3, venue = $4,
		     starts_at = $5, active = $6, updated_at = $7
		 WHERE id = $1`,
		concert.ID, concert.Title, concert.Description, concert.Venue,
		concert.StartsAt, concert.Active, concert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("コンサートの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("concert not found: %s", concert.ID)
	}
	return nil
}

// compile-time interface check
var _ ConcertRepository = (*PostgresConcertRepo)(nil)
