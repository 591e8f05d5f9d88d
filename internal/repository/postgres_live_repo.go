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

// PostgresLiveRepo はPostgreSQLを使用した配信ライブリポジトリ。
type PostgresLiveRepo struct {
	db *sql.DB
}

// NewPostgresLiveRepo はPostgresLiveRepoを生成する。
func NewPostgresLiveRepo(db *sql.DB) *PostgresLiveRepo {
	return &PostgresLiveRepo{db: db}
}

const liveColumns = `id, title, description, video_url, feed_guid, starts_at, active, created_at, updated_at`

func scanLive(row rowScanner) (*model.Live, error) {
	live := &model.Live{}
	var feedGUID sql.NullString
	var startsAt sql.NullTime
	err := row.Scan(
		&live.ID, &live.Title, &live.Description, &live.VideoURL,
		&feedGUID, &startsAt, &live.Active, &live.CreatedAt, &live.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	live.FeedGUID = feedGUID.String
	if startsAt.Valid {
		live.StartsAt = &startsAt.Time
	}
	return live, nil
}

// FindByID は指定IDのライブを取得する。見つからない場合はnilを返す。
// UUID形式でないIDはnot-found扱いになる。
func (r *PostgresLiveRepo) FindByID(ctx context.Context, id string) (*model.Live, error) {
	if !isUUID(id) {
		return nil, nil
	}
	live, err := scanLive(r.db.QueryRowContext(ctx,
		`SELECT `+liveColumns+` FROM lives WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ライブの取得に失敗しました: %w", err)
	}
	return live, nil
}

// List はライブ一覧を作成日時降順で返す。
func (r *PostgresLiveRepo) List(ctx context.Context, activeOnly bool) ([]*model.Live, error) {
	query := `SELECT ` + liveColumns + ` FROM lives`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ライブ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var lives []*model.Live
	for rows.Next() {
		live, err := scanLive(rows)
		if err != nil {
			return nil, fmt.Errorf("ライブのスキャンに失敗しました: %w", err)
		}
		lives = append(lives, live)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ライブ一覧の読み取りに失敗しました: %w", err)
	}
	return lives, nil
}

// Create はライブを作成する。IDが未設定の場合は採番する。
func (r *PostgresLiveRepo) Create(ctx context.Context, live *model.Live) error {
	if live.ID == "" {
		live.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	live.CreatedAt = now
	live.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO lives (id, title, description, video_url, feed_guid, starts_at, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		live.ID, live.Title, live.Description, live.VideoURL,
		nullIfEmpty(live.FeedGUID), live.StartsAt, live.Active,
		live.CreatedAt, live.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ライブの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はライブを更新する。
func (r *PostgresLiveRepo) Update(ctx context.Context, live *model.Live) error {
	live.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE lives SET title = $2, description = $3, video_url = $4,
		     starts_at = $5, active = $6, updated_at = $7
		 WHERE id = $1`,
		live.ID, live.Title, live.Description, live.VideoURL,
		live.StartsAt, live.Active, live.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ライブの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("live not found: %s", live.ID)
	}
	return nil
}

// UpsertByFeedGUID はフィードGUIDをキーにライブを冪等にアップサートする。
// 同一GUIDの再取り込みはタイトル・説明・URLの更新になる。戻り値は挿入ならtrue。
func (r *PostgresLiveRepo) UpsertByFeedGUID(ctx context.Context, live *model.Live) (bool, error) {
	if live.FeedGUID == "" {
		return false, fmt.Errorf("フィードGUIDが指定されていません")
	}
	if live.ID == "" {
		live.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	var inserted bool
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO lives (id, title, description, video_url, feed_guid, starts_at, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $7)
		 ON CONFLICT (feed_guid) WHERE feed_guid IS NOT NULL DO UPDATE SET
		     title = EXCLUDED.title,
		     description = EXCLUDED.description,
		     video_url = EXCLUDED.video_url,
		     starts_at = EXCLUDED.starts_at,
		     updated_at = EXCLUDED.updated_at
		 RETURNING (created_at = updated_at)`,
		live.ID, live.Title, live.Description, live.VideoURL,
		live.FeedGUID, live.StartsAt, now,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("ライブのアップサートに失敗しました: %w", err)
	}
	return inserted, nil
}

// compile-time interface check
var _ LiveRepository = (*PostgresLiveRepo)(nil)
