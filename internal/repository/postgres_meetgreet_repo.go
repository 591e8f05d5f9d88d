package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/encore/internal/model"
)

// PostgresMeetGreetRepo はPostgreSQLを使用したミート&グリートリポジトリ。
type PostgresMeetGreetRepo struct {
	db *sql.DB
}

// NewPostgresMeetGreetRepo はPostgresMeetGreetRepoを生成する。
func NewPostgresMeetGreetRepo(db *sql.DB) *PostgresMeetGreetRepo {
	return &PostgresMeetGreetRepo{db: db}
}

const meetGreetEventColumns = `id, title, event_date, active, created_at`
const meetGreetAccessColumns = `id, user_id, event_id, status, issued_at, used_at`

func scanMeetGreetEvent(row rowScanner) (*model.MeetGreetEvent, error) {
	event := &model.MeetGreetEvent{}
	err := row.Scan(&event.ID, &event.Title, &event.EventDate, &event.Active, &event.CreatedAt)
	if err != nil {
		return nil, err
	}
	return event, nil
}

func scanMeetGreetAccess(row rowScanner) (*model.MeetGreetAccess, error) {
	access := &model.MeetGreetAccess{}
	var usedAt sql.NullTime
	err := row.Scan(&access.ID, &access.UserID, &access.EventID, &access.Status, &access.IssuedAt, &usedAt)
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		access.UsedAt = &usedAt.Time
	}
	return access, nil
}

// FindActiveEvent は現在有効なイベントを取得する。見つからない場合はnilを返す。
// 有効イベントが複数ある場合は開催日時が最も近いものを返す。
func (r *PostgresMeetGreetRepo) FindActiveEvent(ctx context.Context) (*model.MeetGreetEvent, error) {
	event, err := scanMeetGreetEvent(r.db.QueryRowContext(ctx,
		`SELECT `+meetGreetEventColumns+` FROM meet_greet_events
		 WHERE active = TRUE ORDER BY event_date ASC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("有効イベントの取得に失敗しました: %w", err)
	}
	return event, nil
}

// FindEventByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
func (r *PostgresMeetGreetRepo) FindEventByID(ctx context.Context, id string) (*model.MeetGreetEvent, error) {
	event, err := scanMeetGreetEvent(r.db.QueryRowContext(ctx,
		`SELECT `+meetGreetEventColumns+` FROM meet_greet_events WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	return event, nil
}

// CreateEvent はイベントを作成する。
func (r *PostgresMeetGreetRepo) CreateEvent(ctx context.Context, event *model.MeetGreetEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO meet_greet_events (id, title, event_date, active, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.Title, event.EventDate, event.Active, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("イベントの作成に失敗しました: %w", err)
	}
	return nil
}

// FindAccessByUserID は指定ユーザーのアクセス記録を取得する。見つからない場合はnilを返す。
func (r *PostgresMeetGreetRepo) FindAccessByUserID(ctx context.Context, userID string) (*model.MeetGreetAccess, error) {
	access, err := scanMeetGreetAccess(r.db.QueryRowContext(ctx,
		`SELECT `+meetGreetAccessColumns+` FROM meet_greet_access WHERE user_id = $1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アクセス記録の取得に失敗しました: %w", err)
	}
	return access, nil
}

// FindAccessByID は指定IDのアクセス記録を取得する。見つからない場合はnilを返す。
func (r *PostgresMeetGreetRepo) FindAccessByID(ctx context.Context, id string) (*model.MeetGreetAccess, error) {
	access, err := scanMeetGreetAccess(r.db.QueryRowContext(ctx,
		`SELECT `+meetGreetAccessColumns+` FROM meet_greet_access WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アクセス記録の取得に失敗しました: %w", err)
	}
	return access, nil
}

// CreateAccess はアクセス記録を作成する。user_idのユニーク制約により
// 1ユーザー1件に収束する。
func (r *PostgresMeetGreetRepo) CreateAccess(ctx context.Context, access *model.MeetGreetAccess) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO meet_greet_access (id, user_id, event_id, status, issued_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		access.ID, access.UserID, access.EventID, access.Status, access.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("アクセス記録の作成に失敗しました: %w", err)
	}
	return nil
}

// MarkAccessUsed はアクセス記録をUSEDへ遷移させる。
// WHERE句の条件により既にUSED/EXPIREDの行は変更されず、並行入場は
// 最初の1回だけが遷移に成功する。戻り値は今回の呼び出しで遷移した場合true。
func (r *PostgresMeetGreetRepo) MarkAccessUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE meet_greet_access SET status = 'USED', used_at = $2
		 WHERE id = $1 AND status = 'VALID'`,
		id, usedAt,
	)
	if err != nil {
		return false, fmt.Errorf("アクセス記録のUSED遷移に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// MarkAccessExpired はアクセス記録をEXPIREDへ遷移させる。USEDの行は変更しない。
func (r *PostgresMeetGreetRepo) MarkAccessExpired(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE meet_greet_access SET status = 'EXPIRED'
		 WHERE id = $1 AND status = 'VALID'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("アクセス記録のEXPIRED遷移に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ MeetGreetRepository = (*PostgresMeetGreetRepo)(nil)
