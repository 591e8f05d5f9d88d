package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/encore/internal/metrics"
	"github.com/hitoshi/encore/internal/model"
)

// EventLister は決済プロバイダーのイベントフィード取得のインターフェース。
// テスト時にモックに差し替え可能。
type EventLister interface {
	// ListCheckoutSessionEvents はチェックアウトセッションを1ページ分取得する。
	ListCheckoutSessionEvents(ctx context.Context, startingAfter string, limit int) ([]model.PaymentEvent, string, bool, error)
	// ListPaymentIntentEvents は決済インテントを1ページ分取得する。
	ListPaymentIntentEvents(ctx context.Context, startingAfter string, limit int) ([]model.PaymentEvent, string, bool, error)
}

// BackfillConfig はバックフィルジョブの設定パラメータ。
type BackfillConfig struct {
	// Interval はバックフィルサイクルの実行間隔（デフォルト: 15分）。
	Interval time.Duration
	// PageSize は1リクエストあたりの取得件数（デフォルト: 100）。
	PageSize int
}

// DefaultBackfillConfig はデフォルトのバックフィル設定を返す。
func DefaultBackfillConfig() BackfillConfig {
	return BackfillConfig{
		Interval: 15 * time.Minute,
		PageSize: 100,
	}
}

// BackfillJob は決済プロバイダーのイベントフィードをページングしながら
// 売上レコードへ取り込むバッチジョブ。
// 1件ごとに取り込みを隔離し、不正なレコードはスキップして数える。
type BackfillJob struct {
	reconciler *Reconciler
	client     EventLister
	collector  metrics.MetricsCollector
	logger     *slog.Logger
	config     BackfillConfig
}

// NewBackfillJob はBackfillJobの新しいインスタンスを生成する。
func NewBackfillJob(
	reconciler *Reconciler,
	client EventLister,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	config BackfillConfig,
) *BackfillJob {
	if config.Interval <= 0 {
		config.Interval = DefaultBackfillConfig().Interval
	}
	if config.PageSize <= 0 {
		config.PageSize = DefaultBackfillConfig().PageSize
	}
	return &BackfillJob{
		reconciler: reconciler,
		client:     client,
		collector:  collector,
		logger:     logger,
		config:     config,
	}
}

// Start はバックフィルジョブをティッカーで定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (b *BackfillJob) Start(ctx context.Context) {
	ticker := time.NewTicker(b.config.Interval)
	defer ticker.Stop()

	b.logger.Info("売上バックフィルジョブを開始しました",
		slog.Duration("interval", b.config.Interval),
		slog.Int("page_size", b.config.PageSize),
	)

	// 起動直後に1回実行
	if _, err := b.RunOnce(ctx); err != nil {
		b.logger.Error("売上バックフィルサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("売上バックフィルジョブを停止しました")
			return
		case <-ticker.C:
			if _, err := b.RunOnce(ctx); err != nil {
				b.logger.Error("売上バックフィルサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunResult は1回のバックフィルサイクルの集計結果。
type RunResult struct {
	Imported int
	Skipped  int
}

// RunOnce は1回のバックフィルサイクルを実行する。
// チェックアウトセッションと決済インテントを全ページ取り込み、
// 取り込み件数とスキップ件数を返す。
func (b *BackfillJob) RunOnce(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{}

	if err := b.drain(ctx, result, b.client.ListCheckoutSessionEvents); err != nil {
		return result, fmt.Errorf("チェックアウトセッションの取り込みに失敗しました: %w", err)
	}
	if err := b.drain(ctx, result, b.client.ListPaymentIntentEvents); err != nil {
		return result, fmt.Errorf("決済インテントの取り込みに失敗しました: %w", err)
	}

	duration := time.Since(start)
	b.collector.RecordBackfillLatency(duration)
	b.logger.Info("売上バックフィルサイクルが完了しました",
		slog.Int("imported", result.Imported),
		slog.Int("skipped", result.Skipped),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return result, nil
}

// pageFunc はイベントフィード1ページ分の取得関数。
type pageFunc func(ctx context.Context, startingAfter string, limit int) ([]model.PaymentEvent, string, bool, error)

// drain は1つのフィードを最後のページまで取り込む。
// 個々のイベントの検証エラーはスキップとして数え、残りの取り込みを続行する。
func (b *BackfillJob) drain(ctx context.Context, result *RunResult, list pageFunc) error {
	cursor := ""
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		events, nextCursor, hasMore, err := list(ctx, cursor, b.config.PageSize)
		if err != nil {
			return err
		}

		for _, event := range events {
			if _, err := b.reconciler.Reconcile(ctx, event); err != nil {
				// 検証エラーは1件だけスキップして続行する
				var apiErr *model.APIError
				if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeValidation {
					result.Skipped++
					b.logger.Warn("不正な決済イベントをスキップしました",
						slog.String("payment_intent_id", event.PaymentIntentID),
						slog.String("session_id", event.SessionID),
						slog.String("reason", apiErr.Message),
					)
					continue
				}
				// ストレージ起因の失敗もそのレコードだけを隔離する
				result.Skipped++
				b.logger.Error("決済イベントの取り込みに失敗しました",
					slog.String("payment_intent_id", event.PaymentIntentID),
					slog.String("session_id", event.SessionID),
					slog.String("error", err.Error()),
				)
				continue
			}
			result.Imported++
		}

		if !hasMore || nextCursor == "" {
			return nil
		}
		cursor = nextCursor
	}
}
