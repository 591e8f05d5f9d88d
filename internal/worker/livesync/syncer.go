// Package livesync はバンドの公開フィード（RSS/Atom）から配信ライブを
// 定期的に取り込むワーカージョブを提供する。
// 同一GUIDの再取り込みは既存ライブの更新になる（冪等）。
package livesync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/hitoshi/encore/internal/model"
	"github.com/hitoshi/encore/internal/repository"
	"github.com/hitoshi/encore/internal/security"
)

// SyncerConfig はライブ同期ワーカーの設定。
type SyncerConfig struct {
	// FeedURL は取り込み対象のフィードURL。
	FeedURL string
	// Interval は同期サイクルの実行間隔（デフォルト: 30分）。
	Interval time.Duration
	// FetchTimeout はフィード取得のHTTPタイムアウト（デフォルト: 10秒）。
	FetchTimeout time.Duration
	// FetchMaxSize はレスポンスボディの最大サイズ（デフォルト: 5MiB）。
	FetchMaxSize int64
}

// Syncer はフィードから配信ライブを取り込むワーカー。
// SSRF検証付きHTTPクライアントで取得し、gofeedでパースし、
// サニタイズ済みの説明文と共にGUIDをキーにアップサートする。
type Syncer struct {
	liveRepo  repository.LiveRepository
	ssrfGuard security.SSRFGuardService
	sanitizer security.ContentSanitizerService
	logger    *slog.Logger
	config    SyncerConfig
}

// NewSyncer はSyncerの新しいインスタンスを生成する。
func NewSyncer(
	liveRepo repository.LiveRepository,
	ssrfGuard security.SSRFGuardService,
	sanitizer security.ContentSanitizerService,
	logger *slog.Logger,
	config SyncerConfig,
) *Syncer {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Minute
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 10 * time.Second
	}
	if config.FetchMaxSize <= 0 {
		config.FetchMaxSize = 5 * 1024 * 1024
	}
	return &Syncer{
		liveRepo:  liveRepo,
		ssrfGuard: ssrfGuard,
		sanitizer: sanitizer,
		logger:    logger,
		config:    config,
	}
}

// Start はライブ同期をティッカーで定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Syncer) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info("ライブ同期ジョブを開始しました",
		slog.String("feed_url", s.config.FeedURL),
		slog.Duration("interval", s.config.Interval),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("ライブ同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ライブ同期ジョブを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("ライブ同期サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は1回の同期サイクルを実行する。
// フィードの各エントリをGUIDをキーに冪等にアップサートする。
// 個々のエントリの失敗はそのエントリだけをスキップして続行する。
func (s *Syncer) RunOnce(ctx context.Context) error {
	start := time.Now()

	if err := s.ssrfGuard.ValidateURL(s.config.FeedURL); err != nil {
		return fmt.Errorf("フィードURLのSSRF検証に失敗しました: %w", err)
	}

	client := s.ssrfGuard.NewSafeClient(s.config.FetchTimeout, s.config.FetchMaxSize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.FeedURL, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Encore/1.0 Live Sync")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("フィード取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("フィード取得がステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.config.FetchMaxSize))
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	parser := gofeed.NewParser()
	parsedFeed, err := parser.ParseString(string(body))
	if err != nil {
		return fmt.Errorf("フィードのパースに失敗しました: %w", err)
	}

	var inserted, updated, skipped int
	for _, item := range parsedFeed.Items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if item == nil {
			continue
		}

		live, ok := s.convertItem(item)
		if !ok {
			skipped++
			continue
		}

		wasInserted, err := s.liveRepo.UpsertByFeedGUID(ctx, live)
		if err != nil {
			skipped++
			s.logger.Error("ライブのアップサートに失敗しました",
				slog.String("feed_guid", live.FeedGUID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if wasInserted {
			inserted++
		} else {
			updated++
		}
	}

	duration := time.Since(start)
	s.logger.Info("ライブ同期サイクルが完了しました",
		slog.Int("inserted", inserted),
		slog.Int("updated", updated),
		slog.Int("skipped", skipped),
		slog.Int("total", len(parsedFeed.Items)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// convertItem はフィードエントリを配信ライブへ変換する。
// GUIDとタイトルを持たないエントリは取り込み対象外。
func (s *Syncer) convertItem(item *gofeed.Item) (*model.Live, bool) {
	guid := item.GUID
	if guid == "" {
		guid = item.Link
	}
	if guid == "" || item.Title == "" {
		return nil, false
	}

	videoURL := item.Link
	content := item.Content
	if content == "" {
		content = item.Description
	}
	// エントリ本文に埋め込まれた動画（iframe等）をリンクより優先する
	if embedded := extractVideoURL(content); embedded != "" {
		videoURL = embedded
	}

	live := &model.Live{
		Title:       item.Title,
		Description: s.sanitizer.Sanitize(content),
		VideoURL:    videoURL,
		FeedGUID:    guid,
	}

	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		live.StartsAt = &t
	} else if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		live.StartsAt = &t
	}

	return live, true
}

// extractVideoURL はHTML断片から最初のiframe/video埋め込みのURLを抽出する。
// 見つからない場合は空文字列を返す。
func extractVideoURL(fragment string) string {
	if fragment == "" {
		return ""
	}

	node, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return ""
	}

	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && (n.Data == "iframe" || n.Data == "video" || n.Data == "source") {
			for _, attr := range n.Attr {
				if attr.Key == "src" && strings.HasPrefix(attr.Val, "https://") {
					found = attr.Val
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)

	return found
}
