// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/encore/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は正規化済みメールアドレスでユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	// tier_progressの初期行（ゼロ値）も同時に作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpsertByEmail は正規化済みメールアドレスをキーにユーザーを作成または更新する。
	// 既存ユーザーの場合は表示名・アイコン（空でない場合のみ）を更新する。
	// 決済イベントで初めてメールアドレスを観測した場合の遅延作成にも使う。
	UpsertByEmail(ctx context.Context, email, name, pictureURL, provider string) (*model.User, error)

	// SetOnboarded はオンボーディング完了フラグを設定する。
	SetOnboarded(ctx context.Context, id string, onboarded bool) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create はidentityを作成する。決済イベント由来で先に作成された
	// ユーザーが初回ログインしたときの紐付けに使う。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// TierProgressRepository はティア進捗の永続化インターフェース。
type TierProgressRepository interface {
	// FindByUserID は指定ユーザーのティア進捗を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.TierProgress, error)

	// EnsureForUser はユーザーのティア進捗行がなければゼロ値で作成し、
	// 現在の進捗を返す（遅延作成）。
	EnsureForUser(ctx context.Context, userID string) (*model.TierProgress, error)

	// AddProgress は視聴回数と累計購入額を加算し、更新後の進捗を返す。
	// 行が存在しない場合はゼロ値から作成して加算する。
	AddProgress(ctx context.Context, userID string, attendanceDelta int, spendDelta float64) (*model.TierProgress, error)

	// RaiseTier はtierを単調に引き上げる。保存されるのはmax(現在値, newTier)で、
	// 並行した再計算があってもtierが下がることはない。
	RaiseTier(ctx context.Context, userID string, newTier int) error
}

// SaleUpsertResult はSaleのアップサート結果を表す。
type SaleUpsertResult struct {
	Sale      *model.Sale
	Created   bool // 新規挿入だった場合true
	FirstPaid bool // 今回の取り込みで初めてPAIDへ遷移した場合true
}

// SaleRepository は売上レコードの永続化インターフェース。
type SaleRepository interface {
	// FindByPaymentIntentID はpayment_intent_idでSaleを検索する。見つからない場合はnilを返す。
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*model.Sale, error)

	// FindBySessionID はstripe_session_idでSaleを検索する。見つからない場合はnilを返す。
	FindBySessionID(ctx context.Context, sessionID string) (*model.Sale, error)

	// UpsertWithRegistration はSaleを外部ID（payment_intent_id優先、次にsession_id）で
	// アップサートし、regがnilでなくSaleがPAIDの場合は同一トランザクションで
	// 参加登録も(concert_id, user_email)でアップサートする。
	// 既存行のpaid_atは保持し、初めてPAIDへ遷移した場合のみ現在時刻を刻む。
	// 同一外部IDの同時取り込みはユニーク制約と1回のリトライで単一行に収束する。
	UpsertWithRegistration(ctx context.Context, sale *model.Sale, reg *model.ConcertRegistration) (*SaleUpsertResult, error)

	// ListByUserEmail は指定メールアドレスの売上一覧を作成日時降順で返す。
	ListByUserEmail(ctx context.Context, email string, limit int) ([]*model.Sale, error)
}

// RegistrationRepository はコンサート参加登録の永続化インターフェース。
type RegistrationRepository interface {
	// FindByConcertAndEmail は(concert_id, user_email)で参加登録を検索する。
	// 見つからない場合はnilを返す。
	FindByConcertAndEmail(ctx context.Context, concertID, email string) (*model.ConcertRegistration, error)

	// ListByConcert は指定コンサートの参加登録一覧を返す。
	ListByConcert(ctx context.Context, concertID string) ([]*model.ConcertRegistration, error)
}

// StoreItemRepository はグッズ商品の永続化インターフェース。
type StoreItemRepository interface {
	// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.StoreItem, error)
	// List は商品一覧を返す。activeOnlyがtrueの場合は有効な商品のみ返す。
	List(ctx context.Context, activeOnly bool) ([]*model.StoreItem, error)
	// Create は商品を作成する。
	Create(ctx context.Context, item *model.StoreItem) error
	// Update は商品を更新する。
	Update(ctx context.Context, item *model.StoreItem) error
}

// ConcertRepository はコンサートの永続化インターフェース。
type ConcertRepository interface {
	// FindByID は指定IDのコンサートを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Concert, error)
	// List はコンサート一覧を開催日時昇順で返す。
	List(ctx context.Context, activeOnly bool) ([]*model.Concert, error)
	// Create はコンサートを作成する。
	Create(ctx context.Context, concert *model.Concert) error
	// Update はコンサートを更新する。
	Update(ctx context.Context, concert *model.Concert) error
}

// LiveRepository は配信ライブの永続化インターフェース。
type LiveRepository interface {
	// FindByID は指定IDのライブを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Live, error)
	// List はライブ一覧を返す。
	List(ctx context.Context, activeOnly bool) ([]*model.Live, error)
	// Create はライブを作成する。
	Create(ctx context.Context, live *model.Live) error
	// Update はライブを更新する。
	Update(ctx context.Context, live *model.Live) error
	// UpsertByFeedGUID はフィードGUIDをキーにライブを冪等にアップサートする。
	// livesyncワーカーが使用する。戻り値は挿入ならtrue。
	UpsertByFeedGUID(ctx context.Context, live *model.Live) (bool, error)
}

// NftAssetRepository はNFTアセットカタログの永続化インターフェース。
type NftAssetRepository interface {
	// FindByID は指定IDのアセットを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.NftAsset, error)
	// FindByCode はコードでアセットを検索する。見つからない場合はnilを返す。
	FindByCode(ctx context.Context, code string) (*model.NftAsset, error)
	// FindActiveByTierLevel は指定ティアに紐付く有効なアセットを検索する。
	// 見つからない場合はnilを返す。
	FindActiveByTierLevel(ctx context.Context, tierLevel int) (*model.NftAsset, error)
	// List はアセット一覧を返す。
	List(ctx context.Context, activeOnly bool) ([]*model.NftAsset, error)
}

// NftGrantRepository はNFTグラントの永続化インターフェース。
type NftGrantRepository interface {
	// FindByID は指定IDのグラントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.NftGrant, error)

	// FindActiveByTuple は(user_id, asset_id, origin_type, origin_ref)に一致する
	// FAILED以外のグラントを検索する。見つからない場合はnilを返す。
	FindActiveByTuple(ctx context.Context, userID, assetID string, originType model.GrantOrigin, originRef string) (*model.NftGrant, error)

	// Create はグラントを作成する。同一タプルのFAILED以外のグラントが既に存在する
	// 場合はユニーク制約違反になる（呼び出し元が既存グラントへフォールバックする）。
	Create(ctx context.Context, grant *model.NftGrant) error

	// ListByUser は指定ユーザーのグラント一覧を作成日時降順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.NftGrant, error)

	// MarkMinted はグラントをMINTEDへ遷移させ、minted_atを刻み、error_reasonを消去する。
	MarkMinted(ctx context.Context, id string, mintedAt time.Time) error

	// MarkFailed はグラントをFAILEDへ遷移させ、失敗理由を記録する。
	MarkFailed(ctx context.Context, id string, reason string) error
}

// WalletRepository はカストディアルウォレットの永続化インターフェース。
type WalletRepository interface {
	// FindByUserID は指定ユーザーのウォレットを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.CustodialWallet, error)
	// Create はウォレットを作成する。ユーザーごとに1件のユニーク制約がある。
	Create(ctx context.Context, wallet *model.CustodialWallet) error
}

// CollectibleRepository はNFTコレクティブルの永続化インターフェース。
type CollectibleRepository interface {
	// Create はコレクティブルを作成する。
	Create(ctx context.Context, c *model.NftCollectible) error
	// FindByGrantID は由来グラントIDでコレクティブルを検索する。見つからない場合はnilを返す。
	FindByGrantID(ctx context.Context, grantID string) (*model.NftCollectible, error)
	// ListByUser は指定ユーザーのコレクティブル一覧をミント日時降順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.NftCollectible, error)
	// ExistsByUserAndAsset は指定ユーザーが指定アセットのコレクティブルを
	// 1件以上保有しているかを返す。
	ExistsByUserAndAsset(ctx context.Context, userID, assetID string) (bool, error)
	// NextTokenID は単調増加カウンターから次のトークンIDを採番する。
	NextTokenID(ctx context.Context) (int64, error)
}

// MeetGreetRepository はミート&グリートの永続化インターフェース。
type MeetGreetRepository interface {
	// FindActiveEvent は現在有効なイベントを取得する。見つからない場合はnilを返す。
	// 有効イベントが複数ある場合は開催日時が最も近いものを返す。
	FindActiveEvent(ctx context.Context) (*model.MeetGreetEvent, error)

	// FindEventByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
	FindEventByID(ctx context.Context, id string) (*model.MeetGreetEvent, error)

	// CreateEvent はイベントを作成する。
	CreateEvent(ctx context.Context, event *model.MeetGreetEvent) error

	// FindAccessByUserID は指定ユーザーのアクセス記録を取得する。見つからない場合はnilを返す。
	FindAccessByUserID(ctx context.Context, userID string) (*model.MeetGreetAccess, error)

	// FindAccessByID は指定IDのアクセス記録を取得する。見つからない場合はnilを返す。
	FindAccessByID(ctx context.Context, id string) (*model.MeetGreetAccess, error)

	// CreateAccess はアクセス記録を作成する。ユーザーごとに1件のユニーク制約がある。
	CreateAccess(ctx context.Context, access *model.MeetGreetAccess) error

	// MarkAccessUsed はアクセス記録をUSEDへ遷移させる。
	// 既にUSEDの行は変更しない（used_atは最初の入場時刻のまま保持される）。
	// 戻り値は今回の呼び出しで遷移が起きた場合true。
	MarkAccessUsed(ctx context.Context, id string, usedAt time.Time) (bool, error)

	// MarkAccessExpired はアクセス記録をEXPIREDへ遷移させる。
	// USEDの行は変更しない。
	MarkAccessExpired(ctx context.Context, id string) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
