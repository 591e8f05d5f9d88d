// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, reward, meetgreet, sales, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeGrantNotFound       = "GRANT_NOT_FOUND"
	ErrCodeConcertNotFound     = "CONCERT_NOT_FOUND"
	ErrCodeLiveNotFound        = "LIVE_NOT_FOUND"
	ErrCodeItemNotFound        = "ITEM_NOT_FOUND"
	ErrCodeInvalidAsset        = "INVALID_ASSET"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodeTokenInvalid        = "TOKEN_INVALID_OR_EXPIRED"
	ErrCodeAccessNotFound      = "ACCESS_NOT_FOUND"
	ErrCodeForbidden           = "FORBIDDEN"
)

// NewValidationError は不正な入力に対するエラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewGrantNotFoundError はグラントが見つからない場合のエラーを生成する。
// 他ユーザーのグラントを指定した場合も存在有無を区別せずこのエラーを返す。
func NewGrantNotFoundError(grantID string) *APIError {
	return &APIError{
		Code:     ErrCodeGrantNotFound,
		Message:  fmt.Sprintf("指定されたグラントが見つかりません: %s", grantID),
		Category: "reward",
		Action:   "グラントIDを確認してください。",
	}
}

// NewConcertNotFoundError はコンサートが見つからない場合のエラーを生成する。
func NewConcertNotFoundError(concertID string) *APIError {
	return &APIError{
		Code:     ErrCodeConcertNotFound,
		Message:  fmt.Sprintf("指定されたコンサートが見つかりません: %s", concertID),
		Category: "sales",
		Action:   "コンサートIDを確認してください。",
	}
}

// NewLiveNotFoundError は配信ライブが見つからない場合のエラーを生成する。
func NewLiveNotFoundError(liveID string) *APIError {
	return &APIError{
		Code:     ErrCodeLiveNotFound,
		Message:  fmt.Sprintf("指定されたライブが見つかりません: %s", liveID),
		Category: "validation",
		Action:   "ライブIDを確認してください。",
	}
}

// NewItemNotFoundError はカタログアイテムが見つからない場合のエラーを生成する。
func NewItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeItemNotFound,
		Message:  fmt.Sprintf("指定されたアイテムが見つかりません: %s", itemID),
		Category: "validation",
		Action:   "アイテムIDを確認してください。",
	}
}

// NewInvalidAssetError はグラントが参照するアセットが
// 廃止済みまたは未知の場合のエラーを生成する。対象グラントはFAILEDになる。
func NewInvalidAssetError(assetID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAsset,
		Message:  fmt.Sprintf("アセットが無効または廃止されています: %s", assetID),
		Category: "reward",
		Action:   "特典一覧を再読み込みしてください。",
	}
}

// NewInvalidStateError は要求された状態以外での操作に対するエラーを生成する。
func NewInvalidStateError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  fmt.Sprintf("現在の状態ではこの操作は実行できません: %s", reason),
		Category: "meetgreet",
		Action:   "パスの状態を確認してください。",
	}
}

// NewTokenInvalidError はQRトークンの検証失敗エラーを生成する。
// どの検証に失敗したかを漏らさないよう、理由は常に単一の不透明な文言にする。
func NewTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenInvalid,
		Message:  "QRトークンが無効または期限切れです。",
		Category: "meetgreet",
		Action:   "QRコードを再生成してください。",
	}
}

// NewAccessNotFoundError はトークンが指すアクセス記録が
// 現在の記録と一致しない場合のエラーを生成する。
func NewAccessNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAccessNotFound,
		Message:  "入場権の記録が見つかりません。",
		Category: "meetgreet",
		Action:   "パスの状態を確認し、QRコードを再生成してください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "運営アカウントでログインしてください。",
	}
}
