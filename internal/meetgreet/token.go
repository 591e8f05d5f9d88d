// Package meetgreet はミート&グリート入場権の状態管理と
// QRトークンの発行・照合を提供する。
package meetgreet

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// QrClaims はQRトークンに埋め込むクレーム。
// subにユーザーID、イベントID・アクセスIDで発行時点の入場権に束縛し、
// nonceで同一ペイロードの再利用を防ぐ。
type QrClaims struct {
	EventID  string `json:"eventId"`
	AccessID string `json:"accessId"`
	Nonce    string `json:"nonce"`
	jwt.RegisteredClaims
}

// TokenIssuer はHMAC署名付きの短命QRトークンを発行・照合する。
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue はユーザー・イベント・アクセス記録に束縛されたトークンを発行する。
// 戻り値はトークン文字列と絶対有効期限。
func (t *TokenIssuer) Issue(userID, eventID, accessID string) (string, time.Time, error) {
	nonce, err := generateNonce()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("ノンスの生成に失敗しました: %w", err)
	}

	now := time.Now().UTC()
	expiresAt := now.Add(t.ttl)

	claims := QrClaims{
		EventID:  eventID,
		AccessID: accessID,
		Nonce:    nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("トークンの署名に失敗しました: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify はトークンを照合してクレームを返す。
// 署名・有効期限・アルゴリズムのいずれの検証に失敗しても、
// 原因を区別しない単一のエラーを返す（フェイルクローズ）。
func (t *TokenIssuer) Verify(tokenString string) (*QrClaims, error) {
	claims := &QrClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("QRトークンの検証に失敗しました")
	}
	return claims, nil
}

// generateNonce は16バイトのランダムノンスを生成する。
func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
