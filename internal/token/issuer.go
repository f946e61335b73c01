// Package token は署名付きトークン（アクセス・リフレッシュ・メール確認）の発行と検証を行う。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose はトークンの用途。用途が異なるトークンは相互に受け付けない。
type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeRefresh Purpose = "refresh"
	PurposeConfirm Purpose = "confirm"
)

// ErrInvalidToken は署名不一致・期限切れ・用途違いのトークンに対して返される。
var ErrInvalidToken = errors.New("invalid token")

// Claims はトークンのペイロード。SubjectにユーザーIDを格納する。
type Claims struct {
	Purpose Purpose `json:"typ"`
	Email   string  `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Pair はログイン・サインアップで返すトークンの組。
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Issuer はHS256でトークンに署名する。
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	confirmTTL time.Duration
	now        func() time.Time
}

// NewIssuer はIssuerを生成する。
func NewIssuer(secret string, accessTTL, refreshTTL, confirmTTL time.Duration) *Issuer {
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		confirmTTL: confirmTTL,
		now:        time.Now,
	}
}

// IssuePair はユーザーのアクセストークンとリフレッシュトークンを発行する。
func (i *Issuer) IssuePair(userID string) (*Pair, error) {
	access, err := i.sign(userID, PurposeAccess, "", i.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := i.sign(userID, PurposeRefresh, "", i.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// IssueConfirmation はメールアドレス確認用のトークンを発行する。
func (i *Issuer) IssueConfirmation(userID, email string) (string, error) {
	return i.sign(userID, PurposeConfirm, email, i.confirmTTL)
}

// ParseAccess はアクセストークンを検証してユーザーIDを返す。
func (i *Issuer) ParseAccess(raw string) (string, error) {
	claims, err := i.parse(raw, PurposeAccess)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ParseConfirmation は確認トークンを検証してクレームを返す。
func (i *Issuer) ParseConfirmation(raw string) (*Claims, error) {
	return i.parse(raw, PurposeConfirm)
}

func (i *Issuer) sign(userID string, purpose Purpose, email string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		Purpose: purpose,
		Email:   email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", purpose, err)
	}
	return signed, nil
}

func (i *Issuer) parse(raw string, purpose Purpose) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Purpose != purpose || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
