// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/appkit/internal/model"
)

// ErrDuplicate は一意制約違反で挿入できなかった場合に返される。
var ErrDuplicate = errors.New("duplicate record")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByFacebookID はFacebookユーザーIDでユーザーを検索する。見つからない場合はnilを返す。
	FindByFacebookID(ctx context.Context, facebookUserID string) (*model.User, error)

	// ExistsByEmail は指定アカウント種別で同じメールアドレスのユーザーが存在するかを返す。
	ExistsByEmail(ctx context.Context, accountType, email string) (bool, error)

	// Create はユーザーを作成する。一意制約違反の場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateFacebookToken は保存済みの長期トークンを置き換える。
	UpdateFacebookToken(ctx context.Context, userID, token string) error

	// MarkConfirmed はメールアドレス確認日時を設定する。
	// 既に確認済みの場合は元の日時を維持する。
	MarkConfirmed(ctx context.Context, userID string, at time.Time) error
}

// ResourceARepository はResourceAの永続化インターフェース。
type ResourceARepository interface {
	// Create はリソースを作成する。
	Create(ctx context.Context, resource *model.ResourceA) error

	// List は全リソースを作成日時の昇順で返す。
	List(ctx context.Context) ([]*model.ResourceA, error)

	// FindByID は指定IDのリソースを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ResourceA, error)

	// Update はリソースの変更可能な属性を更新する。
	Update(ctx context.Context, resource *model.ResourceA) error

	// Delete は指定IDのリソースを削除する。
	Delete(ctx context.Context, id string) error
}
