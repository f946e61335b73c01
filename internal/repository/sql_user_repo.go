package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/appkit/internal/model"
)

const userColumns = `id, account_type, email, first_name, last_name,
	facebook_user_id, facebook_access_token, confirmed_at, created_at, updated_at`

// SQLUserRepo はsqlxを使用したユーザーリポジトリ。
// クエリは ? プレースホルダで記述し、Rebindでドライバの形式に変換する。
type SQLUserRepo struct {
	db *sqlx.DB
}

// NewSQLUserRepo はSQLUserRepoを生成する。
func NewSQLUserRepo(db *sqlx.DB) *SQLUserRepo {
	return &SQLUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *SQLUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	err := r.db.GetContext(ctx, user,
		r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`),
		id,
	)
	if errors.Is(err, sql.ErrNoRows) || isMalformedID(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByFacebookID はFacebookユーザーIDでユーザーを検索する。見つからない場合はnilを返す。
func (r *SQLUserRepo) FindByFacebookID(ctx context.Context, facebookUserID string) (*model.User, error) {
	user := &model.User{}
	err := r.db.GetContext(ctx, user,
		r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE facebook_user_id = ?`),
		facebookUserID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by facebook ID: %w", err)
	}
	return user, nil
}

// ExistsByEmail は指定アカウント種別で同じメールアドレスのユーザーが存在するかを返す。
func (r *SQLUserRepo) ExistsByEmail(ctx context.Context, accountType, email string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		r.db.Rebind(`SELECT count(*) FROM users WHERE account_type = ? AND email = ?`),
		accountType, email,
	)
	if err != nil {
		return false, fmt.Errorf("failed to check user email: %w", err)
	}
	return count > 0, nil
}

// Create はユーザーを作成する。一意制約違反の場合はErrDuplicateを返す。
func (r *SQLUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO users (id, account_type, email, first_name, last_name,
			facebook_user_id, facebook_access_token, confirmed_at, created_at, updated_at)
		 VALUES (:id, :account_type, :email, :first_name, :last_name,
			:facebook_user_id, :facebook_access_token, :confirmed_at, :created_at, :updated_at)`,
		user,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to insert user: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateFacebookToken は保存済みの長期トークンを置き換える。
func (r *SQLUserRepo) UpdateFacebookToken(ctx context.Context, userID, token string) error {
	result, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE users SET facebook_access_token = ?, updated_at = ? WHERE id = ?`),
		token, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update facebook token: %w", err)
	}
	return expectOneRow(result, "user", userID)
}

// MarkConfirmed はメールアドレス確認日時を設定する。
// confirmed_atが既に設定されている場合は上書きしない。
func (r *SQLUserRepo) MarkConfirmed(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE users SET confirmed_at = ?, updated_at = ? WHERE id = ? AND confirmed_at IS NULL`),
		at, at, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark user confirmed: %w", err)
	}
	return nil
}

// expectOneRow は更新・削除対象が存在したことを確認する。
func expectOneRow(result sql.Result, kind, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s not found: %s", kind, id)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*SQLUserRepo)(nil)
