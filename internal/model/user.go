// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// AccountTypeでアカウント種別（ExampleUser, AdminUser 等）を区別する。
type User struct {
	ID                  string     `db:"id"`
	AccountType         string     `db:"account_type"`
	Email               string     `db:"email"`
	FirstName           string     `db:"first_name"`
	LastName            string     `db:"last_name"`
	FacebookUserID      *string    `db:"facebook_user_id"`
	FacebookAccessToken *string    `db:"facebook_access_token"`
	ConfirmedAt         *time.Time `db:"confirmed_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// StoredFacebookToken は保存済みの長期トークンを返す。未設定の場合は空文字列。
func (u *User) StoredFacebookToken() string {
	if u.FacebookAccessToken == nil {
		return ""
	}
	return *u.FacebookAccessToken
}

// AccountType はアカウント種別を表す。
// Privilegedな種別はソーシャルログインでは作成できない。
type AccountType struct {
	Tag        string
	Privileged bool
}

// 既知のアカウント種別
var (
	AccountTypeExample = AccountType{Tag: "ExampleUser"}
	AccountTypeAdmin   = AccountType{Tag: "AdminUser", Privileged: true}
)

// accountTypes は既知のアカウント種別の固定レジストリ。
var accountTypes = map[string]AccountType{
	AccountTypeExample.Tag: AccountTypeExample,
	AccountTypeAdmin.Tag:   AccountTypeAdmin,
}

// LookupAccountType はタグからアカウント種別を解決する。
// 未知のタグの場合はfalseを返す。
func LookupAccountType(tag string) (AccountType, bool) {
	t, ok := accountTypes[tag]
	return t, ok
}
