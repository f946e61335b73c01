package model

import (
	"encoding/json"
	"time"
)

// ResourceAType はResourceAのエラーメッセージ等で使う型名。
const ResourceAType = "ResourceA"

// ResourceA はユーザーが所有するリソースを表す。
// 変更・削除はOwnerIDのユーザーのみが行える。
type ResourceA struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	OwnerID   string    `db:"owner_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ResourceAUpdate はResourceAの変更可能な属性の集合。
// nilのフィールドは変更しない。
type ResourceAUpdate struct {
	Name *string
}

// ResourceAMutableKeys はリクエストボディで受け付ける属性名。
var ResourceAMutableKeys = map[string]bool{
	"name": true,
}

// ParseResourceAUpdate はリクエストボディの属性マップを許可リストに従ってResourceAUpdateに変換する。
// 属性が1つもない場合はMissingParameters、許可されていないキーがある場合はそのキーを列挙した
// InvalidRequestKeys、値の型が不正な場合はInvalidRequestを返す。
func ParseResourceAUpdate(attrs map[string]json.RawMessage) (ResourceAUpdate, error) {
	var update ResourceAUpdate
	if len(attrs) == 0 {
		return update, NewMissingParametersError()
	}

	var unknown []string
	for key := range attrs {
		if !ResourceAMutableKeys[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		return update, NewInvalidRequestKeysError(unknown)
	}

	if raw, ok := attrs["name"]; ok {
		var name *string
		if err := json.Unmarshal(raw, &name); err != nil {
			return update, NewInvalidRequestError()
		}
		update.Name = name
	}
	return update, nil
}

// IsEmpty は変更対象の属性が1つもない場合にtrueを返す。
func (u ResourceAUpdate) IsEmpty() bool {
	return u.Name == nil
}

// Apply は指定された属性のみをresourceに反映する。
func (u ResourceAUpdate) Apply(resource *ResourceA) {
	if u.Name != nil {
		resource.Name = *u.Name
	}
}

// OwnedBy はuserIDがリソースの所有者であるかを返す。
func (r *ResourceA) OwnedBy(userID string) bool {
	return userID != "" && r.OwnerID == userID
}
