package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/hitoshi/appkit/internal/model"
)

// maxBodyBytes はリクエストボディの上限サイズ。
const maxBodyBytes = 1 << 20

// decodeJSONBody はリクエストボディをvにデコードする。
// ボディが空の場合はemptyにtrueを返し、vは変更しない。
// 不正なJSONの場合はINVALID_REQUESTを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) (empty bool, err error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return false, model.NewInvalidRequestError()
		}
		return false, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true, nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return false, model.NewInvalidRequestError()
	}
	return false, nil
}

// decodeAttributes はリクエストボディをJSONオブジェクトの属性マップとしてデコードする。
// ボディが空またはnullの場合は空のマップを返す。
func decodeAttributes(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, error) {
	attrs := map[string]json.RawMessage{}
	if _, err := decodeJSONBody(w, r, &attrs); err != nil {
		return nil, err
	}
	if attrs == nil {
		attrs = map[string]json.RawMessage{}
	}
	return attrs, nil
}
