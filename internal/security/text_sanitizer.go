package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザー入力のプレーンテキスト属性からマークアップを除去する。
type TextSanitizer interface {
	// Sanitize はすべてのHTMLタグを除去し、前後の空白を取り除いたテキストを返す。
	// HTMLエンティティはデコードした状態で返す（JSON応答で二重エスケープしないため）。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はbluemondayのStrictPolicyを保持する。
// bluemonday.Policyはスレッドセーフ。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去したテキストを返す。
// "&lt;b&gt;" のようにエンティティ化されたタグも、出力が変化しなくなるまでデコードと除去を繰り返す。
// 1回の処理でタグ除去かエンティティのデコードが起きれば文字列は必ず短くなるため、反復は停止する。
func (s *textSanitizer) Sanitize(raw string) string {
	out := raw
	for {
		sanitized := s.policy.Sanitize(out)
		next := html.UnescapeString(sanitized)
		if next == out {
			break
		}
		if len(next) >= len(out) {
			// 短くならない変化はデコードせず、エスケープ済みの出力を返す
			return strings.TrimSpace(sanitized)
		}
		out = next
	}
	return strings.TrimSpace(out)
}
