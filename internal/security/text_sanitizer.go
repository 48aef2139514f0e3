// Package security は表示前のテキスト無害化を提供する。
//
// メッセージ本文は外部のプロデューサーが書き込むため、端末制御シーケンスを
// 含みうる。本文はそのまま表示し、制御文字だけを取り除く。
// プロデューサーがHTML形式と明示した本文に限り、bluemondayのStrictPolicyで
// タグを除去してからプレーンテキストとして扱う。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はメッセージ本文を端末表示用の1行テキストに変換する。
// bluemondayのポリシーは並行利用できるため、1つのインスタンスを共有してよい。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はプレーンテキストから制御文字を除去して返す。
// "<" や "&" を含む本文も書かれたとおりに残す。
// 改行とタブは空白に置き換え、連続する空白は1つにまとめる。
func (s *TextSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))
	space := false
	for _, r := range raw {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r) || r == unicode.ReplacementChar:
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeHTML はHTML形式の本文からタグを除去し、Sanitizeと同じ整形をして返す。
func (s *TextSanitizer) SanitizeHTML(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyは本文をHTMLエスケープして返すため、表示用に戻す
	return s.Sanitize(html.UnescapeString(s.policy.Sanitize(raw)))
}
