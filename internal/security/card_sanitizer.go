// Package security はアプリケーションのセキュリティ機能を提供する。
//
// CardSanitizerService は名刺の入力フィールドをサニタイズし、
// XSS攻撃などのセキュリティリスクからユーザーを保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// プレーンテキストフィールドからは全タグを除去し、
// 自己紹介文には最小限のインライン整形のみを許可する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// CardSanitizerService は名刺フィールドのサニタイズ機能のインターフェースを定義する。
// 名刺の作成・更新時、永続化の前に使用される。
type CardSanitizerService interface {
	// SanitizeText はプレーンテキストフィールド（タイトル、氏名、職業等）を
	// サニタイズする。全てのHTMLタグを除去し、前後の空白をトリムする。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string

	// SanitizeBio は自己紹介文をサニタイズする。
	// 許可タグ（br, strong, em）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	SanitizeBio(raw string) string
}

// cardSanitizer はCardSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type cardSanitizer struct {
	textPolicy *bluemonday.Policy
	bioPolicy  *bluemonday.Policy
}

// NewCardSanitizer はCardSanitizerServiceの新しいインスタンスを生成する。
// 初期化時にbluemondayのポリシーを構築する。
// ポリシーの内容:
//   - テキストフィールド: 全タグ除去（StrictPolicy）
//   - 自己紹介文: br, strong, em のみ許可
//   - script, iframe, style および on*イベント属性は常に除去される
func NewCardSanitizer() *cardSanitizer {
	bio := bluemonday.NewPolicy()
	bio.AllowElements("br", "strong", "em")

	return &cardSanitizer{
		textPolicy: bluemonday.StrictPolicy(),
		bioPolicy:  bio,
	}
}

// SanitizeText はプレーンテキストフィールドをサニタイズする。
func (s *cardSanitizer) SanitizeText(raw string) string {
	return strings.TrimSpace(s.textPolicy.Sanitize(raw))
}

// SanitizeBio は自己紹介文をサニタイズする。
func (s *cardSanitizer) SanitizeBio(raw string) string {
	return strings.TrimSpace(s.bioPolicy.Sanitize(raw))
}
