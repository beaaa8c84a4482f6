// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, card, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUserNotFound  = "USER_NOT_FOUND"
	ErrCodeCardNotFound  = "CARD_NOT_FOUND"
	ErrCodeCardLimit     = "CARD_LIMIT_REACHED"
	ErrCodePlanExpired   = "PLAN_EXPIRED"
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeInvalidURL    = "INVALID_URL"
	ErrCodeSSRFBlocked   = "SSRF_BLOCKED"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
)

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewCardNotFoundError は名刺が見つからない場合のエラーを生成する。
func NewCardNotFoundError(cardID string) *APIError {
	return &APIError{
		Code:     ErrCodeCardNotFound,
		Message:  fmt.Sprintf("指定された名刺が見つかりません: %s", cardID),
		Category: "card",
		Action:   "名刺IDを確認してください。",
	}
}

// NewCardLimitError はプランの名刺作成上限に達した場合のエラーを生成する。
func NewCardLimitError(maxCards int) *APIError {
	return &APIError{
		Code:     ErrCodeCardLimit,
		Message:  fmt.Sprintf("名刺の作成数が上限（%d枚）に達しています。", maxCards),
		Category: "card",
		Action:   "不要な名刺を削除するか、プランをアップグレードしてください。",
	}
}

// NewPlanExpiredError はプラン失効中の作成操作に対するエラーを生成する。
func NewPlanExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodePlanExpired,
		Message:  "トライアル期間または契約が終了しています。",
		Category: "card",
		Action:   "プランを契約すると名刺の作成を再開できます。",
	}
}

// NewInvalidInputError は入力値検証エラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}
