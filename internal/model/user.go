// Package model はドメインモデルを定義する。
package model

import "time"

// AccountStatus はユーザーアカウントの課金状態を表す。
type AccountStatus string

const (
	// StatusTrial は7日間の無料トライアル期間中であることを示す。
	StatusTrial AccountStatus = "TRIAL"
	// StatusActive は有効なプラン契約中であることを示す。
	StatusActive AccountStatus = "ACTIVE"
	// StatusExpired はトライアルまたは契約が失効していることを示す。
	StatusExpired AccountStatus = "EXPIRED"
)

// DefaultUserName は表示名が取得できなかった場合のフォールバック値。
const DefaultUserName = "Usuario de Desarrollo"

// DefaultUserImage はアバター画像が取得できなかった場合のフォールバック値。
const DefaultUserImage = "/logo.png"

// User はサービス利用ユーザーを表す。
// emailをユニークキーとして初回認証時に遅延作成され、
// トライアル関連フィールドは作成時に固定される。
type User struct {
	ID             string
	Email          string
	Name           string
	Image          string
	Status         AccountStatus
	TrialStartDate time.Time
	TrialEndDate   time.Time // TrialStartDate + トライアル日数。作成時に固定
	IsFirstYear    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Identity は外部IdPから取得した認証済みアイデンティティを表す。
// ログインリクエストにのみ存在し、トークンリフレッシュ時には存在しない。
type Identity struct {
	ProviderUserID string
	Email          string
	Name           string
	Image          string
	Provider       string // "google", "development" 等
}

// Session はユーザーのログインセッションを表す。
// エンリッチ済みのクレーム（UserID, Status）はトークン発行時点の
// User Recordから導出されたスナップショットであり、真実の源ではない。
type Session struct {
	ID        string
	UserID    string
	Status    AccountStatus
	Email     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionUser はAPIコンシューマーに公開するセッションユーザー表現。
// マテリアライズ時にトークンのフィールドが欠けていてもデフォルト値で補完される。
type SessionUser struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Image  string `json:"image"`
	Status string `json:"status"`
}
