// Package model はドメインモデルを定義する。
package model

// PlanLimits はアカウント状態から導出されるプラン制限を表す。
// GET /api/user/plan-limits のレスポンスであり、クライアントキャッシュの単位。
type PlanLimits struct {
	MaxCards      int    `json:"maxCards"`
	CurrentCards  int    `json:"currentCards"`
	CanCreateCard bool   `json:"canCreateCard"`
	Status        string `json:"status"`
}
