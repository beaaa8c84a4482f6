// Package model はドメインモデルを定義する。
package model

import "time"

// Card はデジタル名刺を表す。
// 1ユーザーが複数枚保持でき、プランのmaxCardsで作成数が制限される。
type Card struct {
	ID         string
	UserID     string
	Title      string
	Name       string
	Profession string
	Email      string
	Phone      string
	Website    string
	Bio        string
	Views      int
	Clicks     int
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CardSummary は一覧表示用の名刺サマリー。
// GET /api/cards のレスポンス要素であり、クライアントキャッシュの単位。
type CardSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Name       string    `json:"name"`
	Profession string    `json:"profession"`
	Views      int       `json:"views"`
	Clicks     int       `json:"clicks"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Summary はCardからCardSummaryを導出する。
func (c *Card) Summary() CardSummary {
	return CardSummary{
		ID:         c.ID,
		Title:      c.Title,
		Name:       c.Name,
		Profession: c.Profession,
		Views:      c.Views,
		Clicks:     c.Clicks,
		IsActive:   c.IsActive,
		CreatedAt:  c.CreatedAt,
	}
}
