// Package plan はアカウント状態からプラン制限を導出する。
package plan

import (
	"context"
	"fmt"

	"github.com/matiquelmec/tarjetas-server/internal/model"
	"github.com/matiquelmec/tarjetas-server/internal/repository"
)

// アカウント状態ごとの名刺作成上限。
const (
	trialMaxCards  = 1
	activeMaxCards = 5
)

// Service はプラン制限の導出を提供する。
type Service struct {
	cardRepo repository.CardRepository
}

// NewService はServiceを生成する。
func NewService(cardRepo repository.CardRepository) *Service {
	return &Service{cardRepo: cardRepo}
}

// MaxCardsFor はアカウント状態に対応する名刺作成上限を返す。
// 失効したアカウントは新規作成できない。
func MaxCardsFor(status model.AccountStatus) int {
	switch status {
	case model.StatusActive:
		return activeMaxCards
	case model.StatusExpired:
		return 0
	default:
		// 不明な状態はトライアル相当として扱う
		return trialMaxCards
	}
}

// LimitsFor はユーザーの現在のプラン制限を導出する。
// 名刺数の取得に失敗した場合はエラーを返す。
func (s *Service) LimitsFor(ctx context.Context, userID string, status model.AccountStatus) (*model.PlanLimits, error) {
	count, err := s.cardRepo.CountByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count cards: %w", err)
	}

	maxCards := MaxCardsFor(status)
	return &model.PlanLimits{
		MaxCards:      maxCards,
		CurrentCards:  count,
		CanCreateCard: count < maxCards,
		Status:        string(status),
	}, nil
}
