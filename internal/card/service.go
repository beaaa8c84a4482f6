// Package card はデジタル名刺のビジネスロジックを提供する。
//
// 名刺の作成はプラン制限（アカウント状態から導出される上限）に従い、
// すべてのテキスト入力は永続化の前にサニタイズされる。
// ウェブサイトURLはSSRF防止の事前検証を通過したもののみ保存される。
package card

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/matiquelmec/tarjetas-server/internal/model"
	"github.com/matiquelmec/tarjetas-server/internal/plan"
	"github.com/matiquelmec/tarjetas-server/internal/repository"
	"github.com/matiquelmec/tarjetas-server/internal/security"
)

// 入力フィールドの最大長。
const (
	maxTitleLength = 100
	maxNameLength  = 100
	maxBioLength   = 1000
)

// CardInput は名刺の作成・更新の入力。
type CardInput struct {
	Title      string `json:"title"`
	Name       string `json:"name"`
	Profession string `json:"profession"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Website    string `json:"website"`
	Bio        string `json:"bio"`
	IsActive   *bool  `json:"isActive,omitempty"`
}

// Service は名刺のCRUD操作を提供する。
type Service struct {
	cardRepo  repository.CardRepository
	planSvc   *plan.Service
	sanitizer security.CardSanitizerService
	guard     security.SSRFGuardService
}

// NewService はServiceを生成する。
func NewService(
	cardRepo repository.CardRepository,
	planSvc *plan.Service,
	sanitizer security.CardSanitizerService,
	guard security.SSRFGuardService,
) *Service {
	return &Service{
		cardRepo:  cardRepo,
		planSvc:   planSvc,
		sanitizer: sanitizer,
		guard:     guard,
	}
}

// CreateCard は名刺を作成する。
// プラン制限の検証、入力サニタイズ、URL検証を順に行う。
func (s *Service) CreateCard(ctx context.Context, userID string, status model.AccountStatus, input CardInput) (*model.Card, error) {
	if status == model.StatusExpired {
		return nil, model.NewPlanExpiredError()
	}

	limits, err := s.planSvc.LimitsFor(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to derive plan limits: %w", err)
	}
	if !limits.CanCreateCard {
		return nil, model.NewCardLimitError(limits.MaxCards)
	}

	card, err := s.buildCard(userID, input)
	if err != nil {
		return nil, err
	}

	if err := s.cardRepo.Create(ctx, card); err != nil {
		return nil, fmt.Errorf("failed to create card: %w", err)
	}

	slog.Info("card created",
		slog.String("card_id", card.ID),
		slog.String("user_id", userID),
	)

	return card, nil
}

// ListCards はユーザーの名刺サマリー一覧を作成日時の降順で返す。
func (s *Service) ListCards(ctx context.Context, userID string) ([]model.CardSummary, error) {
	cards, err := s.cardRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}

	summaries := make([]model.CardSummary, 0, len(cards))
	for _, c := range cards {
		summaries = append(summaries, c.Summary())
	}
	return summaries, nil
}

// GetCard はユーザーが所有する名刺を取得する。
// 他ユーザーの名刺は存在しないものとして扱う。
func (s *Service) GetCard(ctx context.Context, userID, cardID string) (*model.Card, error) {
	card, err := s.cardRepo.FindByID(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to find card: %w", err)
	}
	if card == nil || card.UserID != userID {
		return nil, model.NewCardNotFoundError(cardID)
	}
	return card, nil
}

// UpdateCard はユーザーが所有する名刺を更新する。
// 入力のサニタイズとURL検証は作成時と同じポリシーで行う。
func (s *Service) UpdateCard(ctx context.Context, userID, cardID string, input CardInput) (*model.Card, error) {
	card, err := s.GetCard(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}

	if err := s.applyInput(card, input); err != nil {
		return nil, err
	}
	card.UpdatedAt = time.Now()

	if err := s.cardRepo.Update(ctx, card); err != nil {
		return nil, fmt.Errorf("failed to update card: %w", err)
	}

	slog.Info("card updated",
		slog.String("card_id", card.ID),
		slog.String("user_id", userID),
	)

	return card, nil
}

// DeleteCard はユーザーが所有する名刺を削除する。
func (s *Service) DeleteCard(ctx context.Context, userID, cardID string) error {
	if _, err := s.GetCard(ctx, userID, cardID); err != nil {
		return err
	}

	if err := s.cardRepo.Delete(ctx, cardID); err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}

	slog.Info("card deleted",
		slog.String("card_id", cardID),
		slog.String("user_id", userID),
	)

	return nil
}

// buildCard は入力から新規の名刺を構築する。
func (s *Service) buildCard(userID string, input CardInput) (*model.Card, error) {
	now := time.Now()
	card := &model.Card{
		ID:        uuid.New().String(),
		UserID:    userID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.applyInput(card, input); err != nil {
		return nil, err
	}
	return card, nil
}

// applyInput は入力を検証・サニタイズして名刺に反映する。
func (s *Service) applyInput(card *model.Card, input CardInput) error {
	title := s.sanitizer.SanitizeText(input.Title)
	name := s.sanitizer.SanitizeText(input.Name)

	if title == "" {
		return model.NewInvalidInputError("タイトルは必須です")
	}
	if len(title) > maxTitleLength {
		return model.NewInvalidInputError(fmt.Sprintf("タイトルは%d文字以内にしてください", maxTitleLength))
	}
	if name == "" {
		return model.NewInvalidInputError("氏名は必須です")
	}
	if len(name) > maxNameLength {
		return model.NewInvalidInputError(fmt.Sprintf("氏名は%d文字以内にしてください", maxNameLength))
	}

	bio := s.sanitizer.SanitizeBio(input.Bio)
	if len(bio) > maxBioLength {
		return model.NewInvalidInputError(fmt.Sprintf("自己紹介文は%d文字以内にしてください", maxBioLength))
	}

	website := s.sanitizer.SanitizeText(input.Website)
	if website != "" {
		if err := s.guard.ValidateURL(website); err != nil {
			return model.NewInvalidURLError(website)
		}
	}

	card.Title = title
	card.Name = name
	card.Profession = s.sanitizer.SanitizeText(input.Profession)
	card.Email = s.sanitizer.SanitizeText(input.Email)
	card.Phone = s.sanitizer.SanitizeText(input.Phone)
	card.Website = website
	card.Bio = bio
	if input.IsActive != nil {
		card.IsActive = *input.IsActive
	}
	return nil
}
