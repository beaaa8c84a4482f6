package card

import (
	"context"
	"errors"
	"testing"

	"github.com/matiquelmec/tarjetas-server/internal/model"
	"github.com/matiquelmec/tarjetas-server/internal/plan"
	"github.com/matiquelmec/tarjetas-server/internal/repository"
	"github.com/matiquelmec/tarjetas-server/internal/security"
)

type mockCardRepo struct {
	cards    map[string]*model.Card
	createFn func(ctx context.Context, card *model.Card) error
}

func newMockCardRepo() *mockCardRepo {
	return &mockCardRepo{cards: make(map[string]*model.Card)}
}

func (m *mockCardRepo) FindByID(ctx context.Context, id string) (*model.Card, error) {
	return m.cards[id], nil
}

func (m *mockCardRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Card, error) {
	var out []*model.Card
	for _, c := range m.cards {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCardRepo) CountByUserID(ctx context.Context, userID string) (int, error) {
	count := 0
	for _, c := range m.cards {
		if c.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *mockCardRepo) Create(ctx context.Context, card *model.Card) error {
	if m.createFn != nil {
		return m.createFn(ctx, card)
	}
	m.cards[card.ID] = card
	return nil
}

func (m *mockCardRepo) Update(ctx context.Context, card *model.Card) error {
	if _, ok := m.cards[card.ID]; !ok {
		return errors.New("card not found")
	}
	m.cards[card.ID] = card
	return nil
}

func (m *mockCardRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.cards[id]; !ok {
		return errors.New("card not found")
	}
	delete(m.cards, id)
	return nil
}

func (m *mockCardRepo) DeleteByUserID(ctx context.Context, userID string) error {
	for id, c := range m.cards {
		if c.UserID == userID {
			delete(m.cards, id)
		}
	}
	return nil
}

// compile-time interface check
var _ repository.CardRepository = (*mockCardRepo)(nil)

func newTestService(repo *mockCardRepo) *Service {
	return NewService(
		repo,
		plan.NewService(repo),
		security.NewCardSanitizer(),
		security.NewSSRFGuard(),
	)
}

func validInput() CardInput {
	return CardInput{
		Title:      "Mi Tarjeta",
		Name:       "Ana García",
		Profession: "Desarrolladora",
		Email:      "ana@example.com",
		Website:    "https://ana.example.com",
		Bio:        "Hola, soy Ana.",
	}
}

func TestCreateCard_Success(t *testing.T) {
	repo := newMockCardRepo()
	svc := newTestService(repo)

	card, err := svc.CreateCard(context.Background(), "user-1", model.StatusTrial, validInput())
	if err != nil {
		t.Fatalf("CreateCard returned error: %v", err)
	}
	if card.ID == "" {
		t.Error("expected non-empty card ID")
	}
	if card.UserID != "user-1" {
		t.Errorf("userID = %q, want user-1", card.UserID)
	}
	if !card.IsActive {
		t.Error("new card should be active")
	}
	if _, ok := repo.cards[card.ID]; !ok {
		t.Error("card was not persisted")
	}
}

func TestCreateCard_TrialLimitReached(t *testing.T) {
	repo := newMockCardRepo()
	svc := newTestService(repo)

	// トライアルは上限1枚
	if _, err := svc.CreateCard(context.Background(), "user-1", model.StatusTrial, validInput()); err != nil {
		t.Fatalf("first CreateCard returned error: %v", err)
	}

	_, err := svc.CreateCard(context.Background(), "user-1", model.StatusTrial, validInput())
	if err == nil {
		t.Fatal("expected limit error for second card on trial")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeCardLimit {
		t.Errorf("error = %v, want code %s", err, model.ErrCodeCardLimit)
	}
}

func TestCreateCard_ExpiredPlan(t *testing.T) {
	svc := newTestService(newMockCardRepo())

	_, err := svc.CreateCard(context.Background(), "user-1", model.StatusExpired, validInput())
	if err == nil {
		t.Fatal("expected error for expired plan")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodePlanExpired {
		t.Errorf("error = %v, want code %s", err, model.ErrCodePlanExpired)
	}
}

func TestCreateCard_SanitizesFields(t *testing.T) {
	repo := newMockCardRepo()
	svc := newTestService(repo)

	input := validInput()
	input.Title = `Mi Tarjeta<script>alert(1)</script>`
	input.Bio = `Soy <strong>Ana</strong><script>alert(1)</script>`

	card, err := svc.CreateCard(context.Background(), "user-1", model.StatusActive, input)
	if err != nil {
		t.Fatalf("CreateCard returned error: %v", err)
	}
	if card.Title != "Mi Tarjeta" {
		t.Errorf("title = %q, want sanitized %q", card.Title, "Mi Tarjeta")
	}
	if card.Bio != "Soy <strong>Ana</strong>" {
		t.Errorf("bio = %q, want inline formatting kept and script removed", card.Bio)
	}
}

func TestCreateCard_MissingTitle(t *testing.T) {
	svc := newTestService(newMockCardRepo())

	input := validInput()
	input.Title = ""

	_, err := svc.CreateCard(context.Background(), "user-1", model.StatusTrial, input)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidInput {
		t.Errorf("error = %v, want code %s", err, model.ErrCodeInvalidInput)
	}
}

func TestCreateCard_BlockedWebsiteURL(t *testing.T) {
	svc := newTestService(newMockCardRepo())

	tests := []string{
		"http://127.0.0.1/admin",
		"http://169.254.169.254/latest/meta-data/",
		"javascript:alert(1)",
	}

	for _, website := range tests {
		t.Run(website, func(t *testing.T) {
			input := validInput()
			input.Website = website

			_, err := svc.CreateCard(context.Background(), "user-1", model.StatusTrial, input)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidURL {
				t.Errorf("error = %v, want code %s", err, model.ErrCodeInvalidURL)
			}
		})
	}
}

func TestListCards_ReturnsSummaries(t *testing.T) {
	repo := newMockCardRepo()
	svc := newTestService(repo)

	card, err := svc.CreateCard(context.Background(), "user-1", model.StatusTrial, validInput())
	if err != nil {
		t.Fatalf("CreateCard returned error: %v", err)
	}

	summaries, err := svc.ListCards(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListCards returned error: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("len(summaries) = %d, want 1", len(summaries))
	}
	if summaries[0].ID != card.ID || summaries[0].Title != "Mi Tarjeta" {
		t.Errorf("unexpected summary: %+v", summaries[0])
	}
}

func TestListCards_EmptyForUnknownUser(t *testing.T) {
	svc := newTestService(newMockCardRepo())

	summaries, err := svc.ListCards(context.Background(), "nadie")
	if err != nil {
		t.Fatalf("ListCards returned error: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("len(summaries) = %d, want 0", len(summaries))
	}
}

func TestGetCard_OwnershipEnforced(t *testing.T) {
	repo := newMockCardRepo()
	svc := newTestService(repo)

	card, err := svc.CreateCard(context.Background(), "user-1", model.StatusTrial, validInput())
	if err != nil {
		t.Fatalf("CreateCard returned error: %v", err)
	}

	// 他ユーザーからは見えない
	_, err = svc.GetCard(context.Background(), "user-2", card.ID)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeCardNotFound {
		t.Errorf("error = %v, want code %s", err, model.ErrCodeCardNotFound)
	}

	// 所有者からは見える
	got, err := svc.GetCard(context.Background(), "user-1", card.ID)
	if err != nil {
		t.Fatalf("GetCard returned error: %v", err)
	}
	if got.ID != card.ID {
		t.Errorf("got.ID = %q, want %q", got.ID, card.ID)
	}
}

func TestUpdateCard_AppliesSanitizedInput(t *testing.T) {
	repo := newMockCardRepo()
	svc := newTestService(repo)

	card, err := svc.CreateCard(context.Background(), "user-1", model.StatusTrial, validInput())
	if err != nil {
		t.Fatalf("CreateCard returned error: %v", err)
	}

	input := validInput()
	input.Title = "Tarjeta <em>Nueva</em>"
	inactive := false
	input.IsActive = &inactive

	updated, err := svc.UpdateCard(context.Background(), "user-1", card.ID, input)
	if err != nil {
		t.Fatalf("UpdateCard returned error: %v", err)
	}
	if updated.Title != "Tarjeta Nueva" {
		t.Errorf("title = %q, want sanitized %q", updated.Title, "Tarjeta Nueva")
	}
	if updated.IsActive {
		t.Error("card should be inactive after update")
	}
}

func TestDeleteCard_RemovesOwnedCard(t *testing.T) {
	repo := newMockCardRepo()
	svc := newTestService(repo)

	card, err := svc.CreateCard(context.Background(), "user-1", model.StatusTrial, validInput())
	if err != nil {
		t.Fatalf("CreateCard returned error: %v", err)
	}

	if err := svc.DeleteCard(context.Background(), "user-2", card.ID); err == nil {
		t.Error("other user should not be able to delete")
	}

	if err := svc.DeleteCard(context.Background(), "user-1", card.ID); err != nil {
		t.Fatalf("DeleteCard returned error: %v", err)
	}
	if _, ok := repo.cards[card.ID]; ok {
		t.Error("card should be removed")
	}
}
