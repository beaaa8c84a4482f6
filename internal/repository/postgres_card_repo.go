package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/matiquelmec/tarjetas-server/internal/model"
)

// PostgresCardRepo はPostgreSQLを使用した名刺リポジトリ。
type PostgresCardRepo struct {
	db *sql.DB
}

// NewPostgresCardRepo はPostgresCardRepoを生成する。
func NewPostgresCardRepo(db *sql.DB) *PostgresCardRepo {
	return &PostgresCardRepo{db: db}
}

const cardColumns = `id, user_id, title, name, profession, email, phone, website, bio, views, clicks, is_active, created_at, updated_at`

// FindByID は指定IDの名刺を取得する。見つからない場合はnilを返す。
func (r *PostgresCardRepo) FindByID(ctx context.Context, id string) (*model.Card, error) {
	card := &model.Card{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE id = $1`,
		id,
	).Scan(
		&card.ID, &card.UserID, &card.Title, &card.Name, &card.Profession,
		&card.Email, &card.Phone, &card.Website, &card.Bio,
		&card.Views, &card.Clicks, &card.IsActive,
		&card.CreatedAt, &card.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card by ID: %w", err)
	}

	return card, nil
}

// ListByUserID はユーザーの名刺一覧を作成日時の降順で返す。
func (r *PostgresCardRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Card, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM cards
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var cards []*model.Card
	for rows.Next() {
		card := &model.Card{}
		if err := rows.Scan(
			&card.ID, &card.UserID, &card.Title, &card.Name, &card.Profession,
			&card.Email, &card.Phone, &card.Website, &card.Bio,
			&card.Views, &card.Clicks, &card.IsActive,
			&card.CreatedAt, &card.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cards: %w", err)
	}

	return cards, nil
}

// CountByUserID はユーザーの名刺数を返す。
func (r *PostgresCardRepo) CountByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cards WHERE user_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return count, nil
}

// Create は名刺を作成する。
func (r *PostgresCardRepo) Create(ctx context.Context, card *model.Card) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cards (id, user_id, title, name, profession, email, phone, website, bio, views, clicks, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		card.ID, card.UserID, card.Title, card.Name, card.Profession,
		card.Email, card.Phone, card.Website, card.Bio,
		card.Views, card.Clicks, card.IsActive,
		card.CreatedAt, card.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert card: %w", err)
	}
	return nil
}

// Update は名刺を更新する。
func (r *PostgresCardRepo) Update(ctx context.Context, card *model.Card) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE cards SET
			title = $1, name = $2, profession = $3, email = $4, phone = $5,
			website = $6, bio = $7, is_active = $8, updated_at = $9
		 WHERE id = $10`,
		card.Title, card.Name, card.Profession, card.Email, card.Phone,
		card.Website, card.Bio, card.IsActive, card.UpdatedAt,
		card.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("card not found: %s", card.ID)
	}
	return nil
}

// Delete は指定IDの名刺を削除する。
func (r *PostgresCardRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM cards WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("card not found: %s", id)
	}
	return nil
}

// DeleteByUserID はユーザーの全名刺を削除する。
func (r *PostgresCardRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM cards WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user cards: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CardRepository = (*PostgresCardRepo)(nil)
