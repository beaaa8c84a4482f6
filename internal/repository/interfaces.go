// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/matiquelmec/tarjetas-server/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は指定メールアドレスのユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// emailのユニーク制約により、同一emailに対する同時作成の競合は
	// データベース側で1レコードに収束する（冪等）。
	// 既存レコードと競合した場合は既存レコードを返す。
	Create(ctx context.Context, user *model.User) (*model.User, error)

	// UpdateStatus はユーザーのアカウント状態を更新する。
	UpdateStatus(ctx context.Context, id string, status model.AccountStatus) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するcardsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// CardRepository は名刺データの永続化インターフェース。
type CardRepository interface {
	// FindByID は指定IDの名刺を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Card, error)

	// ListByUserID はユーザーの名刺一覧を作成日時の降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Card, error)

	// CountByUserID はユーザーの名刺数を返す。
	CountByUserID(ctx context.Context, userID string) (int, error)

	// Create は名刺を作成する。
	Create(ctx context.Context, card *model.Card) error

	// Update は名刺を更新する。
	Update(ctx context.Context, card *model.Card) error

	// Delete は指定IDの名刺を削除する。
	Delete(ctx context.Context, id string) error

	// DeleteByUserID はユーザーの全名刺を削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
