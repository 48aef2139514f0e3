// Package user はアカウントの管理操作を提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/msgbox/internal/auth"
	"github.com/hitoshi/msgbox/internal/repository"
)

// ErrNotFound は指定したアカウントが存在しないことを表す。
var ErrNotFound = errors.New("user not found")

// Service はアカウント管理のサービス層。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository, logger *slog.Logger) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		logger:      logger,
	}
}

// Withdraw はメールアドレスで指定したアカウントを削除する。
// 削除順序: sessions → user（+ CASCADE: messages）
// セッションを先に削除するのはキャッシュ層からも確実に取り除くため。
func (s *Service) Withdraw(ctx context.Context, email string) (string, error) {
	user, err := s.userRepo.FindByEmail(ctx, auth.NormalizeEmail(email))
	if err != nil {
		return "", fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return "", ErrNotFound
	}

	s.logger.Info("退会処理を開始します", slog.String("user_id", user.ID))

	if err := s.sessionRepo.DeleteByUserID(ctx, user.ID); err != nil {
		return "", fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	if err := s.userRepo.DeleteByID(ctx, user.ID); err != nil {
		return "", fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	s.logger.Info("退会処理が完了しました", slog.String("user_id", user.ID))
	return user.ID, nil
}
