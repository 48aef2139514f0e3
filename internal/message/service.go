// Package message はオーナー単位のメッセージドキュメント操作を提供する。
package message

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/hitoshi/msgbox/internal/metrics"
	"github.com/hitoshi/msgbox/internal/model"
	"github.com/hitoshi/msgbox/internal/repository"
)

// ChangeNotifier はメッセージ変更をライブクエリに伝えるインターフェース。
type ChangeNotifier interface {
	Notify(ownerID string)
}

// Service はメッセージの取得・既読化・削除のサービス。
// すべての操作は呼び出し元ユーザーが所有するメッセージに限定される。
type Service struct {
	repo     repository.MessageRepository
	notifier ChangeNotifier
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// NewService はServiceを生成する。notifierがnilの場合は変更通知を行わない。
func NewService(
	repo repository.MessageRepository,
	notifier ChangeNotifier,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		metrics:  collector,
		logger:   logger,
	}
}

// ListByOwner はオーナーの全メッセージを返す。
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]*model.Message, error) {
	messages, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// UpdateFields はメッセージのフィールドを部分更新する。
// 更新できるのはseen（bool）のみで、それ以外のフィールドや型はINVALID_FIELDSとなる。
// メッセージが存在しないか他ユーザーの所有である場合はMESSAGE_NOT_FOUNDを返す。
func (s *Service) UpdateFields(ctx context.Context, ownerID, id string, fields map[string]any) error {
	seen, err := validateFields(fields)
	if err != nil {
		s.metrics.RecordMutation(metrics.OpUpdate, metrics.ResultInvalid)
		return err
	}

	ok, err := s.repo.UpdateSeen(ctx, ownerID, id, seen)
	if err != nil {
		s.metrics.RecordMutation(metrics.OpUpdate, metrics.ResultError)
		return fmt.Errorf("failed to update message: %w", err)
	}
	if !ok {
		s.metrics.RecordMutation(metrics.OpUpdate, metrics.ResultNotFound)
		return model.NewMessageNotFoundError(id)
	}

	s.metrics.RecordMutation(metrics.OpUpdate, metrics.ResultOK)
	s.logger.Info("message updated",
		slog.String("user_id", ownerID),
		slog.String("message_id", id),
		slog.Bool("seen", seen),
	)
	s.notify(ownerID)
	return nil
}

// Delete はメッセージを削除する。
// 既に存在しない場合も成功として扱う（冪等）。
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	ok, err := s.repo.Delete(ctx, ownerID, id)
	if err != nil {
		s.metrics.RecordMutation(metrics.OpDelete, metrics.ResultError)
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if !ok {
		s.metrics.RecordMutation(metrics.OpDelete, metrics.ResultNotFound)
		return nil
	}

	s.metrics.RecordMutation(metrics.OpDelete, metrics.ResultOK)
	s.logger.Info("message deleted",
		slog.String("user_id", ownerID),
		slog.String("message_id", id),
	)
	s.notify(ownerID)
	return nil
}

func (s *Service) notify(ownerID string) {
	if s.notifier != nil {
		s.notifier.Notify(ownerID)
	}
}

// validateFields は更新フィールドを検証し、seenの値を返す。
func validateFields(fields map[string]any) (bool, error) {
	if len(fields) == 0 {
		return false, model.NewInvalidFieldsError("更新するフィールドがありません")
	}

	var unknown []string
	for k := range fields {
		if k != model.FieldSeen {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return false, model.NewInvalidFieldsError(strings.Join(unknown, ", "))
	}

	seen, ok := fields[model.FieldSeen].(bool)
	if !ok {
		return false, model.NewInvalidFieldsError("seen はboolで指定してください")
	}
	return seen, nil
}
