// Package therapist はユーザーへのセラピスト割り当てを管理する。
package therapist

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/moodshare/internal/metrics"
	"github.com/hitoshi/moodshare/internal/model"
	"github.com/hitoshi/moodshare/internal/repository"
)

// SharingLifecycle は割り当てに連動する共有レコード操作のインターフェース。
// sharing.Managerが実装する。
type SharingLifecycle interface {
	CreateOrReactivate(ctx context.Context, userID, therapistID string, patch *model.AccessSettingsPatch) (*model.SharingRecord, error)
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

// Assignment は割り当て結果。
type Assignment struct {
	Therapist model.PublicUser
	User      model.PublicUser
}

// Unassignment は割り当て解除結果。
type Unassignment struct {
	User    model.PublicUser
	Revoked int64
}

// Service はセラピスト割り当てのサービス層。
type Service struct {
	users   repository.UserRepository
	sharing SharingLifecycle
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	users repository.UserRepository,
	sharing SharingLifecycle,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if mc == nil {
		mc = metrics.Nop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, sharing: sharing, metrics: mc, logger: logger}
}

// Assign はメールアドレスで検索したセラピストをユーザーに割り当て、共有レコードを作成または再有効化する。
// セラピストロールのユーザーが見つからない場合はNotFoundを返す。
func (s *Service) Assign(ctx context.Context, userID, therapistEmail string) (*Assignment, error) {
	if therapistEmail == "" {
		return nil, model.NewInvalidRequestError("email is required", "email")
	}

	role := model.RoleTherapist
	therapist, err := s.users.FindByEmail(ctx, therapistEmail, &role)
	if err != nil {
		return nil, fmt.Errorf("セラピストの検索に失敗しました: %w", err)
	}
	if therapist == nil {
		return nil, model.NewTherapistNotFoundError()
	}
	if therapist.ID == userID {
		return nil, model.NewInvalidRequestError("You cannot assign yourself as your therapist", "email")
	}

	user, err := s.users.SetTherapist(ctx, userID, therapist.ID)
	if err != nil {
		return nil, fmt.Errorf("セラピストの割り当てに失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	if _, err := s.sharing.CreateOrReactivate(ctx, userID, therapist.ID, nil); err != nil {
		return nil, err
	}

	s.metrics.RecordAssignment()
	s.logger.Info("セラピストを割り当てました",
		slog.String("user_id", userID),
		slog.String("therapist_id", therapist.ID),
	)

	return &Assignment{Therapist: therapist.Sanitize(), User: user.Sanitize()}, nil
}

// Unassign は担当セラピストを解除し、ユーザーのactiveな共有レコードをすべて取り消す。
// 未割り当ての場合も成功する。
func (s *Service) Unassign(ctx context.Context, userID string) (*Unassignment, error) {
	user, err := s.users.ClearTherapist(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("セラピストの解除に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	revoked, err := s.sharing.RevokeAllForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("セラピストの割り当てを解除しました",
		slog.String("user_id", userID),
		slog.Int64("revoked", revoked),
	)

	return &Unassignment{User: user.Sanitize(), Revoked: revoked}, nil
}

// GetAssigned は担当セラピストを返す。
// 未割り当ての場合はバリデーションエラー、参照先が存在しないかセラピストでない場合はNotFoundを返す。
func (s *Service) GetAssigned(ctx context.Context, userID string) (*model.PublicUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	if user.TherapistID == "" {
		return nil, model.NewNoTherapistAssignedError()
	}

	therapist, err := s.users.FindByID(ctx, user.TherapistID)
	if err != nil {
		return nil, fmt.Errorf("セラピストの取得に失敗しました: %w", err)
	}
	if therapist == nil || !therapist.IsTherapist() {
		return nil, model.NewAssignedTherapistNotFoundError()
	}

	public := therapist.Sanitize()
	return &public, nil
}
