// Package sharing はユーザーとセラピスト間のデータ共有を管理する。
//
// Manager は共有レコードのライフサイクル（作成・再有効化・更新・取り消し・共有履歴の記録）を、
// Orchestrator は共有ペイロードの組み立てとアクセス制御を担う。
package sharing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/moodshare/internal/metrics"
	"github.com/hitoshi/moodshare/internal/model"
	"github.com/hitoshi/moodshare/internal/repository"
)

// MaxRenewDays は1回の更新で延長できる最大日数。
const MaxRenewDays = 365

// Manager は共有レコードの永続化レベルの操作を提供する。
type Manager struct {
	repo      repository.SharingRepository
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	renewDays int
	now       func() time.Time
	newID     func() string
}

// NewManager はManagerの新しいインスタンスを生成する。
// renewDaysは作成・再有効化時の有効期間で、0以下の場合はmodel.DefaultSharingDaysを使用する。
func NewManager(
	repo repository.SharingRepository,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	renewDays int,
) *Manager {
	if renewDays <= 0 {
		renewDays = model.DefaultSharingDays
	}
	if mc == nil {
		mc = metrics.Nop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:      repo,
		metrics:   mc,
		logger:    logger,
		renewDays: renewDays,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// IsActive はレコードが現在有効かを返す。
func (m *Manager) IsActive(rec *model.SharingRecord) bool {
	return rec != nil && rec.IsActive(m.now())
}

// FindRecord はユーザーとセラピストの組で共有レコードを取得する。見つからない場合はnilを返す。
func (m *Manager) FindRecord(ctx context.Context, userID, therapistID string) (*model.SharingRecord, error) {
	rec, err := m.repo.FindByPair(ctx, userID, therapistID)
	if err != nil {
		return nil, fmt.Errorf("共有レコードの検索に失敗しました: %w", err)
	}
	return rec, nil
}

// CreateOrReactivate は共有レコードを作成する。既存の場合はactiveに戻して有効期限を更新し、
// patchを既存の設定に浅くマージする。同じ組に対して何度呼び出してもレコードは1件のみ。
// patchが不正な場合は何も変更せずにバリデーションエラーを返す。
func (m *Manager) CreateOrReactivate(
	ctx context.Context,
	userID, therapistID string,
	patch *model.AccessSettingsPatch,
) (*model.SharingRecord, error) {
	var p model.AccessSettingsPatch
	if patch != nil {
		p = *patch
	}
	if err := p.Validate(); err != nil {
		m.metrics.RecordSettingsRejected()
		return nil, err
	}

	now := m.now()
	rec, err := m.repo.Upsert(ctx, repository.UpsertSharingParams{
		ID:          m.newID(),
		UserID:      userID,
		TherapistID: therapistID,
		Now:         now,
		ExpiresAt:   now.AddDate(0, 0, m.renewDays),
		Defaults:    model.DefaultAccessSettings(),
		Patch:       p,
	})
	if err != nil {
		return nil, fmt.Errorf("共有レコードの作成に失敗しました: %w", err)
	}

	m.logger.Info("共有レコードを有効化しました",
		slog.String("sharing_id", rec.ID),
		slog.String("user_id", userID),
		slog.String("therapist_id", therapistID),
		slog.Time("expires_at", rec.ExpiresAt),
	)
	return rec, nil
}

// Renew は有効期限をnowからdays日後に更新する。statusは変更しない。
// daysが0の場合は設定された更新日数を使用する。
func (m *Manager) Renew(ctx context.Context, rec *model.SharingRecord, days int) (*model.SharingRecord, error) {
	if days < 0 || days > MaxRenewDays {
		return nil, model.NewInvalidRequestError(
			fmt.Sprintf("days must be between 1 and %d", MaxRenewDays), "days")
	}
	if days == 0 {
		days = m.renewDays
	}

	renewed := *rec
	now := m.now()
	renewed.Renew(now, days)

	updated, err := m.repo.UpdateExpiry(ctx, rec.ID, renewed.ExpiresAt, now)
	if err != nil {
		return nil, fmt.Errorf("有効期限の更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewSharingRecordNotFoundError()
	}
	return updated, nil
}

// RevokeAllForUser はユーザーのactiveな共有レコードをすべて取り消し、件数を返す。
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	n, err := m.repo.RevokeActiveByUser(ctx, userID, m.now())
	if err != nil {
		return 0, fmt.Errorf("共有レコードの取り消しに失敗しました: %w", err)
	}

	m.metrics.RecordRevocations(n)
	if n > 0 {
		m.logger.Info("共有を取り消しました",
			slog.String("user_id", userID),
			slog.Int64("count", n),
		)
	}
	return n, nil
}

// UpdateAccessSettings はアクセス設定を部分更新する。
// 値が範囲外の場合は保存済みのレコードを変更せずにバリデーションエラーを返す。
func (m *Manager) UpdateAccessSettings(
	ctx context.Context,
	userID, therapistID string,
	patch model.AccessSettingsPatch,
) (*model.SharingRecord, error) {
	if patch.IsEmpty() {
		return nil, model.NewInvalidRequestError("accessSettings must contain at least one field", "accessSettings")
	}
	if err := patch.Validate(); err != nil {
		m.metrics.RecordSettingsRejected()
		return nil, err
	}

	rec, err := m.FindRecord(ctx, userID, therapistID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, model.NewSharingRecordNotFoundError()
	}

	updated, err := m.repo.UpdateSettings(ctx, rec.ID, patch.ApplyTo(rec.AccessSettings), m.now())
	if err != nil {
		return nil, fmt.Errorf("アクセス設定の更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewSharingRecordNotFoundError()
	}
	return updated, nil
}

// RecordShare はアクセスログ（accessedAt=now）とスナップショットを共有履歴に追記し、
// lastSharedを更新する。スナップショットは最新model.MaxSharedSnapshots件のみを保持する。
func (m *Manager) RecordShare(
	ctx context.Context,
	rec *model.SharingRecord,
	fields []string,
	snapshot model.SharedSnapshot,
) (*model.SharingRecord, error) {
	now := m.now()
	snapshot.SharedAt = now

	accessed := make([]string, len(fields))
	copy(accessed, fields)

	updated, err := m.repo.AppendShareHistory(ctx, rec.ID,
		model.AccessLog{AccessedAt: now, AccessedFields: accessed},
		snapshot,
	)
	if err != nil {
		return nil, fmt.Errorf("共有履歴の保存に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewSharingRecordNotFoundError()
	}
	return updated, nil
}

// ListActiveForUser はユーザーの有効な共有レコードを返す。
func (m *Manager) ListActiveForUser(ctx context.Context, userID string) ([]*model.SharingRecord, error) {
	records, err := m.repo.ListActiveByUser(ctx, userID, m.now())
	if err != nil {
		return nil, fmt.Errorf("共有レコード一覧の取得に失敗しました: %w", err)
	}
	return records, nil
}

// ListActiveForTherapist はセラピストに対する有効な共有レコードを返す。
func (m *Manager) ListActiveForTherapist(ctx context.Context, therapistID string) ([]*model.SharingRecord, error) {
	records, err := m.repo.ListActiveByTherapist(ctx, therapistID, m.now())
	if err != nil {
		return nil, fmt.Errorf("共有レコード一覧の取得に失敗しました: %w", err)
	}
	return records, nil
}
