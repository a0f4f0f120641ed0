package sharing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/moodshare/internal/metrics"
	"github.com/hitoshi/moodshare/internal/model"
	"github.com/hitoshi/moodshare/internal/repository"
	"github.com/hitoshi/moodshare/internal/security"
)

// SharedData はアクセス設定に従って選択された共有データ。
// Includedに含まれないフィールドは共有されなかったことを表す。
type SharedData struct {
	User           *model.PublicUser
	Summary        *model.EmotionSummary
	RecentEmotions []model.EmotionEntry
	Included       []string
}

// Has はfieldが共有対象に含まれたかを返す。
func (d SharedData) Has(field string) bool {
	for _, f := range d.Included {
		if f == field {
			return true
		}
	}
	return false
}

// SharedPayload はユーザーによる共有（push）の結果。
type SharedPayload struct {
	TherapistID string
	SharedAt    time.Time
	Data        SharedData
}

// RecordView は共有レコードの公開フィールド。
type RecordView struct {
	ID             string
	Status         model.SharingStatus
	IsActive       bool
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastShared     *time.Time
	AccessSettings model.AccessSettings
}

// DetailPayload はセラピスト詳細画面（pull）の結果。
type DetailPayload struct {
	Therapist  model.PublicUser
	User       model.PublicUser
	IsAssigned bool
	Sharing    RecordView
	SharedAt   time.Time
	Data       SharedData
}

// SharingWithTherapist はユーザー側から見た有効な共有。
type SharingWithTherapist struct {
	Therapist model.PublicUser
	Sharing   RecordView
}

// SharingWithClient はセラピスト側から見た有効な共有。
type SharingWithClient struct {
	Client  model.PublicUser
	Sharing RecordView
}

// Orchestrator は共有ペイロードの組み立てとアクセス制御を行うユースケース層。
type Orchestrator struct {
	manager   *Manager
	users     repository.UserRepository
	journal   repository.EmotionRepository
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
func NewOrchestrator(
	manager *Manager,
	users repository.UserRepository,
	journal repository.EmotionRepository,
	sanitizer security.TextSanitizer,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) *Orchestrator {
	if mc == nil {
		mc = metrics.Nop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		manager:   manager,
		users:     users,
		journal:   journal,
		sanitizer: sanitizer,
		metrics:   mc,
		logger:    logger,
	}
}

// ShareCurrentData はユーザーの現在のデータを担当セラピストに共有する。
// 担当セラピストが未設定の場合はバリデーションエラーを返す。
// 感情データの取得に失敗した場合、アクセスログとスナップショットは書き込まない。
func (o *Orchestrator) ShareCurrentData(ctx context.Context, userID string) (*SharedPayload, error) {
	start := time.Now()

	payload, err := o.shareCurrentData(ctx, userID)
	if err != nil {
		o.metrics.RecordShareFailure(metrics.ModePush)
		return nil, err
	}

	o.metrics.RecordShare(metrics.ModePush)
	o.metrics.RecordShareLatency(time.Since(start))
	o.logger.Info("感情データを共有しました",
		slog.String("user_id", userID),
		slog.String("therapist_id", payload.TherapistID),
		slog.String("fields", strings.Join(payload.Data.Included, ",")),
	)
	return payload, nil
}

func (o *Orchestrator) shareCurrentData(ctx context.Context, userID string) (*SharedPayload, error) {
	user, err := o.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TherapistID == "" {
		return nil, model.NewNoTherapistAssignedError()
	}

	therapist, err := o.users.FindByID(ctx, user.TherapistID)
	if err != nil {
		return nil, fmt.Errorf("セラピストの取得に失敗しました: %w", err)
	}
	if therapist == nil || !therapist.IsTherapist() {
		return nil, model.NewAssignedTherapistNotFoundError()
	}

	rec, err := o.ensureActiveRecord(ctx, user.ID, therapist.ID)
	if err != nil {
		return nil, err
	}

	data, err := o.collect(ctx, user, rec.AccessSettings)
	if err != nil {
		return nil, err
	}

	rec, err = o.manager.RecordShare(ctx, rec, data.Included, snapshotOf(data))
	if err != nil {
		return nil, err
	}

	return &SharedPayload{
		TherapistID: therapist.ID,
		SharedAt:    sharedAt(rec),
		Data:        data,
	}, nil
}

// GetTherapistView はセラピスト詳細と共有データを返す。
//
// actorIDがuserIDと一致する場合はユーザー本人の閲覧として扱い、担当セラピストでなくても
// 共有レコードを作成または再有効化する。actorIDがtherapistIDと一致する場合はセラピストの閲覧として扱い、
// 有効な共有レコードが存在するときのみ許可する（再有効化はしない）。それ以外は権限エラーを返す。
func (o *Orchestrator) GetTherapistView(ctx context.Context, actorID, userID, therapistID string) (*DetailPayload, error) {
	payload, err := o.getTherapistView(ctx, actorID, userID, therapistID)
	if err != nil {
		if !model.IsForbidden(err) && !model.IsNotFound(err) && !model.IsValidation(err) {
			o.metrics.RecordShareFailure(metrics.ModePull)
		}
		return nil, err
	}

	o.metrics.RecordShare(metrics.ModePull)
	o.logger.Info("セラピスト詳細を表示しました",
		slog.String("actor_id", actorID),
		slog.String("user_id", userID),
		slog.String("therapist_id", therapistID),
	)
	return payload, nil
}

func (o *Orchestrator) getTherapistView(ctx context.Context, actorID, userID, therapistID string) (*DetailPayload, error) {
	if actorID != userID && actorID != therapistID {
		return nil, model.NewForbiddenError("You are not allowed to view this data")
	}
	if userID == therapistID {
		return nil, model.NewInvalidRequestError("You cannot share data with yourself", "userId")
	}

	therapist, err := o.users.FindByID(ctx, therapistID)
	if err != nil {
		return nil, fmt.Errorf("セラピストの取得に失敗しました: %w", err)
	}
	if therapist == nil || !therapist.IsTherapist() {
		return nil, model.NewTherapistNotFoundError()
	}

	user, err := o.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var rec *model.SharingRecord
	if actorID == userID {
		rec, err = o.ensureActiveRecord(ctx, user.ID, therapist.ID)
		if err != nil {
			return nil, err
		}
	} else {
		rec, err = o.manager.FindRecord(ctx, user.ID, therapist.ID)
		if err != nil {
			return nil, err
		}
		if !o.manager.IsActive(rec) {
			return nil, model.NewForbiddenError("No active data sharing with this user")
		}
	}

	data, err := o.collect(ctx, user, rec.AccessSettings)
	if err != nil {
		return nil, err
	}

	fields := append([]string{model.FieldTherapistDetails}, data.Included...)
	rec, err = o.manager.RecordShare(ctx, rec, fields, snapshotOf(data))
	if err != nil {
		return nil, err
	}

	return &DetailPayload{
		Therapist:  therapist.Sanitize(),
		User:       user.Sanitize(),
		IsAssigned: user.TherapistID == therapist.ID,
		Sharing:    o.viewOf(rec),
		SharedAt:   sharedAt(rec),
		Data:       data,
	}, nil
}

// RequestSharing はメールアドレスで指定したセラピストとの共有を作成または再有効化する。
// 担当セラピストの設定は変更しない。
func (o *Orchestrator) RequestSharing(
	ctx context.Context,
	userID, therapistEmail string,
	patch *model.AccessSettingsPatch,
) (*SharingWithTherapist, error) {
	user, err := o.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	role := model.RoleTherapist
	therapist, err := o.users.FindByEmail(ctx, therapistEmail, &role)
	if err != nil {
		return nil, fmt.Errorf("セラピストの検索に失敗しました: %w", err)
	}
	if therapist == nil {
		return nil, model.NewTherapistNotFoundError()
	}
	if therapist.ID == user.ID {
		return nil, model.NewInvalidRequestError("You cannot share data with yourself", "email")
	}

	rec, err := o.manager.CreateOrReactivate(ctx, user.ID, therapist.ID, patch)
	if err != nil {
		return nil, err
	}

	return &SharingWithTherapist{Therapist: therapist.Sanitize(), Sharing: o.viewOf(rec)}, nil
}

// UpdateSettings はユーザー自身の共有レコードのアクセス設定を部分更新する。
func (o *Orchestrator) UpdateSettings(
	ctx context.Context,
	userID, therapistID string,
	patch model.AccessSettingsPatch,
) (*RecordView, error) {
	rec, err := o.manager.UpdateAccessSettings(ctx, userID, therapistID, patch)
	if err != nil {
		return nil, err
	}
	view := o.viewOf(rec)
	return &view, nil
}

// RenewSharing はユーザー自身の共有レコードの有効期限を延長する。
func (o *Orchestrator) RenewSharing(ctx context.Context, userID, therapistID string, days int) (*RecordView, error) {
	rec, err := o.manager.FindRecord(ctx, userID, therapistID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, model.NewSharingRecordNotFoundError()
	}

	rec, err = o.manager.Renew(ctx, rec, days)
	if err != nil {
		return nil, err
	}
	view := o.viewOf(rec)
	return &view, nil
}

// ListSharing はユーザーの有効な共有をセラピスト情報付きで返す。
// セラピストのアカウントが存在しない共有は除外する。
func (o *Orchestrator) ListSharing(ctx context.Context, userID string) ([]SharingWithTherapist, error) {
	records, err := o.manager.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make([]SharingWithTherapist, 0, len(records))
	for _, rec := range records {
		therapist, err := o.users.FindByID(ctx, rec.TherapistID)
		if err != nil {
			return nil, fmt.Errorf("セラピストの取得に失敗しました: %w", err)
		}
		if therapist == nil {
			continue
		}
		results = append(results, SharingWithTherapist{Therapist: therapist.Sanitize(), Sharing: o.viewOf(rec)})
	}
	return results, nil
}

// ListClients はセラピストに対して有効な共有を持つクライアント一覧を返す。
// actorがセラピストロールでない場合は権限エラーを返す。
func (o *Orchestrator) ListClients(ctx context.Context, actorID string) ([]SharingWithClient, error) {
	actor, err := o.findUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsTherapist() {
		return nil, model.NewForbiddenError("Only therapists can list clients")
	}

	records, err := o.manager.ListActiveForTherapist(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	results := make([]SharingWithClient, 0, len(records))
	for _, rec := range records {
		client, err := o.users.FindByID(ctx, rec.UserID)
		if err != nil {
			return nil, fmt.Errorf("クライアントの取得に失敗しました: %w", err)
		}
		if client == nil {
			continue
		}
		results = append(results, SharingWithClient{Client: client.Sanitize(), Sharing: o.viewOf(rec)})
	}
	return results, nil
}

// ensureActiveRecord は有効な共有レコードを返す。存在しないか無効な場合は作成または再有効化する。
func (o *Orchestrator) ensureActiveRecord(ctx context.Context, userID, therapistID string) (*model.SharingRecord, error) {
	rec, err := o.manager.FindRecord(ctx, userID, therapistID)
	if err != nil {
		return nil, err
	}
	if o.manager.IsActive(rec) {
		return rec, nil
	}
	return o.manager.CreateOrReactivate(ctx, userID, therapistID, nil)
}

// collect はアクセス設定で有効な項目のみを取得する。
// 無効な項目の取得処理は呼び出さない。いずれかの取得に失敗した場合はエラーを返す。
func (o *Orchestrator) collect(ctx context.Context, user *model.User, settings model.AccessSettings) (SharedData, error) {
	var data SharedData

	if settings.UserProfile {
		profile := user.Sanitize()
		data.User = &profile
		data.Included = append(data.Included, model.FieldUserProfile)
	}

	if settings.EmotionSummary {
		summary, err := o.journal.Summarize(ctx, user.ID)
		if err != nil {
			return SharedData{}, fmt.Errorf("感情サマリーの取得に失敗しました: %w", err)
		}
		data.Summary = &summary
		data.Included = append(data.Included, model.FieldEmotionSummary)
	}

	if settings.RecentEmotions {
		entries, err := o.journal.FindSince(ctx, user.ID, settings.Lookback(o.manager.now()))
		if err != nil {
			return SharedData{}, fmt.Errorf("最近の感情記録の取得に失敗しました: %w", err)
		}
		data.RecentEmotions = o.sanitizer.SanitizeEntries(entries)
		if data.RecentEmotions == nil {
			data.RecentEmotions = []model.EmotionEntry{}
		}
		data.Included = append(data.Included, model.FieldRecentEmotions)
	}

	return data, nil
}

func (o *Orchestrator) findUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := o.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func (o *Orchestrator) viewOf(rec *model.SharingRecord) RecordView {
	return RecordView{
		ID:             rec.ID,
		Status:         rec.Status,
		IsActive:       o.manager.IsActive(rec),
		CreatedAt:      rec.CreatedAt,
		ExpiresAt:      rec.ExpiresAt,
		LastShared:     rec.LastShared,
		AccessSettings: rec.AccessSettings,
	}
}

// snapshotOf は共有データのスナップショットを作る。SharedAtはManager.RecordShareが設定する。
func snapshotOf(data SharedData) model.SharedSnapshot {
	snapshot := model.SharedSnapshot{
		UserProfile:    data.User,
		EmotionSummary: data.Summary,
	}
	if data.Has(model.FieldRecentEmotions) {
		entries := data.RecentEmotions
		if entries == nil {
			entries = []model.EmotionEntry{}
		}
		snapshot.RecentEmotions = &entries
	}
	return snapshot
}

func sharedAt(rec *model.SharingRecord) time.Time {
	if rec.LastShared != nil {
		return *rec.LastShared
	}
	return time.Time{}
}
