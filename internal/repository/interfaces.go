// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/moodshare/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。
	// roleがnilでない場合は該当ロールのユーザーのみを対象とする。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string, role *model.Role) (*model.User, error)

	// SetTherapist はユーザーの担当セラピストを設定し、更新後のユーザーを返す。
	// ユーザーが存在しない場合はnilを返す。
	SetTherapist(ctx context.Context, userID, therapistID string) (*model.User, error)

	// ClearTherapist はユーザーの担当セラピストを解除し、更新後のユーザーを返す。
	// 未割り当ての場合も成功する。ユーザーが存在しない場合はnilを返す。
	ClearTherapist(ctx context.Context, userID string) (*model.User, error)
}

// EmotionRepository は感情ジャーナルの読み取りインターフェース。
type EmotionRepository interface {
	// Summarize はユーザーの全記録の件数、平均強度、感情別件数を返す。
	// 記録がない場合は件数0の空の集計を返す。
	Summarize(ctx context.Context, userID string) (model.EmotionSummary, error)

	// FindSince はsince以降の記録を日付の降順で返す。
	FindSince(ctx context.Context, userID string, since time.Time) ([]model.EmotionEntry, error)
}

// UpsertSharingParams は共有レコードのUPSERTパラメータ。
type UpsertSharingParams struct {
	// ID は新規作成時に使用するID。既存レコードがある場合は無視される。
	ID          string
	UserID      string
	TherapistID string
	Now         time.Time
	ExpiresAt   time.Time
	// Defaults は新規作成時のベース設定。
	Defaults model.AccessSettings
	// Patch は新規・既存いずれの場合もベース設定に浅くマージされる。
	Patch model.AccessSettingsPatch
}

// SharingRepository は共有レコードの永続化インターフェース。
type SharingRepository interface {
	// FindByPair はユーザーIDとセラピストIDで共有レコードを取得する。見つからない場合はnilを返す。
	FindByPair(ctx context.Context, userID, therapistID string) (*model.SharingRecord, error)

	// Upsert は(user_id, therapist_id)をキーに共有レコードを原子的に作成または再有効化する。
	// 既存レコードはstatusをactiveに戻し、有効期限を更新し、設定をマージする。
	Upsert(ctx context.Context, params UpsertSharingParams) (*model.SharingRecord, error)

	// UpdateSettings はアクセス設定を置き換える。見つからない場合はnilを返す。
	UpdateSettings(ctx context.Context, id string, settings model.AccessSettings, now time.Time) (*model.SharingRecord, error)

	// UpdateExpiry は有効期限を更新する。statusは変更しない。見つからない場合はnilを返す。
	UpdateExpiry(ctx context.Context, id string, expiresAt, now time.Time) (*model.SharingRecord, error)

	// AppendShareHistory はlast_sharedを更新し、アクセスログとスナップショットを追記する。
	// スナップショットは最新model.MaxSharedSnapshots件のみを保持する。
	AppendShareHistory(ctx context.Context, id string, entry model.AccessLog, snapshot model.SharedSnapshot) (*model.SharingRecord, error)

	// RevokeActiveByUser はユーザーのactiveな共有レコードをすべてrevokedにし、件数を返す。
	RevokeActiveByUser(ctx context.Context, userID string, now time.Time) (int64, error)

	// ListActiveByUser はユーザーの有効な共有レコードを返す。
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*model.SharingRecord, error)

	// ListActiveByTherapist はセラピストに対する有効な共有レコードを返す。
	ListActiveByTherapist(ctx context.Context, therapistID string, now time.Time) ([]*model.SharingRecord, error)
}
