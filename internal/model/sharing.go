package model

import "time"

const (
	// DefaultSharingDays は共有レコードの有効期間のデフォルト日数。
	DefaultSharingDays = 90
	// DefaultLookbackDays はrecentEmotionsの遡及日数のデフォルト値。
	DefaultLookbackDays = 30
	// MinLookbackDays と MaxLookbackDays はdurationDaysの許容範囲。
	MinLookbackDays = 1
	MaxLookbackDays = 90
	// MaxSharedSnapshots は保持する共有スナップショットの最大件数。
	MaxSharedSnapshots = 5
)

// 共有対象フィールド名。アクセスログのaccessedFieldsに記録される。
const (
	FieldUserProfile      = "userProfile"
	FieldEmotionSummary   = "emotionSummary"
	FieldRecentEmotions   = "recentEmotions"
	FieldTherapistDetails = "therapistDetails"
)

// SharingStatus は共有レコードの状態を表す。
type SharingStatus string

const (
	// SharingStatusActive は共有が有効な状態。
	SharingStatusActive SharingStatus = "active"
	// SharingStatusRevoked は共有が取り消された状態。
	SharingStatusRevoked SharingStatus = "revoked"
)

// AccessSettings はセラピストに公開する項目と遡及期間を表す。
type AccessSettings struct {
	EmotionSummary bool `json:"emotionSummary"`
	RecentEmotions bool `json:"recentEmotions"`
	UserProfile    bool `json:"userProfile"`
	DurationDays   int  `json:"durationDays"`
}

// DefaultAccessSettings はデフォルトのアクセス設定を新しい値として返す。
func DefaultAccessSettings() AccessSettings {
	return AccessSettings{
		EmotionSummary: true,
		RecentEmotions: true,
		UserProfile:    true,
		DurationDays:   DefaultLookbackDays,
	}
}

// Lookback はnowからDurationDays日前の時刻を返す。
// DurationDaysが未設定（0）の場合はデフォルトの30日を使用する。
func (s AccessSettings) Lookback(now time.Time) time.Time {
	days := s.DurationDays
	if days <= 0 {
		days = DefaultLookbackDays
	}
	return now.AddDate(0, 0, -days)
}

// AccessSettingsPatch はアクセス設定の部分更新を表す。
// nilのフィールドは既存の値を維持する。
// JSONエンコード時には指定されたキーのみが出力される。
type AccessSettingsPatch struct {
	EmotionSummary *bool `json:"emotionSummary,omitempty"`
	RecentEmotions *bool `json:"recentEmotions,omitempty"`
	UserProfile    *bool `json:"userProfile,omitempty"`
	DurationDays   *int  `json:"durationDays,omitempty"`
}

// IsEmpty は更新対象のフィールドが1つもないかを返す。
func (p AccessSettingsPatch) IsEmpty() bool {
	return p.EmotionSummary == nil && p.RecentEmotions == nil && p.UserProfile == nil && p.DurationDays == nil
}

// Validate はパッチの値が許容範囲内かを検証する。
func (p AccessSettingsPatch) Validate() error {
	if p.DurationDays != nil && (*p.DurationDays < MinLookbackDays || *p.DurationDays > MaxLookbackDays) {
		return NewInvalidDurationError(*p.DurationDays)
	}
	return nil
}

// ApplyTo はパッチをベース設定に浅くマージした新しい設定を返す。
func (p AccessSettingsPatch) ApplyTo(base AccessSettings) AccessSettings {
	merged := base
	if p.EmotionSummary != nil {
		merged.EmotionSummary = *p.EmotionSummary
	}
	if p.RecentEmotions != nil {
		merged.RecentEmotions = *p.RecentEmotions
	}
	if p.UserProfile != nil {
		merged.UserProfile = *p.UserProfile
	}
	if p.DurationDays != nil {
		merged.DurationDays = *p.DurationDays
	}
	return merged
}

// AccessLog はデータ共有の監査ログ1件を表す。
type AccessLog struct {
	AccessedAt     time.Time `json:"accessedAt"`
	AccessedFields []string  `json:"accessedFields"`
}

// SharedSnapshot は共有時点のデータのコピー。
// 共有されなかった項目は省略される。RecentEmotionsは共有されていれば0件でも空配列になる。
type SharedSnapshot struct {
	UserProfile    *PublicUser     `json:"userProfile,omitempty"`
	EmotionSummary *EmotionSummary `json:"emotionSummary,omitempty"`
	RecentEmotions *[]EmotionEntry `json:"recentEmotions,omitempty"`
	SharedAt       time.Time       `json:"sharedAt"`
}

// SharingRecord はユーザーとセラピスト間のデータ共有契約を表す。
// (UserID, TherapistID)の組は一意。
type SharingRecord struct {
	ID              string
	UserID          string
	TherapistID     string
	Status          SharingStatus
	CreatedAt       time.Time
	ExpiresAt       time.Time
	LastShared      *time.Time
	AccessSettings  AccessSettings
	AccessLogs      []AccessLog
	SharedSnapshots []SharedSnapshot
	UpdatedAt       time.Time
}

// IsActive はstatusがactiveかつexpiresAtがnowより後である場合にtrueを返す。
// 期限切れでもstatusは変更しない。
func (r *SharingRecord) IsActive(now time.Time) bool {
	return r.Status == SharingStatusActive && r.ExpiresAt.After(now)
}

// Renew は有効期限をnowからdays日後に設定する。statusは変更しない。
func (r *SharingRecord) Renew(now time.Time, days int) {
	if days <= 0 {
		days = DefaultSharingDays
	}
	r.ExpiresAt = now.AddDate(0, 0, days)
}
