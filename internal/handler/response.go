package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/moodshare/internal/middleware"
	"github.com/hitoshi/moodshare/internal/model"
)

// envelope は成功レスポンスの共通フォーマット。
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// sharingResponse は共有レコードの公開フィールド。
type sharingResponse struct {
	ID             string               `json:"id"`
	Status         string               `json:"status"`
	IsActive       bool                 `json:"isActive"`
	CreatedAt      time.Time            `json:"createdAt"`
	ExpiresAt      time.Time            `json:"expiresAt"`
	LastShared     *time.Time           `json:"lastShared"`
	AccessSettings model.AccessSettings `json:"accessSettings"`
}

// sharedDataResponse はアクセス設定で許可された共有データ。
// 許可されなかった項目はキーごと省略する。
type sharedDataResponse struct {
	User           *model.PublicUser     `json:"user,omitempty"`
	Summary        *model.EmotionSummary `json:"summary,omitempty"`
	RecentEmotions *[]model.EmotionEntry `json:"recentEmotions,omitempty"`
	SharedFields   []string              `json:"sharedFields"`
}

// shareResult はデータ共有（push）の結果。
// 共有先はtherapistIdとsharedWithの両方に同じ値を入れる。
type shareResult struct {
	TherapistID string             `json:"therapistId"`
	SharedWith  string             `json:"sharedWith"`
	SharedAt    time.Time          `json:"sharedAt"`
	Data        sharedDataResponse `json:"data"`
}

// shareEmotionsResponse はPOST /api/therapist/share-emotionsのレスポンス。
type shareEmotionsResponse struct {
	Success bool `json:"success"`
	shareResult
}

// detailResponse はセラピスト詳細（pull）のレスポンスデータ。
type detailResponse struct {
	Therapist   model.PublicUser   `json:"therapist"`
	User        model.PublicUser   `json:"user"`
	DataSharing sharingResponse    `json:"dataSharing"`
	IsAssigned  bool               `json:"isAssigned"`
	SharedAt    time.Time          `json:"sharedAt"`
	Data        sharedDataResponse `json:"data"`
}

// therapistSharingResponse はユーザー側から見た共有。
type therapistSharingResponse struct {
	Therapist   model.PublicUser `json:"therapist"`
	DataSharing sharingResponse  `json:"dataSharing"`
}

// clientSharingResponse はセラピスト側から見た共有。
type clientSharingResponse struct {
	Client      model.PublicUser `json:"client"`
	DataSharing sharingResponse  `json:"dataSharing"`
}

// assignResponse はPOST /api/therapist/assignのレスポンス。
type assignResponse struct {
	Success     bool             `json:"success"`
	Message     string           `json:"message"`
	Data        model.PublicUser `json:"data"`
	TherapistID string           `json:"therapistId"`
	Therapist   model.PublicUser `json:"therapist"`
}

// removeResponse はDELETE /api/therapist/removeのレスポンス。
type removeResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    model.PublicUser `json:"data"`
	Revoked int64            `json:"revoked"`
}

// assignedResponse はGET /api/therapist/assignedのレスポンス。
type assignedResponse struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	Therapist model.PublicUser `json:"therapist"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	middleware.WriteError(w, r, err)
}

// writeUnauthorized は認証情報がない場合の401レスポンスを書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

// decodeJSONBody はリクエストボディをvにデコードする。
// allowEmptyがtrueの場合、空のボディはエラーにしない。
func decodeJSONBody(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return model.NewInvalidRequestError("Failed to parse request body")
	}
	return nil
}
