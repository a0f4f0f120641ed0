package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/moodshare/internal/middleware"
	"github.com/hitoshi/moodshare/internal/model"
	"github.com/hitoshi/moodshare/internal/therapist"
)

// SharingServiceInterface はデータ共有エンドポイントが必要とするサービスインターフェース。
type SharingServiceInterface interface {
	// ShareCurrentData は現在のデータを担当セラピストに共有する。
	ShareCurrentData(ctx context.Context, userID string) (*shareResult, error)
	// GetTherapistView はセラピスト詳細と共有データを返す。
	GetTherapistView(ctx context.Context, actorID, userID, therapistID string) (*detailResponse, error)
	// RequestSharing はメールアドレスで指定したセラピストとの共有を有効化する。
	RequestSharing(ctx context.Context, userID, email string, patch *model.AccessSettingsPatch) (*therapistSharingResponse, error)
	// UpdateSettings はアクセス設定を部分更新する。
	UpdateSettings(ctx context.Context, userID, therapistID string, patch model.AccessSettingsPatch) (*sharingResponse, error)
	// RenewSharing は有効期限を延長する。
	RenewSharing(ctx context.Context, userID, therapistID string, days int) (*sharingResponse, error)
	// ListSharing はユーザーの有効な共有一覧を返す。
	ListSharing(ctx context.Context, userID string) ([]therapistSharingResponse, error)
	// ListClients はセラピストのクライアント一覧を返す。
	ListClients(ctx context.Context, actorID string) ([]clientSharingResponse, error)
}

// AssignmentServiceInterface はセラピスト割り当てエンドポイントが必要とするサービスインターフェース。
// therapist.Serviceが実装する。
type AssignmentServiceInterface interface {
	Assign(ctx context.Context, userID, therapistEmail string) (*therapist.Assignment, error)
	Unassign(ctx context.Context, userID string) (*therapist.Unassignment, error)
	GetAssigned(ctx context.Context, userID string) (*model.PublicUser, error)
}

// TherapistHandler はセラピスト割り当てとデータ共有のHTTPハンドラー。
type TherapistHandler struct {
	assignments AssignmentServiceInterface
	sharing     SharingServiceInterface
}

// NewTherapistHandler はTherapistHandlerを生成する。
func NewTherapistHandler(assignments AssignmentServiceInterface, sharing SharingServiceInterface) *TherapistHandler {
	return &TherapistHandler{
		assignments: assignments,
		sharing:     sharing,
	}
}

// assignRequest はセラピスト割り当てリクエストのボディ。
type assignRequest struct {
	Email string `json:"email"`
}

// requestSharingRequest は共有リクエストのボディ。
type requestSharingRequest struct {
	Email          string                     `json:"email"`
	AccessSettings *model.AccessSettingsPatch `json:"accessSettings,omitempty"`
}

// updateSettingsRequest はアクセス設定更新リクエストのボディ。
type updateSettingsRequest struct {
	AccessSettings model.AccessSettingsPatch `json:"accessSettings"`
}

// renewRequest は有効期限延長リクエストのボディ。daysを省略した場合は既定の日数で延長する。
type renewRequest struct {
	Days int `json:"days"`
}

// Assign はメールアドレスで指定したセラピストを割り当てる。
// POST /api/therapist/assign
func (h *TherapistHandler) Assign(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req assignRequest
	if err := decodeJSONBody(r, &req, false); err != nil {
		handleServiceError(w, r, err)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		handleServiceError(w, r, model.NewInvalidRequestError("Therapist email is required", "email"))
		return
	}

	result, err := h.assignments.Assign(r.Context(), userID, email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, assignResponse{
		Success:     true,
		Message:     "Therapist assigned and data sharing enabled",
		Data:        result.User,
		TherapistID: result.Therapist.ID,
		Therapist:   result.Therapist,
	})
}

// Remove は担当セラピストを解除し、共有を取り消す。
// DELETE /api/therapist/remove
func (h *TherapistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	result, err := h.assignments.Unassign(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, removeResponse{
		Success: true,
		Message: "Therapist removed and data sharing revoked",
		Data:    result.User,
		Revoked: result.Revoked,
	})
}

// GetAssigned は担当セラピストを返す。
// GET /api/therapist/assigned
func (h *TherapistHandler) GetAssigned(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	t, err := h.assignments.GetAssigned(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, assignedResponse{
		Success:   true,
		Message:   "Assigned therapist retrieved successfully",
		Therapist: *t,
	})
}

// ShareEmotions は現在の感情データを担当セラピストに共有する。
// POST /api/therapist/share-emotions
func (h *TherapistHandler) ShareEmotions(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	result, err := h.sharing.ShareCurrentData(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, shareEmotionsResponse{Success: true, shareResult: *result})
}

// GetTherapistDetails はセラピスト詳細と共有データを返す。
// GET /api/therapist/{therapistId}
// セラピストがクライアントのデータを閲覧する場合は?userId=でクライアントを指定する。
func (h *TherapistHandler) GetTherapistDetails(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	therapistID := chi.URLParam(r, "therapistId")
	if therapistID == "" {
		handleServiceError(w, r, model.NewInvalidRequestError("Therapist ID is required", "therapistId"))
		return
	}

	therapistID, err = parseID(therapistID, model.NewTherapistNotFoundError)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	userID := actorID
	if raw := r.URL.Query().Get("userId"); raw != "" {
		userID, err = parseID(raw, model.NewUserNotFoundError)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
	}

	detail, err := h.sharing.GetTherapistView(r.Context(), actorID, userID, therapistID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: detail})
}

// RequestSharing はメールアドレスで指定したセラピストとの共有を有効化する。
// POST /api/therapist/request-sharing
func (h *TherapistHandler) RequestSharing(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req requestSharingRequest
	if err := decodeJSONBody(r, &req, false); err != nil {
		handleServiceError(w, r, err)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		handleServiceError(w, r, model.NewInvalidRequestError("Therapist email is required", "email"))
		return
	}

	result, err := h.sharing.RequestSharing(r.Context(), userID, email, req.AccessSettings)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Data sharing enabled", Data: result})
}

// ListSharing はユーザーの有効な共有一覧を返す。
// GET /api/therapist/sharing
func (h *TherapistHandler) ListSharing(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	list, err := h.sharing.ListSharing(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []therapistSharingResponse{}
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: list})
}

// UpdateSettings はアクセス設定を部分更新する。
// PUT /api/therapist/sharing/{therapistId}/settings
func (h *TherapistHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	therapistID, err := parseID(chi.URLParam(r, "therapistId"), model.NewSharingRecordNotFoundError)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	var req updateSettingsRequest
	if err := decodeJSONBody(r, &req, false); err != nil {
		handleServiceError(w, r, err)
		return
	}

	result, err := h.sharing.UpdateSettings(r.Context(), userID, therapistID, req.AccessSettings)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: result})
}

// Renew は共有の有効期限を延長する。
// POST /api/therapist/sharing/{therapistId}/renew
func (h *TherapistHandler) Renew(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	therapistID, err := parseID(chi.URLParam(r, "therapistId"), model.NewSharingRecordNotFoundError)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	var req renewRequest
	if err := decodeJSONBody(r, &req, true); err != nil {
		handleServiceError(w, r, err)
		return
	}

	result, err := h.sharing.RenewSharing(r.Context(), userID, therapistID, req.Days)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: result})
}

// ListClients はセラピストのクライアント一覧を返す。
// GET /api/therapist/clients
func (h *TherapistHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	list, err := h.sharing.ListClients(r.Context(), actorID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []clientSharingResponse{}
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: list})
}

// parseID はパスやクエリで受け取ったIDをUUIDとして検証し、正規化した文字列を返す。
// UUID形式でないIDに一致するレコードは存在しないため、notFoundのエラーを返す。
func parseID(raw string, notFound func() *model.APIError) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", notFound()
	}
	return id.String(), nil
}
