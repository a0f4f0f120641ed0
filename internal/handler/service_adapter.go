package handler

import (
	"context"

	"github.com/hitoshi/moodshare/internal/model"
	"github.com/hitoshi/moodshare/internal/sharing"
	"github.com/hitoshi/moodshare/internal/therapist"
)

// SharingServiceAdapter は sharing.Orchestrator を SharingServiceInterface に適合させるアダプタ。
type SharingServiceAdapter struct {
	orch *sharing.Orchestrator
}

// NewSharingServiceAdapter はSharingServiceAdapterを生成する。
func NewSharingServiceAdapter(orch *sharing.Orchestrator) *SharingServiceAdapter {
	return &SharingServiceAdapter{orch: orch}
}

// ShareCurrentData は共有結果をhandlerレスポンス型で返す。
func (a *SharingServiceAdapter) ShareCurrentData(ctx context.Context, userID string) (*shareResult, error) {
	payload, err := a.orch.ShareCurrentData(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &shareResult{
		TherapistID: payload.TherapistID,
		SharedWith:  payload.TherapistID,
		SharedAt:    payload.SharedAt,
		Data:        toSharedDataResponse(payload.Data),
	}, nil
}

// GetTherapistView はセラピスト詳細をhandlerレスポンス型で返す。
func (a *SharingServiceAdapter) GetTherapistView(ctx context.Context, actorID, userID, therapistID string) (*detailResponse, error) {
	detail, err := a.orch.GetTherapistView(ctx, actorID, userID, therapistID)
	if err != nil {
		return nil, err
	}
	return &detailResponse{
		Therapist:   detail.Therapist,
		User:        detail.User,
		DataSharing: toSharingResponse(detail.Sharing),
		IsAssigned:  detail.IsAssigned,
		SharedAt:    detail.SharedAt,
		Data:        toSharedDataResponse(detail.Data),
	}, nil
}

// RequestSharing は有効化した共有をhandlerレスポンス型で返す。
func (a *SharingServiceAdapter) RequestSharing(ctx context.Context, userID, email string, patch *model.AccessSettingsPatch) (*therapistSharingResponse, error) {
	result, err := a.orch.RequestSharing(ctx, userID, email, patch)
	if err != nil {
		return nil, err
	}
	return &therapistSharingResponse{
		Therapist:   result.Therapist,
		DataSharing: toSharingResponse(result.Sharing),
	}, nil
}

// UpdateSettings は更新後の共有をhandlerレスポンス型で返す。
func (a *SharingServiceAdapter) UpdateSettings(ctx context.Context, userID, therapistID string, patch model.AccessSettingsPatch) (*sharingResponse, error) {
	view, err := a.orch.UpdateSettings(ctx, userID, therapistID, patch)
	if err != nil {
		return nil, err
	}
	resp := toSharingResponse(*view)
	return &resp, nil
}

// RenewSharing は延長後の共有をhandlerレスポンス型で返す。
func (a *SharingServiceAdapter) RenewSharing(ctx context.Context, userID, therapistID string, days int) (*sharingResponse, error) {
	view, err := a.orch.RenewSharing(ctx, userID, therapistID, days)
	if err != nil {
		return nil, err
	}
	resp := toSharingResponse(*view)
	return &resp, nil
}

// ListSharing はユーザーの共有一覧をhandlerレスポンス型で返す。
func (a *SharingServiceAdapter) ListSharing(ctx context.Context, userID string) ([]therapistSharingResponse, error) {
	list, err := a.orch.ListSharing(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make([]therapistSharingResponse, len(list))
	for i, s := range list {
		results[i] = therapistSharingResponse{
			Therapist:   s.Therapist,
			DataSharing: toSharingResponse(s.Sharing),
		}
	}
	return results, nil
}

// ListClients はクライアント一覧をhandlerレスポンス型で返す。
func (a *SharingServiceAdapter) ListClients(ctx context.Context, actorID string) ([]clientSharingResponse, error) {
	list, err := a.orch.ListClients(ctx, actorID)
	if err != nil {
		return nil, err
	}

	results := make([]clientSharingResponse, len(list))
	for i, s := range list {
		results[i] = clientSharingResponse{
			Client:      s.Client,
			DataSharing: toSharingResponse(s.Sharing),
		}
	}
	return results, nil
}

// toSharingResponse はドメインのRecordViewをhandlerのレスポンス型に変換する。
func toSharingResponse(v sharing.RecordView) sharingResponse {
	return sharingResponse{
		ID:             v.ID,
		Status:         string(v.Status),
		IsActive:       v.IsActive,
		CreatedAt:      v.CreatedAt,
		ExpiresAt:      v.ExpiresAt,
		LastShared:     v.LastShared,
		AccessSettings: v.AccessSettings,
	}
}

// toSharedDataResponse は共有データをレスポンス型に変換する。
// recentEmotionsは共有対象の場合、記録が0件でも空配列として出力する。
func toSharedDataResponse(d sharing.SharedData) sharedDataResponse {
	resp := sharedDataResponse{
		User:         d.User,
		Summary:      d.Summary,
		SharedFields: d.Included,
	}
	if resp.SharedFields == nil {
		resp.SharedFields = []string{}
	}
	if d.Has(model.FieldRecentEmotions) {
		entries := d.RecentEmotions
		if entries == nil {
			entries = []model.EmotionEntry{}
		}
		resp.RecentEmotions = &entries
	}
	return resp
}

// compile-time interface checks
var (
	_ SharingServiceInterface    = (*SharingServiceAdapter)(nil)
	_ AssignmentServiceInterface = (*therapist.Service)(nil)
)
