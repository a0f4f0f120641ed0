package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/moodshare/internal/model"
)

// ErrorDetail はエラーレスポンスのerrorオブジェクト。
// 原因カテゴリと対処方法を含む。
type ErrorDetail struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	StatusCode int      `json:"statusCode"`
	Category   string   `json:"category"`
	Action     string   `json:"action"`
	Details    []string `json:"details,omitempty"`
}

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// categoryStatus はエラーカテゴリとHTTPステータスコードの対応表。
var categoryStatus = map[string]int{
	model.CategoryNotFound:   http.StatusNotFound,
	model.CategoryValidation: http.StatusBadRequest,
	model.CategoryAuth:       http.StatusUnauthorized,
	model.CategoryForbidden:  http.StatusForbidden,
}

// StatusForCategory はエラーカテゴリに対応するHTTPステータスコードを返す。
// 未知のカテゴリは500とする。
func StatusForCategory(category string) int {
	if status, ok := categoryStatus[category]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Success: false,
		Error: ErrorDetail{
			Code:       apiErr.Code,
			Message:    apiErr.Message,
			StatusCode: statusCode,
			Category:   apiErr.Category,
			Action:     apiErr.Action,
			Details:    apiErr.Details,
		},
	})
}

// WriteError はerrをHTTPレスポンスに変換して書き込む。
// APIErrorはカテゴリに応じたステータスで返し、それ以外は詳細をログにのみ記録して500を返す。
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, StatusForCategory(apiErr.Category), apiErr)
		return
	}

	slog.Error("リクエストの処理に失敗しました",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	WriteInternalServerError(w)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
