// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// エラーカテゴリ。HTTP層でステータスコードへの変換に使用する。
const (
	CategoryNotFound   = "not_found"
	CategoryValidation = "validation"
	CategoryAuth       = "auth"
	CategoryForbidden  = "forbidden"
	CategorySystem     = "system"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string   // エラーコード
	Message  string   // エラーメッセージ
	Category string   // カテゴリ: not_found, validation, auth, forbidden, system
	Action   string   // ユーザー向け対処方法
	Details  []string // バリデーションエラーの詳細（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUserNotFound              = "USER_NOT_FOUND"
	ErrCodeTherapistNotFound         = "THERAPIST_NOT_FOUND"
	ErrCodeAssignedTherapistNotFound = "ASSIGNED_THERAPIST_NOT_FOUND"
	ErrCodeSharingNotFound           = "SHARING_NOT_FOUND"
	ErrCodeNoTherapistAssigned       = "NO_THERAPIST_ASSIGNED"
	ErrCodeInvalidDuration           = "INVALID_DURATION"
	ErrCodeInvalidRequest            = "INVALID_REQUEST"
	ErrCodeForbidden                 = "FORBIDDEN"
	ErrCodeUnauthorized              = "UNAUTHORIZED"
	ErrCodeInternal                  = "INTERNAL_ERROR"
)

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: CategoryNotFound,
		Action:   "Sign in again.",
	}
}

// NewTherapistNotFoundError はセラピストが見つからない場合のエラーを生成する。
func NewTherapistNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeTherapistNotFound,
		Message:  "Therapist not found",
		Category: CategoryNotFound,
		Action:   "Check the therapist's email address.",
	}
}

// NewAssignedTherapistNotFoundError は割り当て済みのセラピストが存在しない、
// またはセラピストロールを失っている場合のエラーを生成する。
func NewAssignedTherapistNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAssignedTherapistNotFound,
		Message:  "Assigned therapist not found",
		Category: CategoryNotFound,
		Action:   "Assign a therapist again.",
	}
}

// NewSharingRecordNotFoundError は共有レコードが見つからない場合のエラーを生成する。
func NewSharingRecordNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeSharingNotFound,
		Message:  "Data sharing record not found",
		Category: CategoryNotFound,
		Action:   "Enable data sharing with this therapist first.",
	}
}

// NewNoTherapistAssignedError はセラピスト未割り当ての場合のエラーを生成する。
func NewNoTherapistAssignedError() *APIError {
	return &APIError{
		Code:     ErrCodeNoTherapistAssigned,
		Message:  "No therapist assigned",
		Category: CategoryValidation,
		Action:   "Assign a therapist before sharing data.",
	}
}

// NewInvalidDurationError はdurationDaysが範囲外の場合のエラーを生成する。
func NewInvalidDurationError(days int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDuration,
		Message:  fmt.Sprintf("Invalid durationDays: %d", days),
		Category: CategoryValidation,
		Action:   fmt.Sprintf("durationDays must be between %d and %d.", MinLookbackDays, MaxLookbackDays),
		Details:  []string{"durationDays"},
	}
}

// NewInvalidRequestError はリクエスト内容が不正な場合のエラーを生成する。
func NewInvalidRequestError(message string, details ...string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  message,
		Category: CategoryValidation,
		Action:   "Fix the request and try again.",
		Details:  details,
	}
}

// NewForbiddenError は対象リソースへの操作が許可されていない場合のエラーを生成する。
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  message,
		Category: CategoryForbidden,
		Action:   "You can only access your own data or data shared with you.",
	}
}

// NewUnauthorizedError は未認証の場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required",
		Category: CategoryAuth,
		Action:   "Sign in and retry with a valid bearer token.",
	}
}

// NewInternalError は内部エラーの統一レスポンス用エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal server error",
		Category: CategorySystem,
		Action:   "Please try again later.",
	}
}

// IsCategory はerrがcategoryのAPIErrorを含むかを返す。
func IsCategory(err error, category string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category == category
	}
	return false
}

// IsNotFound はerrがNotFound系のエラーかを返す。
func IsNotFound(err error) bool { return IsCategory(err, CategoryNotFound) }

// IsValidation はerrがバリデーションエラーかを返す。
func IsValidation(err error) bool { return IsCategory(err, CategoryValidation) }

// IsForbidden はerrが権限エラーかを返す。
func IsForbidden(err error) bool { return IsCategory(err, CategoryForbidden) }
