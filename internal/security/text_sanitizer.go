// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はセラピストへ共有する感情記録の自由記述（メモ、トリガー、活動）から
// マークアップを除去する。共有データはセラピスト側の画面に表示されるため、
// 記録時に混入したHTMLをそのまま渡さない。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/moodshare/internal/model"
)

// TextSanitizer はプレーンテキスト化のインターフェースを定義する。
type TextSanitizer interface {
	// SanitizeText はすべてのタグを除去したプレーンテキストを返す。
	SanitizeText(raw string) string
	// SanitizeEntries は感情記録の自由記述フィールドをサニタイズしたコピーを返す。
	// 入力スライスは変更しない。
	SanitizeEntries(entries []model.EmotionEntry) []model.EmotionEntry
}

// textSanitizer はbluemondayのStrictPolicyを使用するTextSanitizerの実装。
// bluemonday.Policyはスレッドセーフなため共有して使用する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// maxSanitizePasses はエンティティの多重エンコードを剥がす最大回数。
const maxSanitizePasses = 8

// SanitizeText はタグを除去し、StrictPolicyが付与したエスケープを戻した上で前後の空白を除く。
// 出力はJSONで返却されるため、HTMLエンティティのままにしない。
// エスケープを戻すとエンティティで書かれたタグが復元されるため、値が変わらなくなるまで繰り返す。
// 収束しない場合はStrictPolicyのエスケープ済み出力を返す。
func (s *textSanitizer) SanitizeText(raw string) string {
	cur := raw
	for i := 0; i < maxSanitizePasses; i++ {
		if cur == "" {
			return ""
		}
		next := strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(cur)))
		if next == cur {
			return next
		}
		cur = next
	}
	return strings.TrimSpace(s.policy.Sanitize(cur))
}

// SanitizeEntries は各記録のNotes、Triggers、Activitiesをサニタイズする。
// サニタイズ後に空になったトリガー・活動は除外する。
func (s *textSanitizer) SanitizeEntries(entries []model.EmotionEntry) []model.EmotionEntry {
	if entries == nil {
		return nil
	}
	out := make([]model.EmotionEntry, len(entries))
	for i, e := range entries {
		e.Notes = s.SanitizeText(e.Notes)
		e.Triggers = s.sanitizeList(e.Triggers)
		e.Activities = s.sanitizeList(e.Activities)
		out[i] = e
	}
	return out
}

func (s *textSanitizer) sanitizeList(items []string) []string {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		if v := s.SanitizeText(item); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	return cleaned
}

var _ TextSanitizer = (*textSanitizer)(nil)
