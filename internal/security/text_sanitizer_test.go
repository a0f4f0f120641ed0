package security

import (
	"strings"
	"testing"

	"github.com/hitoshi/moodshare/internal/model"
)

// TestSanitizeText はタグ除去とエスケープの扱いを検証する。
func TestSanitizeText(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "空文字列", input: "", want: ""},
		{name: "プレーンテキストはそのまま", input: "散歩した", want: "散歩した"},
		{name: "scriptタグは内容ごと除去", input: `ok<script>alert(1)</script>`, want: "ok"},
		{name: "装飾タグは除去しテキストを残す", input: "<b>とても</b>疲れた", want: "とても疲れた"},
		{name: "イベント属性付きタグ", input: `<img src=x onerror="alert(1)">眠い`, want: "眠い"},
		{name: "アンパサンドはエスケープしない", input: "work & school", want: "work & school"},
		{name: "前後の空白を除く", input: "  <p>calm</p>  ", want: "calm"},
		{
			name:  "エンティティで書かれたタグも除去",
			input: "&lt;script&gt;alert(1)&lt;/script&gt; &lt;img src=x onerror=alert(1)&gt;",
			want:  "",
		},
		{name: "二重エンコードされたタグも除去", input: "a&amp;lt;b&amp;gt;x&amp;lt;/b&amp;gt;", want: "ax"},
		{name: "比較記号はタグとして扱わない", input: "3 &lt; 5", want: "3 < 5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.SanitizeText(tt.input); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitizeText_Idempotent は同一入力に対して同一出力を返すことを検証する。
func TestSanitizeText_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()
	inputs := []string{
		`<i>rain</i> again`,
		"&lt;b&gt;bold&lt;/b&gt; text",
		"&lt;script&gt;alert(1)&lt;/script&gt;ok",
		"tom &amp; jerry",
	}

	for _, input := range inputs {
		first := sanitizer.SanitizeText(input)
		second := sanitizer.SanitizeText(first)
		if first != second {
			t.Errorf("not idempotent for %q: %q -> %q", input, first, second)
		}
		if strings.ContainsAny(first, "<>") {
			t.Errorf("SanitizeText(%q) = %q, still contains markup", input, first)
		}
	}
}

// TestSanitizeEntries は入力を変更せずにコピーをサニタイズすることを検証する。
func TestSanitizeEntries(t *testing.T) {
	sanitizer := NewTextSanitizer()

	entries := []model.EmotionEntry{
		{
			ID:         "e1",
			Emotion:    model.EmotionAngry,
			Intensity:  9,
			Notes:      "<b>argument</b>",
			Triggers:   []string{"<script>x</script>", "traffic"},
			Activities: []string{"<em>run</em>"},
		},
	}

	got := sanitizer.SanitizeEntries(entries)

	if got[0].Notes != "argument" {
		t.Errorf("Notes = %q, want %q", got[0].Notes, "argument")
	}
	if len(got[0].Triggers) != 1 || got[0].Triggers[0] != "traffic" {
		t.Errorf("Triggers = %v, want [traffic]", got[0].Triggers)
	}
	if len(got[0].Activities) != 1 || got[0].Activities[0] != "run" {
		t.Errorf("Activities = %v, want [run]", got[0].Activities)
	}
	if got[0].Intensity != 9 || got[0].Emotion != model.EmotionAngry {
		t.Errorf("non-text fields changed: %+v", got[0])
	}
	if entries[0].Notes != "<b>argument</b>" {
		t.Errorf("input mutated: %q", entries[0].Notes)
	}
	if sanitizer.SanitizeEntries(nil) != nil {
		t.Error("SanitizeEntries(nil) should be nil")
	}
}
