package model

import "time"

// Emotion は記録可能な感情の種別。
type Emotion string

const (
	EmotionHappy   Emotion = "happy"
	EmotionSad     Emotion = "sad"
	EmotionAngry   Emotion = "angry"
	EmotionAnxious Emotion = "anxious"
	EmotionNeutral Emotion = "neutral"
)

// EmotionEntry は感情ジャーナルの1件の記録を表す。
type EmotionEntry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Date       time.Time `json:"date"`
	Emotion    Emotion   `json:"emotion"`
	Intensity  int       `json:"intensity"` // 1-10
	Notes      string    `json:"notes,omitempty"`
	Triggers   []string  `json:"triggers"`
	Activities []string  `json:"activities"`
}

// EmotionSummary はユーザーの感情記録の集計結果。
type EmotionSummary struct {
	Count            int             `json:"count"`
	AverageIntensity float64         `json:"averageIntensity"`
	EmotionCounts    map[Emotion]int `json:"emotionCounts"`
}

// EmptyEmotionSummary は記録が1件もない場合の集計結果を返す。
func EmptyEmotionSummary() EmotionSummary {
	return EmotionSummary{EmotionCounts: map[Emotion]int{}}
}
