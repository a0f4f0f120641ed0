package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/hitoshi/moodshare/internal/model"
)

// emotionRow はemotionsテーブルの1行を表す。
type emotionRow struct {
	ID         string         `db:"id"`
	UserID     string         `db:"user_id"`
	Date       time.Time      `db:"date"`
	Emotion    string         `db:"emotion"`
	Intensity  int            `db:"intensity"`
	Notes      string         `db:"notes"`
	Triggers   pq.StringArray `db:"triggers"`
	Activities pq.StringArray `db:"activities"`
}

func (r emotionRow) toModel() model.EmotionEntry {
	return model.EmotionEntry{
		ID:         r.ID,
		UserID:     r.UserID,
		Date:       r.Date,
		Emotion:    model.Emotion(r.Emotion),
		Intensity:  r.Intensity,
		Notes:      r.Notes,
		Triggers:   []string(r.Triggers),
		Activities: []string(r.Activities),
	}
}

// PostgresEmotionRepo はsqlxを使用した感情ジャーナルリポジトリ。
type PostgresEmotionRepo struct {
	db *sqlx.DB
}

// NewPostgresEmotionRepo はPostgresEmotionRepoを生成する。
func NewPostgresEmotionRepo(db *sqlx.DB) *PostgresEmotionRepo {
	return &PostgresEmotionRepo{db: db}
}

// Summarize は件数・平均強度（小数第1位で丸め）・感情別件数を集計する。
func (r *PostgresEmotionRepo) Summarize(ctx context.Context, userID string) (model.EmotionSummary, error) {
	var agg struct {
		Count int             `db:"count"`
		Avg   sql.NullFloat64 `db:"avg_intensity"`
	}
	err := r.db.GetContext(ctx, &agg,
		`SELECT COUNT(*) AS count,
		        ROUND(AVG(intensity)::numeric, 1)::float8 AS avg_intensity
		 FROM emotions
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return model.EmotionSummary{}, fmt.Errorf("感情サマリーの集計に失敗しました: %w", err)
	}

	summary := model.EmptyEmotionSummary()
	if agg.Count == 0 {
		return summary, nil
	}
	summary.Count = agg.Count
	summary.AverageIntensity = agg.Avg.Float64

	var counts []struct {
		Emotion string `db:"emotion"`
		Count   int    `db:"count"`
	}
	err = r.db.SelectContext(ctx, &counts,
		`SELECT emotion, COUNT(*) AS count
		 FROM emotions
		 WHERE user_id = $1
		 GROUP BY emotion`,
		userID,
	)
	if err != nil {
		return model.EmotionSummary{}, fmt.Errorf("感情別件数の集計に失敗しました: %w", err)
	}
	for _, c := range counts {
		summary.EmotionCounts[model.Emotion(c.Emotion)] = c.Count
	}

	return summary, nil
}

// FindSince はsince以降の記録を日付の降順で返す。
func (r *PostgresEmotionRepo) FindSince(ctx context.Context, userID string, since time.Time) ([]model.EmotionEntry, error) {
	var rows []emotionRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, user_id, date, emotion, intensity, notes, triggers, activities
		 FROM emotions
		 WHERE user_id = $1 AND date >= $2
		 ORDER BY date DESC`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("感情記録の取得に失敗しました: %w", err)
	}

	entries := make([]model.EmotionEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toModel())
	}
	return entries, nil
}

// Create は感情記録を作成する。記録APIはこのサービスの範囲外のため、
// シードデータ投入と結合テストでのみ使用する。
func (r *PostgresEmotionRepo) Create(ctx context.Context, entry *model.EmotionEntry) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO emotions (id, user_id, date, emotion, intensity, notes, triggers, activities)
		 VALUES (:id, :user_id, :date, :emotion, :intensity, :notes, :triggers, :activities)`,
		emotionRow{
			ID:         entry.ID,
			UserID:     entry.UserID,
			Date:       entry.Date,
			Emotion:    string(entry.Emotion),
			Intensity:  entry.Intensity,
			Notes:      entry.Notes,
			Triggers:   pq.StringArray(nonNil(entry.Triggers)),
			Activities: pq.StringArray(nonNil(entry.Activities)),
		},
	)
	if err != nil {
		return fmt.Errorf("感情記録の作成に失敗しました: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// compile-time interface check
var _ EmotionRepository = (*PostgresEmotionRepo)(nil)
