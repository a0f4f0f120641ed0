package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/moodshare/internal/model"
)

const sharingColumns = `id, user_id, therapist_id, status, created_at, expires_at, last_shared,
	access_settings, access_logs, shared_snapshots, updated_at`

// PostgresSharingRepo はPostgreSQLを使用した共有レコードリポジトリ。
// access_settings、access_logs、shared_snapshotsはJSONBカラムに保存する。
type PostgresSharingRepo struct {
	db *sql.DB
}

// NewPostgresSharingRepo はPostgresSharingRepoを生成する。
func NewPostgresSharingRepo(db *sql.DB) *PostgresSharingRepo {
	return &PostgresSharingRepo{db: db}
}

// FindByPair はユーザーIDとセラピストIDで共有レコードを取得する。
func (r *PostgresSharingRepo) FindByPair(ctx context.Context, userID, therapistID string) (*model.SharingRecord, error) {
	rec, err := scanSharingRow(r.db.QueryRowContext(ctx,
		`SELECT `+sharingColumns+` FROM sharing_records WHERE user_id = $1 AND therapist_id = $2`,
		userID, therapistID,
	))
	if err != nil {
		return nil, fmt.Errorf("共有レコードの取得に失敗しました: %w", err)
	}
	return rec, nil
}

// Upsert はUNIQUE(user_id, therapist_id)制約を利用したINSERT ON CONFLICTで
// 共有レコードを作成または再有効化する。
// 既存レコードの設定はJSONBの||演算子でパッチを浅くマージする。
func (r *PostgresSharingRepo) Upsert(ctx context.Context, params UpsertSharingParams) (*model.SharingRecord, error) {
	defaults, err := json.Marshal(params.Defaults)
	if err != nil {
		return nil, fmt.Errorf("アクセス設定のエンコードに失敗しました: %w", err)
	}
	patch, err := json.Marshal(params.Patch)
	if err != nil {
		return nil, fmt.Errorf("アクセス設定のエンコードに失敗しました: %w", err)
	}

	rec, err := scanSharingRow(r.db.QueryRowContext(ctx,
		`INSERT INTO sharing_records (id, user_id, therapist_id, status, created_at, expires_at, access_settings, updated_at)
		 VALUES ($1, $2, $3, 'active', $4, $5, $6::jsonb || $7::jsonb, $4)
		 ON CONFLICT (user_id, therapist_id) DO UPDATE SET
		     status          = 'active',
		     expires_at      = EXCLUDED.expires_at,
		     access_settings = sharing_records.access_settings || $7::jsonb,
		     updated_at      = EXCLUDED.updated_at
		 RETURNING `+sharingColumns,
		params.ID, params.UserID, params.TherapistID,
		params.Now, params.ExpiresAt, string(defaults), string(patch),
	))
	if err != nil {
		return nil, fmt.Errorf("共有レコードのUPSERTに失敗しました: %w", err)
	}
	return rec, nil
}

// UpdateSettings はアクセス設定を置き換える。
func (r *PostgresSharingRepo) UpdateSettings(ctx context.Context, id string, settings model.AccessSettings, now time.Time) (*model.SharingRecord, error) {
	encoded, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("アクセス設定のエンコードに失敗しました: %w", err)
	}

	rec, err := scanSharingRow(r.db.QueryRowContext(ctx,
		`UPDATE sharing_records SET access_settings = $2::jsonb, updated_at = $3
		 WHERE id = $1
		 RETURNING `+sharingColumns,
		id, string(encoded), now,
	))
	if err != nil {
		return nil, fmt.Errorf("アクセス設定の更新に失敗しました: %w", err)
	}
	return rec, nil
}

// UpdateExpiry は有効期限を更新する。
func (r *PostgresSharingRepo) UpdateExpiry(ctx context.Context, id string, expiresAt, now time.Time) (*model.SharingRecord, error) {
	rec, err := scanSharingRow(r.db.QueryRowContext(ctx,
		`UPDATE sharing_records SET expires_at = $2, updated_at = $3
		 WHERE id = $1
		 RETURNING `+sharingColumns,
		id, expiresAt, now,
	))
	if err != nil {
		return nil, fmt.Errorf("有効期限の更新に失敗しました: %w", err)
	}
	return rec, nil
}

// AppendShareHistory はアクセスログとスナップショットを1回のUPDATEで追記する。
// スナップショットは追記後に末尾からMaxSharedSnapshots件を残し、古いものから破棄する。
func (r *PostgresSharingRepo) AppendShareHistory(
	ctx context.Context,
	id string,
	entry model.AccessLog,
	snapshot model.SharedSnapshot,
) (*model.SharingRecord, error) {
	encodedLog, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("アクセスログのエンコードに失敗しました: %w", err)
	}
	encodedSnapshot, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("スナップショットのエンコードに失敗しました: %w", err)
	}

	rec, err := scanSharingRow(r.db.QueryRowContext(ctx,
		`UPDATE sharing_records SET
		     last_shared      = $2,
		     access_logs      = sharing_records.access_logs || jsonb_build_array($3::jsonb),
		     shared_snapshots = (
		         SELECT COALESCE(jsonb_agg(latest.elem ORDER BY latest.ord), '[]'::jsonb)
		         FROM (
		             SELECT t.elem, t.ord
		             FROM jsonb_array_elements(sharing_records.shared_snapshots || jsonb_build_array($4::jsonb))
		                  WITH ORDINALITY AS t(elem, ord)
		             ORDER BY t.ord DESC
		             LIMIT $5
		         ) latest
		     ),
		     updated_at       = $2
		 WHERE id = $1
		 RETURNING `+sharingColumns,
		id, entry.AccessedAt, string(encodedLog), string(encodedSnapshot), model.MaxSharedSnapshots,
	))
	if err != nil {
		return nil, fmt.Errorf("共有履歴の保存に失敗しました: %w", err)
	}
	return rec, nil
}

// RevokeActiveByUser はユーザーのactiveな共有レコードをすべてrevokedにする。
func (r *PostgresSharingRepo) RevokeActiveByUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sharing_records SET status = 'revoked', updated_at = $2
		 WHERE user_id = $1 AND status = 'active'`,
		userID, now,
	)
	if err != nil {
		return 0, fmt.Errorf("共有レコードの取り消しに失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// ListActiveByUser はユーザーの有効な共有レコードを作成日時の降順で返す。
func (r *PostgresSharingRepo) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*model.SharingRecord, error) {
	return r.listActive(ctx, "user_id", userID, now)
}

// ListActiveByTherapist はセラピストに対する有効な共有レコードを作成日時の降順で返す。
func (r *PostgresSharingRepo) ListActiveByTherapist(ctx context.Context, therapistID string, now time.Time) ([]*model.SharingRecord, error) {
	return r.listActive(ctx, "therapist_id", therapistID, now)
}

// listActive はcolumnで絞り込んだ有効な共有レコードを返す。
// columnは呼び出し元の固定値のみを受け付ける。
func (r *PostgresSharingRepo) listActive(ctx context.Context, column, id string, now time.Time) ([]*model.SharingRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sharingColumns+` FROM sharing_records
		 WHERE `+column+` = $1 AND status = 'active' AND expires_at > $2
		 ORDER BY created_at DESC`,
		id, now,
	)
	if err != nil {
		return nil, fmt.Errorf("共有レコード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var records []*model.SharingRecord
	for rows.Next() {
		rec, err := scanSharingRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("共有レコードのスキャンに失敗しました: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("共有レコード一覧の取得に失敗しました: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSharingRow は単一行をスキャンする。行がない場合はnil, nilを返す。
func scanSharingRow(row *sql.Row) (*model.SharingRecord, error) {
	rec, err := scanSharingRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func scanSharingRecord(row rowScanner) (*model.SharingRecord, error) {
	rec := &model.SharingRecord{}
	var status string
	var lastShared sql.NullTime
	var settings, logs, snapshots []byte

	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.TherapistID, &status,
		&rec.CreatedAt, &rec.ExpiresAt, &lastShared,
		&settings, &logs, &snapshots, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = model.SharingStatus(status)
	if lastShared.Valid {
		rec.LastShared = &lastShared.Time
	}
	if err := json.Unmarshal(settings, &rec.AccessSettings); err != nil {
		return nil, fmt.Errorf("access_settingsのデコードに失敗しました: %w", err)
	}
	if err := json.Unmarshal(logs, &rec.AccessLogs); err != nil {
		return nil, fmt.Errorf("access_logsのデコードに失敗しました: %w", err)
	}
	if err := json.Unmarshal(snapshots, &rec.SharedSnapshots); err != nil {
		return nil, fmt.Errorf("shared_snapshotsのデコードに失敗しました: %w", err)
	}
	return rec, nil
}

// compile-time interface check
var _ SharingRepository = (*PostgresSharingRepo)(nil)
