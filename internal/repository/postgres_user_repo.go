package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/moodshare/internal/model"
)

const userColumns = `id, name, email, password_hash, role, phone, therapist_id, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。大文字小文字は区別しない。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string, role *model.Role) (*model.User, error) {
	var roleArg sql.NullString
	if role != nil {
		roleArg = sql.NullString{String: string(*role), Valid: true}
	}

	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE lower(email) = lower($1) AND ($2::text IS NULL OR role = $2::text)`,
		email, roleArg,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// SetTherapist はユーザーの担当セラピストを設定する。
func (r *PostgresUserRepo) SetTherapist(ctx context.Context, userID, therapistID string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET therapist_id = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		userID, therapistID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to set therapist: %w", err)
	}
	return user, nil
}

// ClearTherapist はユーザーの担当セラピストを解除する。
func (r *PostgresUserRepo) ClearTherapist(ctx context.Context, userID string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET therapist_id = NULL, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		userID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to clear therapist: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。アカウント登録はこのサービスの範囲外のため、
// シードデータ投入と結合テストでのみ使用する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, phone, therapist_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, '')::uuid, $8, $9)`,
		user.ID, user.Name, user.Email, user.PasswordHash, user.Role,
		user.Phone, user.TherapistID, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// scanUser は1行をUserにマッピングする。行がない場合はnil, nilを返す。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var role string
	var phone, therapistID sql.NullString

	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &role,
		&phone, &therapistID, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	user.Role = model.Role(role)
	user.Phone = phone.String
	user.TherapistID = therapistID.String
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
