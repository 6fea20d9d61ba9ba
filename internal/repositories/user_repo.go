package repositories

import (
	"context"
	"time"

	"github.com/cyberguard/aegis/internal/database"
	"github.com/cyberguard/aegis/internal/models"
	"github.com/google/uuid"
)

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `id, email, password_hash, name, role, mfa_enabled, mfa_secret, backup_codes, used_backup_codes, created_at, updated_at`

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	err := scanner.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.Role,
		&user.MFAEnabled, &user.MFASecret, &user.BackupCodes, &user.UsedBackupCodes,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Role == "" {
		user.Role = models.RoleUser
	}

	query := `
		INSERT INTO users (id, email, password_hash, name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + userColumns

	return scanUserRow(r.db.Pool.QueryRow(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Name, user.Role,
		user.CreatedAt, user.UpdatedAt,
	))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return scanUserRow(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	return scanUserRow(r.db.Pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateRole sets a user's role.
func (r *UserRepository) UpdateRole(ctx context.Context, id string, role models.Role) error {
	query := `UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.Pool.Exec(ctx, query, role, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// StageMFA stores a fresh secret and backup codes without flipping the
// enabled flag. Enrollment completes in ActivateMFA once the user proves
// possession of the secret. Re-staging replaces any previous secret and
// codes entirely.
func (r *UserRepository) StageMFA(ctx context.Context, id, secret string, backupCodes []string) error {
	query := `
		UPDATE users SET
			mfa_enabled = FALSE,
			mfa_secret = $1,
			backup_codes = $2,
			used_backup_codes = '{}',
			updated_at = NOW()
		WHERE id = $3
	`

	result, err := r.db.Pool.Exec(ctx, query, secret, backupCodes, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ActivateMFA flips the enabled flag for a user with a staged secret.
func (r *UserRepository) ActivateMFA(ctx context.Context, id string) error {
	query := `
		UPDATE users SET mfa_enabled = TRUE, updated_at = NOW()
		WHERE id = $1 AND mfa_secret IS NOT NULL
	`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DisableMFA clears all enrollment state.
func (r *UserRepository) DisableMFA(ctx context.Context, id string) error {
	query := `
		UPDATE users SET
			mfa_enabled = FALSE,
			mfa_secret = NULL,
			backup_codes = '{}',
			used_backup_codes = '{}',
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ConsumeBackupCode marks a backup code used. The WHERE clause makes the
// check-and-mark atomic: a code that was issued and is not yet in
// used_backup_codes is appended, anything else affects zero rows and
// returns models.ErrUnauthorized. Two concurrent submissions of the same
// code cannot both succeed.
func (r *UserRepository) ConsumeBackupCode(ctx context.Context, id, code string) error {
	query := `
		UPDATE users SET
			used_backup_codes = array_append(used_backup_codes, $1),
			updated_at = NOW()
		WHERE id = $2
			AND backup_codes @> ARRAY[$1]
			AND NOT (used_backup_codes @> ARRAY[$1])
	`

	result, err := r.db.Pool.Exec(ctx, query, code, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrUnauthorized
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM users WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
