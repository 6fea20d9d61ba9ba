package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/cyberguard/aegis/internal/database"
	"github.com/cyberguard/aegis/internal/models"
)

// TestDB manages the PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("aegis"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// The migrations are embedded in the database package, so the wrapper
	// runs them the same way production startup does.
	db := &database.DB{Pool: pool}
	if err := db.RunMigrations(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         db,
	}, nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all application tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"audit_logs",
		"security_alerts",
		"ip_records",
		"users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}
	return nil
}

// SeedUser inserts a user with the given role. The password is hashed at
// bcrypt.MinCost to keep the suite fast; ComparePassword is cost-agnostic.
func SeedUser(ctx context.Context, pool *pgxpool.Pool, email, password string, role models.Role) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO users (id, email, password_hash, name, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, email, password_hash, name, role, mfa_enabled, created_at, updated_at
	`

	var user models.User
	err = pool.QueryRow(ctx, query, uuid.NewString(), email, string(hash), "Test User", role).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.Role,
		&user.MFAEnabled,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return &user, nil
}

// SeedMFAUser inserts a user with MFA already active: an enrolled secret
// plus issued backup codes.
func SeedMFAUser(ctx context.Context, pool *pgxpool.Pool, email, password, secret string, backupCodes []string) (*models.User, error) {
	user, err := SeedUser(ctx, pool, email, password, models.RoleUser)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE users SET mfa_enabled = TRUE, mfa_secret = $1, backup_codes = $2
		WHERE id = $3
	`
	if _, err := pool.Exec(ctx, query, secret, backupCodes, user.ID); err != nil {
		return nil, fmt.Errorf("failed to enable mfa: %w", err)
	}

	user.MFAEnabled = true
	user.MFASecret = &secret
	user.BackupCodes = backupCodes
	return user, nil
}

// SeedBlockedIP inserts an ip_records row already in the blocked state.
func SeedBlockedIP(ctx context.Context, pool *pgxpool.Pool, ip, reason string, until time.Time) error {
	query := `
		INSERT INTO ip_records (ip_address, request_count, is_blocked, block_reason, blocked_until)
		VALUES ($1, 0, TRUE, $2, $3)
	`
	if _, err := pool.Exec(ctx, query, ip, reason, until); err != nil {
		return fmt.Errorf("failed to insert blocked ip: %w", err)
	}
	return nil
}

// CountRows returns the row count of a table, optionally filtered.
func CountRows(ctx context.Context, pool *pgxpool.Pool, table, where string, args ...interface{}) (int, error) {
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}

	var count int
	err := pool.QueryRow(ctx, query, args...).Scan(&count)
	return count, err
}
