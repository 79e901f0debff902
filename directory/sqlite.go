package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/MrEthical07/goUserAuth/permission"
)

const userColumns = `id, email, password_hash, permission, refresh_token_hash, created_at`

// SQLite is a Directory persisted with modernc.org/sqlite. The pool is
// limited to one connection so every transaction is serialized.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLite opens (or creates) the database at dsn and applies the
// embedded migrations. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, dsn string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "directory")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite directory initialized", "dsn", dsn)
	return &SQLite{db: db, logger: logger, now: time.Now}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Create(ctx context.Context, email, passwordHash string, level permission.Level) (User, error) {
	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Permission:   level,
		CreatedAt:    s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, '', ?)`,
		u.ID, u.Email, u.PasswordHash, string(u.Permission), u.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return User{}, ErrConflict
		}
		return User{}, fmt.Errorf("%w: inserting user: %v", ErrUnavailable, err)
	}
	s.logger.Debug("user created", "user_id", u.ID)
	return u, nil
}

func (s *SQLite) FindByID(ctx context.Context, id string) (User, error) {
	return s.queryOne(ctx, s.db, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (s *SQLite) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.queryOne(ctx, s.db, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (s *SQLite) ListAll(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing users: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating users: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (s *SQLite) SetRefreshTokenHash(ctx context.Context, id, hash string) (User, error) {
	return s.update(ctx, id, `UPDATE users SET refresh_token_hash = ? WHERE id = ?`, hash, id)
}

func (s *SQLite) RevokeRefreshToken(ctx context.Context, id string) (User, error) {
	return s.update(ctx, id, `UPDATE users SET refresh_token_hash = '' WHERE id = ?`, id)
}

func (s *SQLite) SetPermission(ctx context.Context, id string, level permission.Level) (User, error) {
	return s.update(ctx, id, `UPDATE users SET permission = ? WHERE id = ?`, string(level), id)
}

func (s *SQLite) RotateRefreshTokenHash(ctx context.Context, id, presented, next string) (User, error) {
	var (
		result   User
		mismatch bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		u, err := s.queryOne(ctx, tx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if HashesEqual(u.RefreshTokenHash, presented) {
			u.RefreshTokenHash = next
		} else {
			u.RefreshTokenHash = ""
			mismatch = true
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET refresh_token_hash = ? WHERE id = ?`, u.RefreshTokenHash, id); err != nil {
			return fmt.Errorf("%w: rotating refresh hash: %v", ErrUnavailable, err)
		}
		result = u
		return nil
	})
	if err != nil {
		return User{}, err
	}
	if mismatch {
		return result, ErrRefreshHashMismatch
	}
	return result, nil
}

func (s *SQLite) update(ctx context.Context, id, query string, args ...any) (User, error) {
	var result User
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("%w: updating user: %v", ErrUnavailable, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if n == 0 {
			return ErrNotFound
		}
		result, err = s.queryOne(ctx, tx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
		return err
	})
	return result, err
}

func (s *SQLite) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLite) queryOne(ctx context.Context, q queryer, query string, args ...any) (User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func scanUser(row scanner) (User, error) {
	var (
		u         User
		level     string
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &level, &u.RefreshTokenHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("%w: scanning user: %v", ErrUnavailable, err)
	}
	u.Permission = permission.Level(level)
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return User{}, fmt.Errorf("%w: corrupt created_at: %v", ErrUnavailable, err)
	}
	u.CreatedAt = created
	return u, nil
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation.
func isConstraintViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ Directory = (*SQLite)(nil)
