package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Egold-Exchange/uigisc-be/internal/user/entity"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("email already registered")
	ErrSubdomainExist = errors.New("subdomain already taken")
)

const (
	uniqueViolation = pq.ErrorCode("23505")

	usersEmailKey        = "users_email_key"
	usersSubdomainKey    = "users_subdomain_key"
	websitesSubdomainKey = "websites_subdomain_key"
)

// UserRepo provides data access for the users and websites tables.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the tables if they do not exist (idempotent).
// Prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  subdomain TEXT,
  name TEXT,
  mobile TEXT,
  role TEXT NOT NULL DEFAULT 'user',
  is_verified BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT users_email_key UNIQUE (email),
  CONSTRAINT users_subdomain_key UNIQUE (subdomain)
);
CREATE TABLE IF NOT EXISTS websites (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  subdomain TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'unpublished',
  can_update_referral BOOLEAN NOT NULL DEFAULT true,
  date_published TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  last_modified TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT websites_subdomain_key UNIQUE (subdomain)
);
CREATE INDEX IF NOT EXISTS idx_websites_user_id ON websites(user_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts the user and its website in one transaction. Unique
// violations come back as ErrEmailExists or ErrSubdomainExist.
func (r *UserRepo) Create(ctx context.Context, u *entity.User, w *entity.Website) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const qUser = `INSERT INTO users (id,email,password_hash,subdomain,name,mobile,role,is_verified)
		VALUES (:id,:email,:password_hash,:subdomain,:name,:mobile,:role,:is_verified)
		RETURNING created_at, updated_at`
	rows, err := sqlx.NamedQueryContext(ctx, tx, qUser, u)
	if err != nil {
		return mapConstraint(err)
	}
	if rows.Next() {
		if err := rows.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
			rows.Close()
			return err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return mapConstraint(err)
	}

	if w != nil {
		w.UserID = u.ID
		const qSite = `INSERT INTO websites (id,user_id,subdomain,status,can_update_referral,date_published)
			VALUES (:id,:user_id,:subdomain,:status,:can_update_referral,:date_published)`
		if _, err := tx.NamedExecContext(ctx, qSite, w); err != nil {
			return mapConstraint(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return mapConstraint(err)
	}
	return nil
}

const selectUser = `SELECT id, email, password_hash, subdomain, name, mobile, role, is_verified, created_at, updated_at FROM users`

// GetByEmail expects an already lower-cased email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getOne(ctx, selectUser+` WHERE email=$1`, email)
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.getOne(ctx, selectUser+` WHERE id=$1`, id)
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email=$1)`, email)
}

// SubdomainExists checks both tables, since a website may outlive a rename.
func (r *UserRepo) SubdomainExists(ctx context.Context, subdomain string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE subdomain=$1)
		OR EXISTS(SELECT 1 FROM websites WHERE subdomain=$1)`, subdomain)
}

func (r *UserRepo) exists(ctx context.Context, q string, arg any) (bool, error) {
	var ok bool
	if err := r.db.GetContext(ctx, &ok, q, arg); err != nil {
		return false, err
	}
	return ok, nil
}

// UpdatePassword replaces the password hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	const q = `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id, hash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// mapConstraint turns postgres unique violations into domain errors and
// passes everything else through.
func mapConstraint(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case usersEmailKey:
		return ErrEmailExists
	case usersSubdomainKey, websitesSubdomainKey:
		return ErrSubdomainExist
	default:
		return err
	}
}
