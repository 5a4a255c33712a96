package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/iliyamo/account-authority/internal/model"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

const accountColumns = "id,username,email,first_name,last_name,age,password_hash,password_changed_at,role,is_active,last_login,created_at,updated_at"

// AccountRepo persists accounts in the MySQL `accounts` table. Uniqueness of
// username and email is enforced by the uq_accounts_username and
// uq_accounts_email indexes.
type AccountRepo struct{ DB *sql.DB }

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{DB: db} }

// Create inserts the account with a fresh id and returns the stored copy.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) (*model.Account, error) {
	acc := *a
	acc.ID = uuid.NewString()
	acc.Email = normalizeEmail(acc.Email)
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}
	acc.UpdatedAt = acc.CreatedAt

	var age sql.NullInt64
	if acc.Age > 0 {
		age = sql.NullInt64{Int64: int64(acc.Age), Valid: true}
	}
	var changed sql.NullTime
	if acc.PasswordChangedAt != nil {
		changed = sql.NullTime{Time: *acc.PasswordChangedAt, Valid: true}
	}

	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO accounts (id,username,email,first_name,last_name,age,password_hash,password_changed_at,role,is_active,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)",
		acc.ID, acc.Username, acc.Email, acc.FirstName, acc.LastName, age, acc.PasswordHash, changed,
		string(acc.Role), acc.IsActive, acc.CreatedAt, acc.UpdatedAt)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return nil, &DuplicateError{Field: duplicateField(me.Message)}
		}
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("username", acc.Username).
			Wrap(err)
	}
	return &acc, nil
}

// FindByUsernameOrEmail returns the account holding either value. When two
// accounts match, the username match wins.
func (r *AccountRepo) FindByUsernameOrEmail(ctx context.Context, username, email string) (*model.Account, error) {
	return r.findOne(ctx, "find by username or email",
		"SELECT "+accountColumns+" FROM accounts WHERE username=? OR email=? ORDER BY username=? DESC LIMIT 1",
		username, normalizeEmail(email), username)
}

// FindByUsername fetches an account by exact username.
func (r *AccountRepo) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	return r.findOne(ctx, "find by username",
		"SELECT "+accountColumns+" FROM accounts WHERE username=? LIMIT 1", username)
}

// FindByID fetches an account by id.
func (r *AccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return r.findOne(ctx, "find by id",
		"SELECT "+accountColumns+" FROM accounts WHERE id=? LIMIT 1", id)
}

// UpdateCredential stores a new hash and the time it changed.
func (r *AccountRepo) UpdateCredential(ctx context.Context, id, hash string, changedAt time.Time) error {
	return r.exec(ctx, "update credential",
		"UPDATE accounts SET password_hash=?, password_changed_at=?, updated_at=? WHERE id=?",
		id, hash, changedAt, changedAt, id)
}

// UpdateLastLogin records a successful login.
func (r *AccountRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "update last login",
		"UPDATE accounts SET last_login=? WHERE id=?", id, at, id)
}

// UpdateStatus activates or deactivates an account.
func (r *AccountRepo) UpdateStatus(ctx context.Context, id string, active bool) error {
	return r.exec(ctx, "update status",
		"UPDATE accounts SET is_active=?, updated_at=? WHERE id=?", id, active, time.Now().UTC(), id)
}

// Delete removes an account.
func (r *AccountRepo) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, "delete account", "DELETE FROM accounts WHERE id=?", id, id)
}

func (r *AccountRepo) findOne(ctx context.Context, op, query string, args ...any) (*model.Account, error) {
	a, err := scanAccount(r.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").With("operation", op).Wrap(err)
	}
	return a, nil
}

// exec runs a single-row write. Zero affected rows means the id is unknown;
// the DSN sets clientFoundRows so unchanged rows still count.
func (r *AccountRepo) exec(ctx context.Context, op, query, id string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", op).With("account_id", id).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", op).With("account_id", id).Wrap(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*model.Account, error) {
	var (
		a             model.Account
		age           sql.NullInt64
		role          string
		changed, last sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.FirstName, &a.LastName, &age, &a.PasswordHash,
		&changed, &role, &a.IsActive, &last, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Role = model.Role(role)
	if age.Valid {
		a.Age = int(age.Int64)
	}
	if changed.Valid {
		t := changed.Time
		a.PasswordChangedAt = &t
	}
	if last.Valid {
		t := last.Time
		a.LastLogin = &t
	}
	return &a, nil
}

// duplicateField maps the violated index named in an ER_DUP_ENTRY message to
// the account field it guards.
func duplicateField(msg string) string {
	if strings.Contains(msg, "uq_accounts_email") {
		return "email"
	}
	return "username"
}
