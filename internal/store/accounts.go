// ABOUTME: Account registry store methods over the sessions table
// ABOUTME: One row per phone-identified account with a derived status and Session projection

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const accountColumns = `id, phone, user_id, username, created_at, last_active_at, is_active`

// CreateAccount inserts a fresh unlinked account for phone and returns it.
// The stored row has an empty user_id and is_active unset, so a subsequent
// read derives StatusInactive; only this return value carries
// StatusPendingAuth.
func (s *SQLiteStore) CreateAccount(ctx context.Context, phone string) (*Account, error) {
	now := time.Now()
	account := &Account{
		ID:           uuid.New().String(),
		Phone:        phone,
		CreatedAt:    now,
		LastActiveAt: now,
		Status:       StatusPendingAuth,
	}

	query := `
		INSERT INTO sessions (id, phone, user_id, username, created_at, last_active_at, is_active)
		VALUES (?, ?, '', NULL, ?, ?, 0)
	`

	_, err := s.db.ExecContext(ctx, query,
		account.ID,
		account.Phone,
		now.UnixMilli(),
		now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting account: %w", err)
	}

	s.logger.Debug("created account", "id", account.ID, "phone", phone)
	return account, nil
}

// scanAccount scans an account row and derives its status and session
// projection from stored state.
func scanAccount(scanner interface{ Scan(dest ...any) error }) (*Account, error) {
	var a Account
	var username sql.NullString
	var createdAt, lastActiveAt int64

	if err := scanner.Scan(
		&a.ID,
		&a.Phone,
		&a.UserID,
		&username,
		&createdAt,
		&lastActiveAt,
		&a.IsActive,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning account: %w", err)
	}

	a.Username = username.String
	a.CreatedAt = time.UnixMilli(createdAt)
	a.LastActiveAt = time.UnixMilli(lastActiveAt)

	if a.IsActive {
		a.Status = StatusActive
	} else {
		a.Status = StatusInactive
	}

	if a.UserID != "" {
		a.Session = &Session{
			UserID:   a.UserID,
			Username: a.Username,
			IsActive: a.IsActive,
		}
	}

	return &a, nil
}

// GetAccount retrieves an account by ID.
// Returns ErrNotFound if the account doesn't exist.
func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM sessions WHERE id = ?`, id)

	account, err := scanAccount(row)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetAccountByPhone retrieves an account by phone number.
// Returns ErrNotFound if no account exists for the phone.
func (s *SQLiteStore) GetAccountByPhone(ctx context.Context, phone string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM sessions WHERE phone = ?`, phone)

	account, err := scanAccount(row)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// listAccounts runs an account list query and scans all rows.
func (s *SQLiteStore) listAccounts(ctx context.Context, query string, args ...any) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account rows: %w", err)
	}
	return accounts, nil
}

// ListAccounts returns all accounts, newest first by creation time.
func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]*Account, error) {
	return s.listAccounts(ctx,
		`SELECT `+accountColumns+` FROM sessions ORDER BY created_at DESC`)
}

// ListActiveAccounts returns active accounts, most recently active first.
func (s *SQLiteStore) ListActiveAccounts(ctx context.Context) ([]*Account, error) {
	return s.listAccounts(ctx,
		`SELECT `+accountColumns+` FROM sessions WHERE is_active = 1 ORDER BY last_active_at DESC`)
}

// updateAccount runs an update statement and maps zero affected rows to
// ErrNotFound.
func (s *SQLiteStore) updateAccount(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ActivateSession links the account to a remote identity and marks it
// active, refreshing last_active_at.
func (s *SQLiteStore) ActivateSession(ctx context.Context, id, userID, username string) error {
	err := s.updateAccount(ctx, `
		UPDATE sessions
		SET user_id = ?, username = ?, last_active_at = ?, is_active = 1
		WHERE id = ?
	`, userID, nullString(username), time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}

	s.logger.Debug("activated session", "id", id, "user_id", userID)
	return nil
}

// DeactivateSession clears the active flag. last_active_at is deliberately
// left untouched so GetActiveSession ordering still reflects real activity.
func (s *SQLiteStore) DeactivateSession(ctx context.Context, id string) error {
	err := s.updateAccount(ctx, `UPDATE sessions SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return err
	}

	s.logger.Debug("deactivated session", "id", id)
	return nil
}

// UpdateAccountStatus sets the stored active flag from the coarse status:
// active iff status is StatusActive. The errMsg argument is accepted for
// interface parity but not persisted; the schema has no error column.
func (s *SQLiteStore) UpdateAccountStatus(ctx context.Context, id string, status AccountStatus, errMsg string) error {
	isActive := 0
	if status == StatusActive {
		isActive = 1
	}

	err := s.updateAccount(ctx, `UPDATE sessions SET is_active = ? WHERE id = ?`, isActive, id)
	if err != nil {
		return err
	}

	s.logger.Debug("updated account status", "id", id, "status", status)
	return nil
}

// TouchSession refreshes last_active_at.
func (s *SQLiteStore) TouchSession(ctx context.Context, id string) error {
	return s.updateAccount(ctx,
		`UPDATE sessions SET last_active_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), id)
}

// DeleteAccount removes the account, reporting whether a row existed.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected > 0 {
		s.logger.Debug("deleted account", "id", id)
	}
	return rowsAffected > 0, nil
}

// GetSession returns the session projection of an account, or ErrNotFound
// when the account doesn't exist or has never been linked to a remote
// identity.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	account, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if account.Session == nil {
		return nil, ErrNotFound
	}
	return account.Session, nil
}

// GetActiveSession returns the session of the most recently active account
// with the active flag set, or ErrNotFound when none is active.
func (s *SQLiteStore) GetActiveSession(ctx context.Context) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM sessions
		WHERE is_active = 1
		ORDER BY last_active_at DESC
		LIMIT 1
	`)

	account, err := scanAccount(row)
	if err != nil {
		return nil, err
	}
	if account.Session == nil {
		return nil, ErrNotFound
	}
	return account.Session, nil
}

// CountAccounts returns the number of accounts.
func (s *SQLiteStore) CountAccounts(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting accounts: %w", err)
	}
	return count, nil
}
