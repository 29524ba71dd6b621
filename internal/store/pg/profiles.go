package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pollhub.org/internal/auth"
)

var (
	_ auth.ProfileStore     = (*Store)(nil)
	_ auth.ProfileWriter    = (*Store)(nil)
	_ auth.ProfileDirectory = (*Store)(nil)
	_ auth.ContentCounter   = (*Store)(nil)
)

const profileColumns = `id, role, is_active, suspended_at, suspended_by, suspension_reason, created_at, updated_at`

// scoped runs fn inside a transaction whose app.identity_id setting carries
// the caller's identity, which the row-level security policies consult.
func (s *Store) scoped(ctx context.Context, readOnly bool, fn func(*sql.Tx) error) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	caller, _ := auth.IdentityFromContext(ctx)
	if _, err := tx.ExecContext(ctx, `select set_config('app.identity_id', $1, true)`, caller); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) FetchProfile(ctx context.Context, identityID string) (auth.Profile, error) {
	var p auth.Profile
	err := s.scoped(ctx, true, func(tx *sql.Tx) (err error) {
		p, err = scanProfile(tx.QueryRowContext(ctx, `select `+profileColumns+` from user_profiles where id = $1`, identityID))
		return err
	})
	if err != nil {
		return auth.Profile{}, mapProfileError(err)
	}
	return p, nil
}

func (s *Store) UpdateRole(ctx context.Context, identityID string, role auth.Role) (auth.Profile, error) {
	var p auth.Profile
	err := s.scoped(ctx, false, func(tx *sql.Tx) (err error) {
		p, err = scanProfile(tx.QueryRowContext(ctx, `
			update user_profiles set role = $2, updated_at = now()
			where id = $1
			returning `+profileColumns, identityID, string(role)))
		return err
	})
	if err != nil {
		return auth.Profile{}, mapProfileError(err)
	}
	return p, nil
}

// SetSuspension writes or clears the suspension stamp; is_active follows it.
func (s *Store) SetSuspension(ctx context.Context, identityID string, sus auth.Suspension) (auth.Profile, error) {
	var p auth.Profile
	err := s.scoped(ctx, false, func(tx *sql.Tx) (err error) {
		p, err = scanProfile(tx.QueryRowContext(ctx, `
			update user_profiles
			set is_active = $2, suspended_at = $3, suspended_by = $4, suspension_reason = $5, updated_at = now()
			where id = $1
			returning `+profileColumns,
			identityID, sus.At == nil, nullTime(sus.At), nullString(sus.By), nullString(sus.Reason)))
		return err
	})
	if err != nil {
		return auth.Profile{}, mapProfileError(err)
	}
	return p, nil
}

// ListProfiles pages through the profiles visible to the caller; the row
// policies show administrators every row.
func (s *Store) ListProfiles(ctx context.Context, limit, offset int) ([]auth.Profile, error) {
	var out []auth.Profile
	err := s.scoped(ctx, true, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			select `+profileColumns+` from user_profiles
			order by created_at desc, id
			limit $1 offset $2`, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			p, err := scanProfile(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapProfileError(err)
	}
	return out, nil
}

func (s *Store) CountProfiles(ctx context.Context) (auth.ProfileCounts, error) {
	var c auth.ProfileCounts
	err := s.scoped(ctx, true, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			select count(*),
			       count(*) filter (where is_active),
			       count(*) filter (where not is_active),
			       count(*) filter (where role = 'admin')
			from user_profiles`).Scan(&c.Total, &c.Active, &c.Suspended, &c.Administrators)
	})
	if err != nil {
		return auth.ProfileCounts{}, mapProfileError(err)
	}
	return c, nil
}

func (s *Store) CountContent(ctx context.Context) (auth.ContentTotals, error) {
	if s.db == nil {
		return auth.ContentTotals{}, errNoDB
	}
	var t auth.ContentTotals
	err := s.db.QueryRowContext(ctx, `
		select (select count(*) from polls where deleted_at is null),
		       (select count(*) from comments where deleted_at is null),
		       (select count(*) from votes)`).Scan(&t.Polls, &t.Comments, &t.Votes)
	return t, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (auth.Profile, error) {
	var (
		p           auth.Profile
		role        string
		suspendedAt sql.NullTime
		suspendedBy sql.NullString
		reason      sql.NullString
		updatedAt   sql.NullTime
	)
	if err := row.Scan(&p.IdentityID, &role, &p.IsActive, &suspendedAt, &suspendedBy, &reason, &p.CreatedAt, &updatedAt); err != nil {
		return auth.Profile{}, err
	}
	parsed, err := auth.ParseRole(role)
	if err != nil {
		// unknown roles carry no permissions
		parsed = auth.Role(role)
	}
	p.Role = parsed
	p.SuspendedAt = timePtr(suspendedAt)
	p.SuspendedBy = stringPtr(suspendedBy)
	p.SuspensionReason = stringPtr(reason)
	p.UpdatedAt = timePtr(updatedAt)
	return p, nil
}

func mapProfileError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return auth.ErrNotFound
	case hasCode(err, pgErrInfiniteRecursion):
		return fmt.Errorf("%w: %v", auth.ErrCircularPolicy, err)
	default:
		return err
	}
}
