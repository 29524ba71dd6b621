package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pollhub.org/internal/moderation"
)

var _ moderation.Store = (*Store)(nil)

type resourceTable struct {
	name  string
	owner string
	title string
}

// Table and column names are fixed here and never taken from input.
var resourceTables = map[moderation.Kind]resourceTable{
	moderation.KindPoll:    {name: "polls", owner: "created_by", title: "title"},
	moderation.KindComment: {name: "comments", owner: "user_id", title: "left(content, 80)"},
}

func tableFor(kind moderation.Kind) (resourceTable, error) {
	t, ok := resourceTables[kind]
	if !ok {
		return resourceTable{}, fmt.Errorf("%w: unknown kind %q", moderation.ErrInvalidAction, kind)
	}
	return t, nil
}

func (t resourceTable) selectColumns() string {
	return fmt.Sprintf(`id, coalesce(%s, ''), coalesce(%s, ''), is_approved, is_hidden, moderated_by, moderated_at, moderation_reason, created_at`, t.owner, t.title)
}

func (s *Store) FetchResource(ctx context.Context, kind moderation.Kind, id string) (moderation.Resource, error) {
	if s.db == nil {
		return moderation.Resource{}, errNoDB
	}
	t, err := tableFor(kind)
	if err != nil {
		return moderation.Resource{}, err
	}
	row := s.db.QueryRowContext(ctx,
		`select `+t.selectColumns()+` from `+t.name+` where id = $1 and deleted_at is null`, id)
	r, err := scanResource(row, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return moderation.Resource{}, moderation.ErrNotFound
	}
	return r, err
}

func (s *Store) UpdateModeration(ctx context.Context, kind moderation.Kind, id string, st moderation.Status, deletedAt *time.Time) error {
	if s.db == nil {
		return errNoDB
	}
	t, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		update `+t.name+`
		set is_approved = $2, is_hidden = $3, moderated_by = $4, moderated_at = $5,
		    moderation_reason = $6, deleted_at = coalesce($7, deleted_at)
		where id = $1 and deleted_at is null`,
		id, st.Approved, st.Hidden, nullString(st.ModeratedBy), nullTime(st.ModeratedAt), nullString(st.Reason), nullTime(deletedAt))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return moderation.ErrNotFound
	}
	return nil
}

func whereClause(f moderation.Filter) string {
	conds := []string{"deleted_at is null"}
	if f.NeedsReview {
		conds = append(conds, "(not is_approved or is_hidden)")
	}
	if f.Moderated {
		conds = append(conds, "moderated_at is not null")
	}
	return strings.Join(conds, " and ")
}

func (s *Store) ListResources(ctx context.Context, kind moderation.Kind, f moderation.Filter) ([]moderation.Resource, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`select `+t.selectColumns()+` from `+t.name+` where `+whereClause(f)+` order by created_at desc limit $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []moderation.Resource
	for rows.Next() {
		r, err := scanResource(rows, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CountResources(ctx context.Context, kind moderation.Kind, f moderation.Filter) (int, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	t, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx, `select count(*) from `+t.name+` where `+whereClause(f)).Scan(&n)
	return n, err
}

func scanResource(row rowScanner, kind moderation.Kind) (moderation.Resource, error) {
	var (
		r       moderation.Resource
		modBy   sql.NullString
		modAt   sql.NullTime
		reasonV sql.NullString
	)
	if err := row.Scan(&r.ID, &r.OwnerID, &r.Title, &r.Approved, &r.Hidden, &modBy, &modAt, &reasonV, &r.CreatedAt); err != nil {
		return moderation.Resource{}, err
	}
	r.Kind = kind
	r.ModeratedBy = stringPtr(modBy)
	r.ModeratedAt = timePtr(modAt)
	r.Reason = stringPtr(reasonV)
	return r, nil
}
